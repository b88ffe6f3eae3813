// Package naming generates artifact file names with per-key sequence
// counters.
package naming

import (
	"fmt"
	"time"
)

// counterKey scopes a running counter to one batch/employee/date triple.
type counterKey struct {
	batch int
	empID string
	date  string
}

// Service issues artifact names of the form {batch}{empID}{YYYYMMDD}-{0001}.pdf.
// Counters live for the process lifetime and are never reset automatically;
// uniqueness relies entirely on them, no collision check against existing
// files is performed.
type Service struct {
	now      func() time.Time
	counters map[counterKey]int
}

// New returns a Service using the given clock; a nil clock means time.Now.
func New(now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{now: now, counters: make(map[counterKey]int)}
}

// Generate returns the next artifact name for empID. Repeated calls for the
// same (batch, empID, date) key yield sequential counters starting at 1.
func (s *Service) Generate(empID string) string {
	now := s.now()
	key := counterKey{
		batch: batchNumber(now.Hour()),
		empID: empID,
		date:  now.Format("20060102"),
	}
	s.counters[key]++
	return fmt.Sprintf("%d%s%s-%04d.pdf", key.batch, empID, key.date, s.counters[key])
}

// Reset drops all counters. Counters never reset on date rollover; this is
// the only way to start over.
func (s *Service) Reset() {
	s.counters = make(map[counterKey]int)
}

// batchNumber maps an hour of day onto its quartile: [0,6) is 1, [6,12) is
// 2, [12,18) is 3 and [18,24) is 4.
func batchNumber(hour int) int {
	switch {
	case hour < 6:
		return 1
	case hour < 12:
		return 2
	case hour < 18:
		return 3
	default:
		return 4
	}
}
