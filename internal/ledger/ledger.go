// Package ledger keeps the durable append-only record of terminal job
// outcomes and groups it for notification.
package ledger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gklog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

const (
	StatusSuccess = "Success"
	StatusFailed  = "Failed"

	unknownTeam   = "UNKNOWNTEAM"
	unknownScanBy = "UNKNOWNSCANBY"
)

// Record is one terminal job outcome. Rows are append-only and never mutated
// after write.
type Record struct {
	Timestamp     string
	TeamFolder    string
	ScanBy        string
	EmpID         string
	Role          string
	Event         string
	FileName      string
	Status        string
	Message       string
	SharePointUrl string
}

// Headers is the summary store column order.
var Headers = []string{
	"Timestamp", "TeamFolder", "ScanBy", "EmpID", "Role", "Event",
	"FileName", "Status", "Message", "SharePointUrl",
}

func (r Record) row() []string {
	return []string{
		r.Timestamp, r.TeamFolder, r.ScanBy, r.EmpID, r.Role, r.Event,
		r.FileName, r.Status, r.Message, r.SharePointUrl,
	}
}

// GroupKey identifies a notification group. It is a structured key on
// purpose: team folder names may themselves contain underscores, so a
// delimited string key would be ambiguous.
type GroupKey struct {
	Team   string
	ScanBy string
}

// Group is the ordered list of records for one notification recipient.
type Group struct {
	Key     GroupKey
	Records []Record
}

// Ledger is a CSV-backed append-only outcome store.
type Ledger struct {
	path string
	log  gklog.Logger
}

func New(path string, logger gklog.Logger) *Ledger {
	return &Ledger{path: path, log: gklog.With(logger, "component", "ledger")}
}

// Path returns the backing file location.
func (l *Ledger) Path() string {
	return l.path
}

// Append durably writes one record, migrating the store schema first if it
// predates the SharePointUrl column.
func (l *Ledger) Append(rec Record) error {
	if err := l.ensureSchema(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create ledger dir: %w", err)
	}

	_, statErr := os.Stat(l.path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open summary store: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(Headers); err != nil {
			return fmt.Errorf("failed to write summary header: %w", err)
		}
	}
	if err := w.Write(rec.row()); err != nil {
		return fmt.Errorf("failed to append summary row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush summary row: %w", err)
	}

	level.Debug(l.log).Log("msg", "logged summary", "file", rec.FileName, "status", rec.Status)
	return nil
}

// All returns every record in append order. A missing store reads as empty.
func (l *Ledger) All() ([]Record, error) {
	if err := l.ensureSchema(); err != nil {
		return nil, err
	}
	rows, header, err := readAll(l.path)
	if err != nil {
		return nil, err
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	field := func(row []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, Record{
			Timestamp:     field(row, "Timestamp"),
			TeamFolder:    field(row, "TeamFolder"),
			ScanBy:        field(row, "ScanBy"),
			EmpID:         field(row, "EmpID"),
			Role:          field(row, "Role"),
			Event:         field(row, "Event"),
			FileName:      field(row, "FileName"),
			Status:        field(row, "Status"),
			Message:       field(row, "Message"),
			SharePointUrl: field(row, "SharePointUrl"),
		})
	}
	return records, nil
}

// Groups partitions all records by (team, scanBy) and orders each group with
// Success rows first, preserving relative order within each status bucket.
// Groups are returned in deterministic key order.
func (l *Ledger) Groups() ([]Group, error) {
	records, err := l.All()
	if err != nil {
		return nil, err
	}

	byKey := make(map[GroupKey][]Record)
	var order []GroupKey
	for _, rec := range records {
		key := GroupKey{
			Team:   orDefault(rec.TeamFolder, unknownTeam),
			ScanBy: orDefault(rec.ScanBy, unknownScanBy),
		}
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], rec)
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].Team != order[j].Team {
			return order[i].Team < order[j].Team
		}
		return order[i].ScanBy < order[j].ScanBy
	})

	groups := make([]Group, 0, len(order))
	for _, key := range order {
		recs := byKey[key]
		sort.SliceStable(recs, func(i, j int) bool {
			return statusWeight(recs[i].Status) < statusWeight(recs[j].Status)
		})
		groups = append(groups, Group{Key: key, Records: recs})
	}
	return groups, nil
}

// ensureSchema rewrites a store that predates the SharePointUrl column,
// re-serializing existing rows with the new column defaulted. Running it on
// an already-migrated store is a no-op.
func (l *Ledger) ensureSchema() error {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read summary store: %w", err)
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return nil
	}
	headerLine, _, _ := strings.Cut(content, "\n")
	if strings.Contains(headerLine, "SharePointUrl") {
		return nil
	}

	rows, _, err := readAll(l.path)
	if err != nil {
		return fmt.Errorf("failed to migrate summary store: %w", err)
	}

	f, err := os.Create(l.path)
	if err != nil {
		return fmt.Errorf("failed to rewrite summary store: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(Headers); err != nil {
		return fmt.Errorf("failed to rewrite summary header: %w", err)
	}
	for _, row := range rows {
		for len(row) < len(Headers) {
			row = append(row, "")
		}
		if err := w.Write(row[:len(Headers)]); err != nil {
			return fmt.Errorf("failed to rewrite summary row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush migrated summary store: %w", err)
	}

	level.Info(l.log).Log("msg", "migrated summary store schema", "path", l.path)
	return nil
}

// readAll returns the data rows and header of the CSV at path; a missing
// file reads as empty.
func readAll(path string) (rows [][]string, header []string, err error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open summary store: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse summary store: %w", err)
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return all[1:], all[0], nil
}

func statusWeight(status string) int {
	if strings.EqualFold(status, StatusSuccess) {
		return 0
	}
	return 1
}

func orDefault(s, def string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}
