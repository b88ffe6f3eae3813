package ledger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	gklog "github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/sirikarn/edoc-pipeline/internal/fault"
)

var failHeaders = []string{"Date", "Team", "FileName", "EmpID", "ScanBy", "ErrorType", "Message"}

// FailEntry is one row of the monthly failure log.
type FailEntry struct {
	Date     time.Time
	Team     string
	FileName string
	EmpID    string
	ScanBy   string
	Kind     fault.Kind
	Message  string
}

// FailLog appends failure rows to per-month CSV files under a logs
// directory, independent of the summary store.
type FailLog struct {
	dir string
	log gklog.Logger
}

func NewFailLog(dir string, logger gklog.Logger) *FailLog {
	return &FailLog{dir: dir, log: gklog.With(logger, "component", "faillog")}
}

// Append durably writes one failure row to fail_<YYYY-MM>.csv, creating the
// file with headers when absent.
func (f *FailLog) Append(entry FailEntry) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create logs dir: %w", err)
	}

	path := filepath.Join(f.dir, fmt.Sprintf("fail_%s.csv", entry.Date.Format("2006-01")))
	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open fail log: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if writeHeader {
		if err := w.Write(failHeaders); err != nil {
			return fmt.Errorf("failed to write fail log header: %w", err)
		}
	}
	row := []string{
		entry.Date.Format(time.RFC3339),
		entry.Team,
		entry.FileName,
		entry.EmpID,
		entry.ScanBy,
		string(entry.Kind),
		entry.Message,
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("failed to append fail log row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush fail log: %w", err)
	}

	level.Debug(f.log).Log("msg", "logged failure", "path", path, "file", entry.FileName, "kind", entry.Kind)
	return nil
}
