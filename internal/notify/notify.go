// Package notify turns grouped job outcomes into summary mails, one per
// (team, operator) group, each carrying a CSV report of the group's rows.
package notify

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	gklog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/samber/lo"

	"github.com/sirikarn/edoc-pipeline/internal/directory"
	"github.com/sirikarn/edoc-pipeline/internal/ledger"
	"github.com/sirikarn/edoc-pipeline/internal/mail"
)

// UserLookup resolves an operator account to a mail recipient.
type UserLookup interface {
	LookupUser(ctx context.Context, principal string) (directory.User, error)
}

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg mail.Message) error
}

// Config tunes dispatching.
type Config struct {
	// DefaultAddress receives the summary when the operator account cannot
	// be resolved.
	DefaultAddress string `json:"default_address" validate:"required,email"`
	// OutputDir is where per-group CSV reports are written before they are
	// attached.
	OutputDir string `json:"output_dir" validate:"required"`
}

// Dispatcher sends one summary mail per outcome group. A failed group never
// stops the remaining groups.
type Dispatcher struct {
	lookup UserLookup
	sender Sender
	cfg    Config
	now    func() time.Time
	log    gklog.Logger
}

func NewDispatcher(lookup UserLookup, sender Sender, cfg Config, logger gklog.Logger) *Dispatcher {
	return &Dispatcher{
		lookup: lookup,
		sender: sender,
		cfg:    cfg,
		now:    time.Now,
		log:    gklog.With(logger, "component", "notify"),
	}
}

// Dispatch sends a summary for every group and returns how many sends
// failed. Failures are logged per group and contained.
func (d *Dispatcher) Dispatch(ctx context.Context, groups []ledger.Group) int {
	failed := 0
	for _, group := range groups {
		if err := d.dispatchGroup(ctx, group); err != nil {
			failed++
			level.Error(d.log).Log("msg", "failed to notify group",
				"team", group.Key.Team, "scan_by", group.Key.ScanBy, "err", err)
		}
	}
	return failed
}

func (d *Dispatcher) dispatchGroup(ctx context.Context, group ledger.Group) error {
	date := d.now().Format("2006-01-02")

	reportPath, err := d.writeReport(group, date)
	if err != nil {
		return err
	}
	attachment, err := mail.FileAttachment(reportPath)
	if err != nil {
		return err
	}

	recipient, greeting := d.resolveRecipient(ctx, group.Key.ScanBy)
	body, err := renderBody(greeting, date, group, attachment.Name)
	if err != nil {
		return err
	}

	msg := mail.Message{
		To:          []string{recipient},
		Subject:     fmt.Sprintf("[HRIS] : %s eDocument Summary - %s", group.Key.Team, date),
		HTMLBody:    body,
		Attachments: []mail.Attachment{attachment},
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		return err
	}
	level.Info(d.log).Log("msg", "sent group summary",
		"team", group.Key.Team, "scan_by", group.Key.ScanBy, "to", recipient, "records", len(group.Records))
	return nil
}

// resolveRecipient returns the mail address and greeting name for an
// operator, falling back to the default address for unresolvable accounts.
func (d *Dispatcher) resolveRecipient(ctx context.Context, scanBy string) (addr, greeting string) {
	user, err := d.lookup.LookupUser(ctx, scanBy)
	if err != nil || user.Mail == "" {
		level.Warn(d.log).Log("msg", "operator not resolvable, using default address",
			"scan_by", scanBy, "err", err)
		return d.cfg.DefaultAddress, scanBy
	}
	greeting = user.DisplayName
	if greeting == "" {
		greeting = scanBy
	}
	return user.Mail, greeting
}

// writeReport emits the group's rows as summary_<team>_<scanBy>_<date>.csv
// under the output directory.
func (d *Dispatcher) writeReport(group ledger.Group, date string) (string, error) {
	if err := os.MkdirAll(d.cfg.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	name := fmt.Sprintf("summary_%s_%s_%s.csv", group.Key.Team, group.Key.ScanBy, date)
	path := filepath.Join(d.cfg.OutputDir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(ledger.Headers); err != nil {
		return "", fmt.Errorf("failed to write report header: %w", err)
	}
	for _, rec := range group.Records {
		row := []string{
			rec.Timestamp, rec.TeamFolder, rec.ScanBy, rec.EmpID, rec.Role, rec.Event,
			rec.FileName, rec.Status, rec.Message, rec.SharePointUrl,
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("failed to write report row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush report: %w", err)
	}
	return path, nil
}

var bodyTemplate = template.Must(template.New("summary").Parse(strings.TrimSpace(`
<html>
<body>
<p>Dear {{.Greeting}},</p>
<p>The document processing run for <b>{{.Team}}</b> on {{.Date}} has finished.</p>
<table border="1" cellpadding="4" cellspacing="0">
<tr><th>Succeeded</th><th>Failed</th><th>Total</th></tr>
<tr><td>{{.Success}}</td><td>{{.Failed}}</td><td>{{.Total}}</td></tr>
</table>
<p>The full report is attached as <b>{{.Attachment}}</b>.</p>
<p>This message was generated automatically. Please do not reply.</p>
</body>
</html>
`)))

func renderBody(greeting, date string, group ledger.Group, attachment string) (string, error) {
	counts := lo.CountValuesBy(group.Records, func(r ledger.Record) string { return r.Status })

	var buf bytes.Buffer
	err := bodyTemplate.Execute(&buf, map[string]any{
		"Greeting":   greeting,
		"Team":       group.Key.Team,
		"Date":       date,
		"Success":    counts[ledger.StatusSuccess],
		"Failed":     counts[ledger.StatusFailed],
		"Total":      len(group.Records),
		"Attachment": attachment,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render summary body: %w", err)
	}
	return buf.String(), nil
}
