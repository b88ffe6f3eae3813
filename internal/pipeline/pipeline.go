// Package pipeline provides the high-level orchestration for the document
// processing run: one pass over every team's staging folder, a state machine
// per bundle, and the closing notification sweep.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	gklog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/sirikarn/edoc-pipeline/internal/directory"
	"github.com/sirikarn/edoc-pipeline/internal/fault"
	"github.com/sirikarn/edoc-pipeline/internal/graph"
	"github.com/sirikarn/edoc-pipeline/internal/identity"
	"github.com/sirikarn/edoc-pipeline/internal/ledger"
	"github.com/sirikarn/edoc-pipeline/internal/library"
	"github.com/sirikarn/edoc-pipeline/internal/remote"
)

// Team is one intake folder to sweep.
type Team struct {
	Folder string `json:"team_folder" validate:"required"`
}

// RemoteStore is the intake drive surface the orchestrator needs.
type RemoteStore interface {
	StagingPath(teamFolder string) string
	ListChildren(ctx context.Context, folderPath string) ([]remote.Item, error)
	DownloadTo(ctx context.Context, item remote.Item, dir string) (string, error)
	MoveToArchive(ctx context.Context, itemID, name string) error
	MoveToFailed(ctx context.Context, itemID, name string) error
}

// DocumentLibrary is the delivery destination.
type DocumentLibrary interface {
	Upload(ctx context.Context, localPath, role, empID string) (library.UploadResult, error)
	PatchMetadata(ctx context.Context, itemID string, meta library.Metadata) error
}

// EmployeeDirectory resolves employee IDs to people.
type EmployeeDirectory interface {
	Lookup(ctx context.Context, empID string) (directory.Employee, error)
}

// Converter turns a bundle's files into single-page-safe PDF fragments.
type Converter interface {
	ToFragments(files []string, workDir string) ([]string, error)
}

// Assembler merges fragments into the final artifact.
type Assembler interface {
	Merge(ctx context.Context, fragments []string, outPath string) error
}

// Namer issues artifact names.
type Namer interface {
	Generate(empID string) string
	Reset()
}

// Notifier sends the per-group summaries; it returns how many groups failed.
type Notifier interface {
	Dispatch(ctx context.Context, groups []ledger.Group) int
}

// Config holds the local workspace layout.
type Config struct {
	WorkDir string `json:"work_dir" validate:"required"`
}

func (c Config) stagingDir() string { return filepath.Join(c.WorkDir, "staging") }
func (c Config) tempDir() string    { return filepath.Join(c.WorkDir, "temp") }
func (c Config) outputDir() string  { return filepath.Join(c.WorkDir, "output") }

// Orchestrator drives every bundle through the job state machine and records
// each terminal outcome exactly once.
type Orchestrator struct {
	store    RemoteStore
	lib      DocumentLibrary
	dir      EmployeeDirectory
	conv     Converter
	asm      Assembler
	namer    Namer
	outcomes *ledger.Ledger
	failLog  *ledger.FailLog
	notifier Notifier
	cfg      Config
	log      gklog.Logger

	extract   func(zipPath, destDir string) ([]string, error)
	sortFiles func(files []string) []string
	now       func() time.Time
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Store     RemoteStore
	Library   DocumentLibrary
	Directory EmployeeDirectory
	Converter Converter
	Assembler Assembler
	Namer     Namer
	Outcomes  *ledger.Ledger
	FailLog   *ledger.FailLog
	Notifier  Notifier

	// Extract and SortFiles default to the archive and convert packages.
	Extract   func(zipPath, destDir string) ([]string, error)
	SortFiles func(files []string) []string
}

func New(deps Deps, cfg Config, logger gklog.Logger) *Orchestrator {
	return &Orchestrator{
		store:     deps.Store,
		lib:       deps.Library,
		dir:       deps.Directory,
		conv:      deps.Converter,
		asm:       deps.Assembler,
		namer:     deps.Namer,
		outcomes:  deps.Outcomes,
		failLog:   deps.FailLog,
		notifier:  deps.Notifier,
		cfg:       cfg,
		log:       gklog.With(logger, "component", "pipeline"),
		extract:   deps.Extract,
		sortFiles: deps.SortFiles,
		now:       time.Now,
	}
}

// Run sweeps every team folder once: each zip bundle is driven to a terminal
// outcome, then the grouped summaries go out. Per-bundle failures never stop
// the run; only a broken local workspace does.
func (o *Orchestrator) Run(ctx context.Context, teams []Team) error {
	if err := o.prepareDirs(); err != nil {
		return err
	}
	o.namer.Reset()

	for _, team := range teams {
		if err := o.runTeam(ctx, team); err != nil {
			level.Error(o.log).Log("msg", "team sweep failed", "team", team.Folder, "err", err)
		}
	}

	o.cleanupDir(o.cfg.stagingDir())
	o.cleanupDir(o.cfg.tempDir())

	groups, err := o.outcomes.Groups()
	if err != nil {
		return fmt.Errorf("failed to read outcome groups: %w", err)
	}
	if failed := o.notifier.Dispatch(ctx, groups); failed > 0 {
		level.Warn(o.log).Log("msg", "some summaries were not delivered", "failed_groups", failed)
	}

	o.cleanupDir(o.cfg.outputDir())
	return nil
}

func (o *Orchestrator) runTeam(ctx context.Context, team Team) error {
	items, err := o.store.ListChildren(ctx, o.store.StagingPath(team.Folder))
	if graph.IsNotFound(err) {
		level.Warn(o.log).Log("msg", "team staging folder missing, skipping", "team", team.Folder)
		return nil
	}
	if err != nil {
		return err
	}
	if err := os.MkdirAll(o.teamStagingDir(team), 0o755); err != nil {
		return fmt.Errorf("failed to prepare team staging dir: %w", err)
	}

	for _, item := range items {
		if item.IsFolder() || !strings.EqualFold(filepath.Ext(item.Name), ".zip") {
			level.Debug(o.log).Log("msg", "skipping non-bundle entry", "team", team.Folder, "name", item.Name)
			continue
		}
		o.processItem(ctx, team, item)
	}
	return nil
}

// processItem drives one bundle through the state machine. Every path out of
// here has recorded exactly one terminal outcome.
func (o *Orchestrator) processItem(ctx context.Context, team Team, item remote.Item) {
	jobID := uuid.NewString()
	log := gklog.With(o.log, "job_id", jobID, "team", team.Folder, "bundle", item.Name)

	step := func(s State) {
		level.Info(log).Log("msg", "state", "state", s)
	}

	step(StateValidating)
	ident, err := identity.Parse(item.Name)
	if err != nil {
		// Invalid names fail before any download happens.
		empID, scanBy := identity.RawFields(item.Name)
		o.recordFailure(ctx, log, team, item, identity.Identity{EmpID: empID, ScanBy: scanBy}, err)
		return
	}

	step(StateDownloading)
	zipPath, err := o.store.DownloadTo(ctx, item, o.teamStagingDir(team))
	if err != nil {
		o.recordFailure(ctx, log, team, item, *ident, err)
		return
	}
	fail := func(err error) {
		o.moveLocal(log, zipPath, filepath.Join(o.teamStagingDir(team), "failed"))
		o.recordFailure(ctx, log, team, item, *ident, err)
	}

	step(StateExtracting)
	jobDir := filepath.Join(o.cfg.tempDir(), jobID)
	files, err := o.extract(zipPath, jobDir)
	if err != nil {
		fail(err)
		return
	}

	step(StateConverting)
	fragments, err := o.conv.ToFragments(o.sortFiles(files), jobDir)
	if err != nil {
		fail(err)
		return
	}

	step(StateEnriching)
	emp, err := o.dir.Lookup(ctx, ident.EmpID)
	if err != nil {
		fail(err)
		return
	}

	step(StateMerging)
	artifact := filepath.Join(o.cfg.outputDir(), o.namer.Generate(ident.EmpID))
	if err := o.asm.Merge(ctx, fragments, artifact); err != nil {
		fail(err)
		return
	}

	step(StateDelivering)
	uploaded, err := o.lib.Upload(ctx, artifact, ident.Role, ident.EmpID)
	if err != nil {
		fail(err)
		return
	}
	meta := library.Metadata{
		EmpID:     ident.EmpID,
		FirstName: emp.FirstName,
		LastName:  emp.LastName,
		Event:     ident.Event,
		ScanBy:    ident.ScanBy,
	}
	if err := o.lib.PatchMetadata(ctx, uploaded.ItemID, meta); err != nil {
		fail(err)
		return
	}

	step(StateArchiving)
	if err := o.store.MoveToArchive(ctx, item.ID, item.Name); err != nil {
		// The artifact is delivered; a stuck source bundle is not a job
		// failure, but it must not go unnoticed.
		level.Error(log).Log("msg", "failed to archive source bundle", "err", err)
	}

	o.moveLocal(log, zipPath, filepath.Join(o.teamStagingDir(team), "processed"))

	step(StateArchived)
	o.appendOutcome(log, ledger.Record{
		Timestamp:     o.now().Format(time.RFC3339),
		TeamFolder:    team.Folder,
		ScanBy:        ident.ScanBy,
		EmpID:         ident.EmpID,
		Role:          ident.Role,
		Event:         ident.Event,
		FileName:      item.Name,
		Status:        ledger.StatusSuccess,
		SharePointUrl: uploaded.WebURL,
	})
}

// recordFailure marks the job terminal: summary row, monthly failure row and
// a best-effort relocation of the source bundle.
func (o *Orchestrator) recordFailure(ctx context.Context, log gklog.Logger, team Team, item remote.Item, ident identity.Identity, jobErr error) {
	kind := fault.KindOf(jobErr)
	level.Warn(log).Log("msg", "state", "state", StateFailed, "kind", kind, "err", jobErr)

	now := o.now()
	o.appendOutcome(log, ledger.Record{
		Timestamp:  now.Format(time.RFC3339),
		TeamFolder: team.Folder,
		ScanBy:     ident.ScanBy,
		EmpID:      ident.EmpID,
		Role:       ident.Role,
		Event:      ident.Event,
		FileName:   item.Name,
		Status:     ledger.StatusFailed,
		Message:    jobErr.Error(),
	})
	if err := o.failLog.Append(ledger.FailEntry{
		Date:     now,
		Team:     team.Folder,
		FileName: item.Name,
		EmpID:    ident.EmpID,
		ScanBy:   ident.ScanBy,
		Kind:     kind,
		Message:  jobErr.Error(),
	}); err != nil {
		level.Error(log).Log("msg", "failed to append failure log", "err", err)
	}

	if err := o.store.MoveToFailed(ctx, item.ID, item.Name); err != nil {
		level.Error(log).Log("msg", "failed to relocate failed bundle", "err", err)
	}
}

func (o *Orchestrator) appendOutcome(log gklog.Logger, rec ledger.Record) {
	if err := o.outcomes.Append(rec); err != nil {
		level.Error(log).Log("msg", "failed to append outcome", "file", rec.FileName, "err", err)
	}
}

func (o *Orchestrator) teamStagingDir(team Team) string {
	return filepath.Join(o.cfg.stagingDir(), team.Folder)
}

// moveLocal relocates a downloaded bundle inside the team staging dir so a
// crashed run leaves an inspectable trail. The whole staging tree is cleared
// at the end of a run anyway, so failures here only get logged.
func (o *Orchestrator) moveLocal(log gklog.Logger, path, destDir string) {
	if path == "" {
		return
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		level.Warn(log).Log("msg", "failed to create local triage dir", "dir", destDir, "err", err)
		return
	}
	if err := os.Rename(path, filepath.Join(destDir, filepath.Base(path))); err != nil {
		level.Warn(log).Log("msg", "failed to relocate local bundle", "path", path, "err", err)
	}
}

func (o *Orchestrator) prepareDirs() error {
	for _, dir := range []string{o.cfg.stagingDir(), o.cfg.tempDir(), o.cfg.outputDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to prepare workspace dir %s: %w", dir, err)
		}
	}
	return nil
}

// cleanupDir empties a workspace directory. Leftovers are logged, never
// raised.
func (o *Orchestrator) cleanupDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		level.Warn(o.log).Log("msg", "failed to read workspace dir for cleanup", "dir", dir, "err", err)
		return
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			level.Warn(o.log).Log("msg", "failed to remove workspace entry", "dir", dir, "name", entry.Name(), "err", err)
		}
	}
}
