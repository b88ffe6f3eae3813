package assemble

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	gklog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ResaveStrategy rewrites a PDF through a clean writer to work around
// malformed or encrypted source files. Strategies are tried in order; the
// next one runs only when the previous failed.
type ResaveStrategy interface {
	Name() string
	Resave(ctx context.Context, src, dst string) error
}

// ExternalResaver shells out to a re-saving process invoked with
// (sourcePath, destPath) appended to the configured command line. A non-zero
// exit, spawn error, or timeout fails the strategy; the process is killed on
// timeout.
type ExternalResaver struct {
	Command []string
	Timeout time.Duration
	log     gklog.Logger
}

func NewExternalResaver(command []string, timeout time.Duration, logger gklog.Logger) *ExternalResaver {
	return &ExternalResaver{
		Command: command,
		Timeout: timeout,
		log:     gklog.With(logger, "component", "resaver", "strategy", "external"),
	}
}

func (r *ExternalResaver) Name() string { return "external" }

func (r *ExternalResaver) Resave(ctx context.Context, src, dst string) error {
	if len(r.Command) == 0 {
		return fmt.Errorf("no external resave command configured")
	}

	cctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	args := append(append([]string{}, r.Command[1:]...), src, dst)
	cmd := exec.CommandContext(cctx, r.Command[0], args...)
	out, err := cmd.CombinedOutput()

	if cctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("resave command timed out after %s for %s", r.Timeout, src)
	}
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("resave command failed for %s: %w: %s", src, err, msg)
		}
		return fmt.Errorf("resave command failed for %s: %w", src, err)
	}

	level.Debug(r.log).Log("msg", "re-saved PDF copy", "src", src, "dst", dst)
	return nil
}

// LibraryResaver rewrites the document in-process: the source is loaded with
// relaxed validation, every page copied into a fresh document and written
// out. Used whenever the external strategy is disabled or fails.
type LibraryResaver struct {
	log gklog.Logger
}

func NewLibraryResaver(logger gklog.Logger) *LibraryResaver {
	return &LibraryResaver{log: gklog.With(logger, "component", "resaver", "strategy", "library")}
}

func (r *LibraryResaver) Name() string { return "library" }

func (r *LibraryResaver) Resave(_ context.Context, src, dst string) error {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.OptimizeFile(src, dst, conf); err != nil {
		return fmt.Errorf("library resave failed for %s: %w", src, err)
	}
	level.Debug(r.log).Log("msg", "re-saved PDF copy", "src", src, "dst", dst)
	return nil
}

// tempResavePath returns a sibling temp path for a rewritten copy of src.
func tempResavePath(src string) string {
	dir := filepath.Dir(src)
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	return filepath.Join(dir, fmt.Sprintf("%s__resaved-%s.pdf", base, uuid.NewString()))
}
