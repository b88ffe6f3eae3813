// Package assemble merges ordered PDF fragments into a single artifact,
// tolerating malformed or encrypted inputs through a layered fallback chain.
package assemble

import (
	"context"
	"fmt"
	"os"
	"strings"

	gklog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/sirikarn/edoc-pipeline/internal/fault"
)

// EncryptedMessage is the user-facing text recorded when a protected
// document aborts a merge. Deliberately distinct from the library's internal
// error strings.
const EncryptedMessage = "PDF file is encrypted or password-protected. Please re-scan or export without password."

// Options controls normalization and encrypted-input handling.
type Options struct {
	// ResaveBeforeMerge rewrites every fragment through the strategy chain
	// before merging. When disabled the original fragment paths are used and
	// no temp files are created.
	ResaveBeforeMerge bool
	// IgnoreEncryption permits one permissive retry when a fragment reports
	// an encrypted document. The retried load may produce blank pages.
	IgnoreEncryption bool
}

// Assembler merges PDF fragments into one artifact.
type Assembler struct {
	opts       Options
	strategies []ResaveStrategy
	loadCheck  func(path string, permissive bool) error
	log        gklog.Logger
}

func New(opts Options, strategies []ResaveStrategy, logger gklog.Logger) *Assembler {
	return &Assembler{
		opts:       opts,
		strategies: strategies,
		loadCheck:  pdfLoadCheck,
		log:        gklog.With(logger, "component", "assembler"),
	}
}

// Merge normalizes the fragments (when enabled), verifies each one loads,
// and writes the merged document to outPath. The output file exists only if
// every fragment was processed successfully. Temp files created during
// normalization are removed on every exit path; a removal failure is logged,
// never raised over the primary result.
func (a *Assembler) Merge(ctx context.Context, fragments []string, outPath string) error {
	var temps []string
	defer func() { a.cleanup(temps) }()

	working := fragments
	if a.opts.ResaveBeforeMerge {
		working = make([]string, 0, len(fragments))
		for _, frag := range fragments {
			resaved, err := a.resave(ctx, frag)
			if resaved != "" {
				temps = append(temps, resaved)
			}
			if err != nil {
				return err
			}
			working = append(working, resaved)
		}
	}

	for _, f := range working {
		if err := a.checkFragment(f); err != nil {
			return err
		}
	}

	if err := api.MergeCreateFile(working, outPath, false, relaxedConf()); err != nil {
		// Never leave a partially merged artifact behind.
		_ = os.Remove(outPath)
		if isEncryptedErr(err) {
			return fault.Wrap(fault.PdfEncrypted, EncryptedMessage, err)
		}
		return fault.Wrap(fault.PdfMerge, "failed to merge PDF fragments", err)
	}

	level.Info(a.log).Log("msg", "merged fragments", "count", len(fragments), "out", outPath)
	return nil
}

// checkFragment verifies a fragment is loadable before the merge touches the
// output. An encrypted document is terminal unless the operator override
// permits one permissive retry.
func (a *Assembler) checkFragment(path string) error {
	err := a.loadCheck(path, false)
	if err == nil {
		return nil
	}
	if !isEncryptedErr(err) {
		return fault.Wrap(fault.PdfMerge, fmt.Sprintf("failed to load PDF: %s", path), err)
	}
	if !a.opts.IgnoreEncryption {
		level.Warn(a.log).Log("msg", "encrypted fragment, merge aborted", "file", path)
		return fault.Wrap(fault.PdfEncrypted, EncryptedMessage, err)
	}

	level.Warn(a.log).Log("msg", "encrypted fragment, retrying permissively", "file", path)
	if err := a.loadCheck(path, true); err != nil {
		return fault.Wrap(fault.PdfEncrypted, EncryptedMessage, err)
	}
	return nil
}

// resave runs the strategy chain for one fragment and returns the rewritten
// path. The returned path is reported even on failure so the caller can
// clean up a partially written temp file.
func (a *Assembler) resave(ctx context.Context, src string) (string, error) {
	var lastErr error
	for _, s := range a.strategies {
		dst := tempResavePath(src)
		if err := s.Resave(ctx, src, dst); err != nil {
			_ = os.Remove(dst)
			level.Warn(a.log).Log("msg", "resave strategy failed", "strategy", s.Name(), "file", src, "err", err)
			lastErr = err
			continue
		}
		return dst, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no resave strategies configured")
	}
	if isEncryptedErr(lastErr) {
		return "", fault.Wrap(fault.PdfEncrypted, EncryptedMessage, lastErr)
	}
	return "", fault.Wrap(fault.PdfMerge, fmt.Sprintf("failed to normalize PDF: %s", src), lastErr)
}

func (a *Assembler) cleanup(temps []string) {
	for _, f := range temps {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			level.Warn(a.log).Log("msg", "failed to remove temp PDF", "file", f, "err", err)
		}
	}
}

// pdfLoadCheck validates that the document at path can be read. The
// permissive variant relaxes validation, mirroring a load that ignores
// encryption flags.
func pdfLoadCheck(path string, permissive bool) error {
	if permissive {
		return api.ValidateFile(path, relaxedConf())
	}
	return api.ValidateFile(path, model.NewDefaultConfiguration())
}

func relaxedConf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// isEncryptedErr detects the library's encrypted-document error signature at
// the point of failure, where it is converted into a typed fault.
func isEncryptedErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "encrypt") || strings.Contains(msg, "password")
}
