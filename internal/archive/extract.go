// Package archive unpacks uploaded zip bundles into per-job scratch
// directories.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirikarn/edoc-pipeline/internal/fault"
)

// zipFlagEncrypted is the general-purpose bit flag marking an encrypted entry.
const zipFlagEncrypted = 0x1

// Extract unpacks every entry of the archive at zipPath directly under
// targetDir, creating the directory if needed, and returns the produced file
// paths. Entries are written flat; the caller owns the lifetime of targetDir
// and is responsible for cleanup on failure.
func Extract(zipPath, targetDir string) ([]string, error) {
	if _, err := os.Stat(zipPath); err != nil {
		return nil, fault.Wrap(fault.ZipNotFound, fmt.Sprintf("zip file not found: %s", zipPath), err)
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create extraction dir %s: %w", targetDir, err)
	}

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fault.Wrap(fault.ZipCorrupt, fmt.Sprintf("cannot read zip file: %s", zipPath), err)
	}
	defer r.Close()

	var files []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if IsEncrypted(&f.FileHeader) {
			return nil, fault.New(fault.ZipPassword, fmt.Sprintf("zip file is password-protected: %s", zipPath))
		}
		dest := filepath.Join(targetDir, filepath.Base(f.Name))
		if err := writeEntry(f, dest); err != nil {
			return nil, fault.Wrap(fault.ZipCorrupt, fmt.Sprintf("failed to extract %s", f.Name), err)
		}
		files = append(files, dest)
	}
	return files, nil
}

// IsEncrypted reports whether a zip entry signals protected content.
func IsEncrypted(h *zip.FileHeader) bool {
	return h.Flags&zipFlagEncrypted != 0
}

func writeEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}
