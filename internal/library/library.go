// Package library delivers finished artifacts into the destination document
// library and stamps their list-item metadata.
package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	gklog "github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/sirikarn/edoc-pipeline/internal/fault"
	"github.com/sirikarn/edoc-pipeline/internal/graph"
)

// Config locates the destination drive.
type Config struct {
	DriveID  string `json:"drive_id" validate:"required"`
	BasePath string `json:"base_path"`
}

// UploadResult identifies the stored artifact.
type UploadResult struct {
	ItemID string
	WebURL string
}

// Metadata is the set of list-item columns stamped on each delivered
// artifact.
type Metadata struct {
	EmpID     string
	FirstName string
	LastName  string
	Event     string
	ScanBy    string
}

// Library uploads artifacts into role/employee folders and patches their
// metadata columns.
type Library struct {
	api graph.API
	cfg Config
	log gklog.Logger
}

func New(api graph.API, cfg Config, logger gklog.Logger) *Library {
	return &Library{api: api, cfg: cfg, log: gklog.With(logger, "component", "library")}
}

// Upload stores localPath as role/empID/<basename>, creating the folder
// chain on demand. Any failure is an upload fault.
func (l *Library) Upload(ctx context.Context, localPath, role, empID string) (UploadResult, error) {
	if err := l.ensureFolder(ctx, l.cfg.BasePath, role); err != nil {
		return UploadResult{}, fault.Wrap(fault.UploadFailed, "failed to prepare role folder", err)
	}
	if err := l.ensureFolder(ctx, l.join(role), empID); err != nil {
		return UploadResult{}, fault.Wrap(fault.UploadFailed, "failed to prepare employee folder", err)
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return UploadResult{}, fault.Wrap(fault.UploadFailed, "failed to read artifact", err)
	}

	name := filepath.Base(localPath)
	target := fmt.Sprintf("/drives/%s/root:/%s:/content", l.cfg.DriveID, graph.EscapePath(l.join(role, empID, name)))

	var item struct {
		ID     string `json:"id"`
		WebURL string `json:"webUrl"`
	}
	if err := l.api.Put(ctx, target, data, "application/pdf", &item); err != nil {
		return UploadResult{}, fault.Wrap(fault.UploadFailed, "failed to upload "+name, err)
	}

	level.Info(l.log).Log("msg", "uploaded artifact", "name", name, "role", role, "emp_id", empID)
	return UploadResult{ItemID: item.ID, WebURL: item.WebURL}, nil
}

// PatchMetadata stamps the library columns on an uploaded item.
func (l *Library) PatchMetadata(ctx context.Context, itemID string, meta Metadata) error {
	fields := map[string]string{
		"OrganizationalIDNumber": meta.EmpID,
		"FirstName":              meta.FirstName,
		"LastName":               meta.LastName,
		"DocType":                meta.Event,
		"ScanBy":                 meta.ScanBy,
	}
	path := fmt.Sprintf("/drives/%s/items/%s/listItem/fields", l.cfg.DriveID, itemID)
	if err := l.api.PatchJSON(ctx, path, fields, nil); err != nil {
		return fault.Wrap(fault.PatchFailed, "failed to patch metadata", err)
	}
	level.Debug(l.log).Log("msg", "patched metadata", "item_id", itemID, "emp_id", meta.EmpID)
	return nil
}

// join builds a drive path under the configured base, which may be empty
// when the library roots at the drive itself.
func (l *Library) join(segments ...string) string {
	path := l.cfg.BasePath
	for _, seg := range segments {
		if path == "" {
			path = seg
			continue
		}
		path = path + "/" + seg
	}
	return path
}

func (l *Library) ensureFolder(ctx context.Context, parentPath, name string) error {
	full := name
	if parentPath != "" {
		full = parentPath + "/" + name
	}
	getPath := fmt.Sprintf("/drives/%s/root:/%s", l.cfg.DriveID, graph.EscapePath(full))
	err := l.api.GetJSON(ctx, getPath, nil)
	if err == nil {
		return nil
	}
	if !graph.IsNotFound(err) {
		return err
	}

	createPath := fmt.Sprintf("/drives/%s/root/children", l.cfg.DriveID)
	if parentPath != "" {
		createPath = fmt.Sprintf("/drives/%s/root:/%s:/children", l.cfg.DriveID, graph.EscapePath(parentPath))
	}
	body := map[string]any{
		"name":                              name,
		"folder":                            map[string]any{},
		"@microsoft.graph.conflictBehavior": "rename",
	}
	if err := l.api.PostJSON(ctx, createPath, body, nil); err != nil {
		return err
	}
	level.Info(l.log).Log("msg", "created library folder", "path", full)
	return nil
}
