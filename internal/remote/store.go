// Package remote handles the intake drive: listing team staging folders,
// downloading bundles and relocating them to the archive or failure areas.
package remote

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	gklog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/sirikarn/edoc-pipeline/internal/graph"
)

const (
	folderStaging = "Staging"
	folderArchive = "Archive"
	folderFailed  = "Failed"
)

// Item is one drive entry.
type Item struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Folder *struct {
		ChildCount int `json:"childCount"`
	} `json:"folder,omitempty"`
}

// IsFolder reports whether the item is a directory rather than a file.
func (i Item) IsFolder() bool { return i.Folder != nil }

// Config locates the intake area on its drive.
type Config struct {
	DriveID  string `json:"drive_id" validate:"required"`
	BasePath string `json:"base_path" validate:"required"`
}

// Store lists, downloads and relocates items on the intake drive. Archived
// and failed items land in per-month subfolders created on demand.
type Store struct {
	api graph.API
	cfg Config
	now func() time.Time
	log gklog.Logger
}

func NewStore(api graph.API, cfg Config, logger gklog.Logger) *Store {
	return &Store{
		api: api,
		cfg: cfg,
		now: time.Now,
		log: gklog.With(logger, "component", "remote_store"),
	}
}

// StagingPath returns the drive path of a team's staging folder.
func (s *Store) StagingPath(teamFolder string) string {
	return s.cfg.BasePath + "/" + folderStaging + "/" + teamFolder
}

// ListChildren returns every item directly under folderPath, following
// pagination. A missing folder surfaces as a Graph 404 for the caller to
// classify.
func (s *Store) ListChildren(ctx context.Context, folderPath string) ([]Item, error) {
	next := fmt.Sprintf("/drives/%s/root:/%s:/children", s.cfg.DriveID, graph.EscapePath(folderPath))

	var items []Item
	for next != "" {
		var page struct {
			Value    []Item `json:"value"`
			NextLink string `json:"@odata.nextLink"`
		}
		if err := s.api.GetJSON(ctx, next, &page); err != nil {
			return nil, errors.Wrapf(err, "list %s", folderPath)
		}
		items = append(items, page.Value...)
		next = page.NextLink
	}
	return items, nil
}

// DownloadTo fetches the item content into dir, named after the item, and
// returns the local path.
func (s *Store) DownloadTo(ctx context.Context, item Item, dir string) (string, error) {
	localPath := filepath.Join(dir, item.Name)
	f, err := os.Create(localPath)
	if err != nil {
		return "", errors.Wrapf(err, "download %s", item.Name)
	}
	defer f.Close()

	path := fmt.Sprintf("/drives/%s/items/%s/content", s.cfg.DriveID, item.ID)
	if err := s.api.Download(ctx, path, f); err != nil {
		os.Remove(localPath)
		return "", errors.Wrapf(err, "download %s", item.Name)
	}
	level.Debug(s.log).Log("msg", "downloaded", "name", item.Name, "path", localPath)
	return localPath, nil
}

// MoveToArchive relocates a processed item into Archive/<YYYY-MM>, replacing
// any same-named file already there.
func (s *Store) MoveToArchive(ctx context.Context, itemID, name string) error {
	return s.moveToMonthFolder(ctx, itemID, name, folderArchive)
}

// MoveToFailed relocates a rejected item into Failed/<YYYY-MM>.
func (s *Store) MoveToFailed(ctx context.Context, itemID, name string) error {
	return s.moveToMonthFolder(ctx, itemID, name, folderFailed)
}

// Delete removes an item from the drive.
func (s *Store) Delete(ctx context.Context, itemID string) error {
	path := fmt.Sprintf("/drives/%s/items/%s", s.cfg.DriveID, itemID)
	return errors.Wrap(s.api.Delete(ctx, path), "delete item")
}

func (s *Store) moveToMonthFolder(ctx context.Context, itemID, name, area string) error {
	month := s.now().Format("2006-01")
	folderID, err := s.ensureFolder(ctx, s.cfg.BasePath+"/"+area, month)
	if err != nil {
		return errors.Wrapf(err, "move %s to %s", name, area)
	}

	body := map[string]any{
		"parentReference":                   map[string]string{"id": folderID},
		"name":                              name,
		"@microsoft.graph.conflictBehavior": "replace",
	}
	path := fmt.Sprintf("/drives/%s/items/%s", s.cfg.DriveID, itemID)
	if err := s.api.PatchJSON(ctx, path, body, nil); err != nil {
		return errors.Wrapf(err, "move %s to %s", name, area)
	}
	level.Info(s.log).Log("msg", "relocated item", "name", name, "area", area, "month", month)
	return nil
}

// ensureFolder returns the ID of parentPath/name, creating the folder when
// absent. Creation uses rename conflict behavior so a concurrent creation
// never fails the run.
func (s *Store) ensureFolder(ctx context.Context, parentPath, name string) (string, error) {
	var existing Item
	getPath := fmt.Sprintf("/drives/%s/root:/%s", s.cfg.DriveID, graph.EscapePath(parentPath+"/"+name))
	err := s.api.GetJSON(ctx, getPath, &existing)
	if err == nil {
		return existing.ID, nil
	}
	if !graph.IsNotFound(err) {
		return "", err
	}

	var created Item
	createPath := fmt.Sprintf("/drives/%s/root:/%s:/children", s.cfg.DriveID, graph.EscapePath(parentPath))
	body := map[string]any{
		"name":                              name,
		"folder":                            map[string]any{},
		"@microsoft.graph.conflictBehavior": "rename",
	}
	if err := s.api.PostJSON(ctx, createPath, body, &created); err != nil {
		return "", err
	}
	level.Info(s.log).Log("msg", "created folder", "parent", parentPath, "name", name)
	return created.ID, nil
}
