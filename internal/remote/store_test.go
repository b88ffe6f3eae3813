package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	gklog "github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirikarn/edoc-pipeline/internal/graph"
)

// fakeAPI resolves requests from a canned "METHOD path" table and records
// the JSON bodies it was sent.
type fakeAPI struct {
	t         *testing.T
	responses map[string]any
	calls     []string
	bodies    map[string]any
	downloads map[string][]byte
}

func newFakeAPI(t *testing.T) *fakeAPI {
	return &fakeAPI{
		t:         t,
		responses: map[string]any{},
		bodies:    map[string]any{},
		downloads: map[string][]byte{},
	}
}

func (f *fakeAPI) resolve(key string, out any) error {
	f.calls = append(f.calls, key)
	v, ok := f.responses[key]
	if !ok {
		f.t.Fatalf("unexpected call %q", key)
	}
	if err, isErr := v.(error); isErr {
		return err
	}
	if out == nil {
		return nil
	}
	data, err := json.Marshal(v)
	require.NoError(f.t, err)
	return json.Unmarshal(data, out)
}

func (f *fakeAPI) GetJSON(_ context.Context, path string, out any) error {
	return f.resolve("GET "+path, out)
}

func (f *fakeAPI) PostJSON(_ context.Context, path string, in, out any) error {
	f.bodies["POST "+path] = in
	return f.resolve("POST "+path, out)
}

func (f *fakeAPI) PatchJSON(_ context.Context, path string, in, out any) error {
	f.bodies["PATCH "+path] = in
	return f.resolve("PATCH "+path, out)
}

func (f *fakeAPI) Put(_ context.Context, path string, _ []byte, _ string, out any) error {
	return f.resolve("PUT "+path, out)
}

func (f *fakeAPI) Delete(_ context.Context, path string) error {
	return f.resolve("DELETE "+path, nil)
}

func (f *fakeAPI) Download(_ context.Context, path string, w io.Writer) error {
	if err := f.resolve("GET "+path, nil); err != nil {
		return err
	}
	_, err := w.Write(f.downloads[path])
	return err
}

func notFound() error {
	return &graph.APIError{StatusCode: http.StatusNotFound, Code: "itemNotFound"}
}

func testStore(t *testing.T, api graph.API) *Store {
	s := NewStore(api, Config{DriveID: "d1", BasePath: "Docs/Active"}, gklog.NewNopLogger())
	s.now = func() time.Time { return time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC) }
	return s
}

func TestListChildrenFollowsPaging(t *testing.T) {
	api := newFakeAPI(t)
	api.responses["GET /drives/d1/root:/Docs/Active/Staging/HR_TEAM:/children"] = map[string]any{
		"value":          []map[string]any{{"id": "i1", "name": "a.zip"}},
		"@odata.nextLink": "https://graph.example/next-page",
	}
	api.responses["GET https://graph.example/next-page"] = map[string]any{
		"value": []map[string]any{{"id": "i2", "name": "b.zip"}},
	}

	s := testStore(t, api)
	items, err := s.ListChildren(context.Background(), s.StagingPath("HR_TEAM"))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a.zip", items[0].Name)
	assert.Equal(t, "i2", items[1].ID)
}

func TestDownloadToWritesFile(t *testing.T) {
	api := newFakeAPI(t)
	api.responses["GET /drives/d1/items/i1/content"] = map[string]any{}
	api.downloads["/drives/d1/items/i1/content"] = []byte("zip-bytes")

	dir := t.TempDir()
	s := testStore(t, api)
	path, err := s.DownloadTo(context.Background(), Item{ID: "i1", Name: "a.zip"}, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a.zip"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "zip-bytes", string(data))
}

func TestMoveToArchiveExistingMonthFolder(t *testing.T) {
	api := newFakeAPI(t)
	api.responses["GET /drives/d1/root:/Docs/Active/Archive/2026-08"] = map[string]any{"id": "fold-1"}
	api.responses["PATCH /drives/d1/items/i1"] = map[string]any{}

	s := testStore(t, api)
	require.NoError(t, s.MoveToArchive(context.Background(), "i1", "a.zip"))

	body := api.bodies["PATCH /drives/d1/items/i1"].(map[string]any)
	assert.Equal(t, map[string]string{"id": "fold-1"}, body["parentReference"])
	assert.Equal(t, "a.zip", body["name"])
	assert.Equal(t, "replace", body["@microsoft.graph.conflictBehavior"])
}

func TestMoveToFailedCreatesMonthFolder(t *testing.T) {
	api := newFakeAPI(t)
	api.responses["GET /drives/d1/root:/Docs/Active/Failed/2026-08"] = notFound()
	api.responses["POST /drives/d1/root:/Docs/Active/Failed:/children"] = map[string]any{"id": "fold-2"}
	api.responses["PATCH /drives/d1/items/i9"] = map[string]any{}

	s := testStore(t, api)
	require.NoError(t, s.MoveToFailed(context.Background(), "i9", "bad.zip"))

	created := api.bodies["POST /drives/d1/root:/Docs/Active/Failed:/children"].(map[string]any)
	assert.Equal(t, "2026-08", created["name"])
	assert.Equal(t, "rename", created["@microsoft.graph.conflictBehavior"])

	moved := api.bodies["PATCH /drives/d1/items/i9"].(map[string]any)
	assert.Equal(t, map[string]string{"id": "fold-2"}, moved["parentReference"])
}

func TestEnsureFolderOtherErrorPropagates(t *testing.T) {
	api := newFakeAPI(t)
	api.responses["GET /drives/d1/root:/Docs/Active/Archive/2026-08"] = &graph.APIError{StatusCode: http.StatusForbidden}

	s := testStore(t, api)
	err := s.MoveToArchive(context.Background(), "i1", "a.zip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestDelete(t *testing.T) {
	api := newFakeAPI(t)
	api.responses["DELETE /drives/d1/items/i1"] = map[string]any{}

	s := testStore(t, api)
	require.NoError(t, s.Delete(context.Background(), "i1"))
}

func TestEscapePath(t *testing.T) {
	assert.Equal(t, "Employee%20Document/Active/Staging", graph.EscapePath("Employee Document/Active/Staging"))
}
