package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/task-pilot/pkg/cache"
	"github.com/mklimuk/task-pilot/pkg/task"
)

type fakeEngine struct {
	requested bool
	synced    []string
	docErr    error
}

func (f *fakeEngine) RequestSync() { f.requested = true }

func (f *fakeEngine) SyncDocumentNow(path string) error {
	f.synced = append(f.synced, path)
	return f.docErr
}

func (f *fakeEngine) StatusLine() string { return "ok" }

func setupAPI(t *testing.T) (*fakeEngine, *cache.Cache, *http.ServeMux) {
	t.Helper()
	database, err := cache.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.InitSchema())
	ca, err := cache.New(cache.NewRepository(database))
	require.NoError(t, err)

	engine := &fakeEngine{}
	return engine, ca, NewRouter(engine, ca)
}

func TestHandleSync(t *testing.T) {
	engine, _, router := setupAPI(t)

	req := httptest.NewRequest("POST", "/sync", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, engine.requested)
}

func TestHandleSyncDocument(t *testing.T) {
	engine, _, router := setupAPI(t)

	req := httptest.NewRequest("POST", "/documents/sync?path=notes/today.md", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, engine.synced, 1)
	assert.Equal(t, "notes/today.md", engine.synced[0])
}

func TestHandleSyncDocumentRequiresPath(t *testing.T) {
	_, _, router := setupAPI(t)

	req := httptest.NewRequest("POST", "/documents/sync", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleStatus(t *testing.T) {
	_, ca, router := setupAPI(t)
	require.NoError(t, ca.AppendTask(task.Task{ID: "t1", Content: "a", Path: "a.md"}))

	req := httptest.NewRequest("GET", "/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Tasks)
}

func TestHandleSnapshot(t *testing.T) {
	_, ca, router := setupAPI(t)
	require.NoError(t, ca.AppendTask(task.Task{ID: "t1", Content: "a", Path: "a.md"}))

	req := httptest.NewRequest("GET", "/cache/snapshot", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var snap task.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	require.Len(t, snap.Tasks, 1)
	assert.Equal(t, "t1", snap.Tasks[0].ID)
}
