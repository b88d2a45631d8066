package api

import (
	"net/http"

	"github.com/mklimuk/task-pilot/pkg/cache"
)

// Syncer is the engine surface the handlers drive.
type Syncer interface {
	RequestSync()
	SyncDocumentNow(path string) error
	StatusLine() string
}

// NewRouter creates a new HTTP router
func NewRouter(engine Syncer, c *cache.Cache) *http.ServeMux {
	mux := http.NewServeMux()

	h := &Handler{
		Engine: engine,
		Cache:  c,
	}

	mux.HandleFunc("POST /sync", h.HandleSync)
	mux.HandleFunc("POST /documents/sync", h.HandleSyncDocument)
	mux.HandleFunc("GET /status", h.HandleStatus)
	mux.HandleFunc("GET /cache/snapshot", h.HandleSnapshot)

	return mux
}
