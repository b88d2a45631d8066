// Package api exposes the sync engine over HTTP for local tooling: trigger
// a pass, sync one document, inspect the status and export the cache.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mklimuk/task-pilot/pkg/cache"
)

// Handler holds dependencies for API handlers
type Handler struct {
	Engine Syncer
	Cache  *cache.Cache
}

// HandleSync handles POST /sync; the pass runs asynchronously.
func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	h.Engine.RequestSync()
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintln(w, "sync requested")
}

// HandleSyncDocument handles POST /documents/sync?path=...; the single
// document pass runs synchronously so the caller sees its outcome.
func (h *Handler) HandleSyncDocument(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "missing path parameter", http.StatusBadRequest)
		return
	}
	if err := h.Engine.SyncDocumentNow(path); err != nil {
		http.Error(w, fmt.Sprintf("document sync failed: %v", err), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "document synced")
}

// StatusResponse is the GET /status payload.
type StatusResponse struct {
	Status string `json:"status"`
	Tasks  int    `json:"tasks"`
	Events int    `json:"events"`
	Files  int    `json:"files"`
}

// HandleStatus handles GET /status
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	tasks, events, files := h.Cache.Counts()
	resp := StatusResponse{
		Status: h.Engine.StatusLine(),
		Tasks:  tasks,
		Events: events,
		Files:  files,
	}
	writeJSON(w, resp)
}

// HandleSnapshot handles GET /cache/snapshot
func (h *Handler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.Cache.Snapshot())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf("encoding failed: %v", err), http.StatusInternalServerError)
	}
}
