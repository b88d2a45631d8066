package syncer

import (
	"context"
	"time"

	"github.com/mklimuk/task-pilot/pkg/remote"
)

const watchPollInterval = 2 * time.Second

// watchLoop polls document modification times and syncs changed documents
// after the configured debounce, so a burst of keystrokes produces one pass.
// It also resolves renames: a tracked document that vanished while its task
// ids reappeared in another file is remapped instead of deleted.
func (e *Engine) watchLoop() {
	defer e.wg.Done()

	mtimes := make(map[string]time.Time)
	dirty := make(map[string]time.Time)

	if docs, err := e.store.ListDocuments(); err == nil {
		for _, doc := range docs {
			if mt, err := e.store.ModTime(doc); err == nil {
				mtimes[doc] = mt
			}
		}
	}

	ticker := time.NewTicker(watchPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case now := <-ticker.C:
			docs, err := e.store.ListDocuments()
			if err != nil {
				e.log.Error().Err(err).Msg("watch listing failed")
				continue
			}

			seen := make(map[string]bool, len(docs))
			for _, doc := range docs {
				seen[doc] = true
				mt, err := e.store.ModTime(doc)
				if err != nil {
					continue
				}
				prev, tracked := mtimes[doc]
				mtimes[doc] = mt
				if !tracked || mt.After(prev) {
					dirty[doc] = now
				}
			}

			for doc := range mtimes {
				if !seen[doc] {
					if !e.handleVanished(doc, docs) {
						continue
					}
					delete(mtimes, doc)
					delete(dirty, doc)
				}
			}

			for doc, at := range dirty {
				if now.Sub(at) < e.cfg.Debounce() {
					continue
				}
				delete(dirty, doc)
				if err := e.SyncDocument(context.Background(), doc); err != nil {
					e.log.Error().Err(err).Str("path", doc).Msg("watched sync failed")
				}
			}
		}
	}
}

// handleVanished decides whether a disappeared document was renamed or
// deleted. A rename is detected by its task ids showing up in another
// document; the cache is remapped and the remote descriptions repointed.
// It runs under the global sync lock; a false return means the lock was
// busy and the document should be retried on the next tick.
func (e *Engine) handleVanished(oldPath string, docs []string) bool {
	if !e.acquire() {
		return false
	}
	defer e.busy.Unlock()

	meta, ok := e.cache.Metadata(oldPath)
	if !ok || len(meta.TaskIDs) == 0 {
		_ = e.cache.DeleteMetadata(oldPath)
		return true
	}

	oldIDs := make(map[string]bool, len(meta.TaskIDs))
	for _, id := range meta.TaskIDs {
		oldIDs[id] = true
	}

	for _, doc := range docs {
		text, err := e.store.Read(doc)
		if err != nil {
			continue
		}
		matches := 0
		for id := range e.editor.BodyIdentifiers(text) {
			if oldIDs[id] {
				matches++
			}
		}
		if matches == 0 {
			continue
		}

		e.log.Info().Str("from", oldPath).Str("to", doc).Msg("document rename detected")
		if err := e.cache.RenameFile(oldPath, doc); err != nil {
			e.log.Error().Err(err).Msg("rename remap failed")
			return true
		}
		e.repointDescriptions(meta.TaskIDs, doc)
		return true
	}

	// No document took the ids over; the deletion pass on the remaining
	// documents will not see them either, so reconcile here.
	e.log.Info().Str("path", oldPath).Msg("tracked document deleted")
	ctx := context.Background()
	for _, id := range meta.TaskIDs {
		if err := e.remote.DeleteTask(ctx, id); err != nil {
			e.log.Error().Err(err).Str("id", id).Msg("remote delete failed")
		}
	}
	_ = e.cache.DeleteTasks(meta.TaskIDs)
	_ = e.cache.DeleteMetadata(oldPath)
	return true
}

// repointDescriptions rewrites the backlink description of every moved task.
func (e *Engine) repointDescriptions(ids []string, newPath string) {
	ctx := context.Background()
	desc := e.codec.DocumentBacklink(newPath)
	for _, id := range ids {
		if _, err := e.remote.UpdateTask(ctx, id, remote.TaskUpdate{Description: desc}); err != nil {
			e.log.Error().Err(err).Str("id", id).Msg("description update failed")
			continue
		}
		if t, ok := e.cache.TaskByID(id); ok {
			t.Description = desc
			t.Path = newPath
			_ = e.cache.UpdateTask(t)
		}
	}
}
