// Package syncer drives the reconciliation passes between vault documents
// and the remote task service. One engine instance owns the global sync
// lock; passes never run concurrently.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mklimuk/task-pilot/pkg/cache"
	"github.com/mklimuk/task-pilot/pkg/codec"
	"github.com/mklimuk/task-pilot/pkg/config"
	"github.com/mklimuk/task-pilot/pkg/diff"
	"github.com/mklimuk/task-pilot/pkg/fileops"
	"github.com/mklimuk/task-pilot/pkg/gitsync"
	"github.com/mklimuk/task-pilot/pkg/notify"
	"github.com/mklimuk/task-pilot/pkg/remote"
	"github.com/mklimuk/task-pilot/pkg/vault"
)

const (
	lockRetries    = 10
	lockRetryDelay = time.Second
)

// Engine owns the sync passes and the schedule that triggers them.
type Engine struct {
	cfg      *config.Config
	store    *vault.Store
	codec    *codec.Codec
	cache    *cache.Cache
	remote   remote.Service
	editor   *fileops.Editor
	detector *diff.Detector
	notifier notify.Notifier
	git      *gitsync.Manager
	log      zerolog.Logger

	// busy is the global sync lock; TryLock with bounded retry so an
	// overrunning pass makes the next trigger skip instead of queueing up.
	busy    sync.Mutex
	syncReq chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup

	mu       sync.Mutex
	lastSync time.Time
	lastErr  error
}

// New creates an Engine. git may be nil when vault history is not wanted.
func New(
	cfg *config.Config,
	store *vault.Store,
	c *codec.Codec,
	ca *cache.Cache,
	svc remote.Service,
	editor *fileops.Editor,
	detector *diff.Detector,
	notifier notify.Notifier,
	git *gitsync.Manager,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    store,
		codec:    c,
		cache:    ca,
		remote:   svc,
		editor:   editor,
		detector: detector,
		notifier: notifier,
		git:      git,
		log:      log,
		syncReq:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

// Bootstrap refreshes the project and section maps from the remote service
// and resolves the configured default project, creating it when missing.
func (e *Engine) Bootstrap(ctx context.Context) error {
	projects, err := e.remote.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("failed to list projects: %w", err)
	}
	if err := e.cache.SetProjects(projects); err != nil {
		return err
	}

	sections, err := e.remote.ListSections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sections: %w", err)
	}
	if err := e.cache.SetSections(sections); err != nil {
		return err
	}

	if name := e.cfg.Sync.DefaultProjectName; name != "" {
		id, ok := e.cache.ProjectIDByName(name)
		if !ok {
			p, err := e.remote.CreateProject(ctx, name)
			if err != nil {
				return fmt.Errorf("failed to create default project: %w", err)
			}
			if err := e.cache.AddProject(*p); err != nil {
				return err
			}
			id = p.ID
		}
		e.cache.SetGlobalDefaultProject(id)
	}

	e.log.Info().Int("projects", len(projects)).Int("sections", len(sections)).
		Msg("remote state bootstrapped")
	return nil
}

// Start launches the periodic schedule and the document watcher.
func (e *Engine) Start() {
	e.wg.Add(2)
	go e.scheduleLoop()
	go e.watchLoop()
}

// Stop terminates the loops and waits for shutdown.
func (e *Engine) Stop() {
	close(e.stopCh)
	e.wg.Wait()
}

// RequestSync asks for a full pass without blocking; a pending request is
// collapsed into the one already queued.
func (e *Engine) RequestSync() {
	select {
	case e.syncReq <- struct{}{}:
	default:
	}
}

// StatusLine renders a one-line status for the chat commands and the API.
func (e *Engine) StatusLine() string {
	tasks, events, files := e.cache.Counts()
	e.mu.Lock()
	last := e.lastSync
	err := e.lastErr
	e.mu.Unlock()

	line := fmt.Sprintf("%d tasks in %d documents, %d events processed", tasks, files, events)
	if !last.IsZero() {
		line += ", last sync " + last.Format(time.RFC3339)
	}
	if err != nil {
		line += ", last error: " + err.Error()
	}
	return line
}

// LastSync returns the completion time of the last full pass.
func (e *Engine) LastSync() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSync
}

func (e *Engine) scheduleLoop() {
	defer e.wg.Done()

	if delay := e.cfg.StartupDelay(); delay > 0 {
		select {
		case <-time.After(delay):
		case <-e.stopCh:
			return
		}
	}

	e.runFull()

	ticker := time.NewTicker(e.cfg.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.runFull()
		case <-e.syncReq:
			e.runFull()
		case <-e.stopCh:
			return
		}
	}
}

func (e *Engine) runFull() {
	err := e.SyncVault(context.Background())
	e.mu.Lock()
	e.lastSync = time.Now()
	e.lastErr = err
	e.mu.Unlock()
	if err != nil {
		e.log.Error().Err(err).Msg("full sync failed")
	}
}

// acquire takes the global sync lock, retrying for a bounded window. A false
// return means the trigger is skipped, not queued.
func (e *Engine) acquire() bool {
	for i := 0; i < lockRetries; i++ {
		if e.busy.TryLock() {
			return true
		}
		select {
		case <-time.After(lockRetryDelay):
		case <-e.stopCh:
			return false
		}
	}
	e.log.Warn().Msg("sync lock busy, skipping trigger")
	return false
}

// SyncVault runs the full pass sequence over every document, then the remote
// pull, then commits the vault when anything changed.
func (e *Engine) SyncVault(ctx context.Context) error {
	if !e.acquire() {
		return nil
	}
	defer e.busy.Unlock()

	docs, err := e.store.ListDocuments()
	if err != nil {
		return err
	}

	mutated := false
	for _, doc := range docs {
		m, err := e.syncDocumentLocked(ctx, doc)
		if err != nil {
			e.log.Error().Err(err).Str("path", doc).Msg("document sync failed")
			continue
		}
		mutated = mutated || m
	}

	pullMutated, err := e.pull(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("remote pull failed")
	}
	mutated = mutated || pullMutated

	if mutated {
		e.commitVault()
	}
	return nil
}

// SyncDocument runs the pass sequence over a single document.
func (e *Engine) SyncDocument(ctx context.Context, path string) error {
	if !e.acquire() {
		return nil
	}
	defer e.busy.Unlock()

	mutated, err := e.syncDocumentLocked(ctx, path)
	if err != nil {
		return err
	}
	if mutated {
		e.commitVault()
	}
	return nil
}

// SyncDocumentNow is the convenience form used by the HTTP handlers.
func (e *Engine) SyncDocumentNow(path string) error {
	return e.SyncDocument(context.Background(), path)
}

func (e *Engine) commitVault() {
	if e.git == nil {
		return
	}
	if err := e.git.Commit(""); err != nil {
		e.log.Error().Err(err).Msg("vault commit failed")
	}
}
