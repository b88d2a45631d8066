// Package cache keeps the local mirror of remote state: tasks, processed
// activity events, per-document metadata and the project and section name
// maps. Everything lives in memory and is written through to sqlite, so a
// restart resumes exactly where the last pass left off.
package cache

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mklimuk/task-pilot/pkg/logging"
	"github.com/mklimuk/task-pilot/pkg/task"
)

// Cache is the in-memory mirror backed by the repository. Reads take the
// shared lock so the status and snapshot endpoints can run during a pass.
type Cache struct {
	mu   sync.RWMutex
	repo *Repository
	log  zerolog.Logger

	tasks     map[string]task.Task
	events    map[string]task.Event
	metadata  map[string]task.FileMetadata
	projects  map[string]string // id -> name
	sections  map[string]task.Section
	defaultPr string // global default project id
}

// New loads the persisted state into memory.
func New(repo *Repository) (*Cache, error) {
	c := &Cache{
		repo:     repo,
		log:      logging.Component("cache"),
		tasks:    make(map[string]task.Task),
		events:   make(map[string]task.Event),
		metadata: make(map[string]task.FileMetadata),
		projects: make(map[string]string),
		sections: make(map[string]task.Section),
	}

	tasks, err := repo.ListTasks()
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	for _, t := range tasks {
		c.tasks[t.ID] = t
	}

	events, err := repo.ListEvents()
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	for _, e := range events {
		c.events[e.ID] = e
	}

	c.metadata, err = repo.ListMetadata()
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}

	projects, err := repo.ListProjects()
	if err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}
	for _, p := range projects {
		c.projects[p.ID] = p.Name
	}

	sections, err := repo.ListSections()
	if err != nil {
		return nil, fmt.Errorf("failed to load sections: %w", err)
	}
	for _, s := range sections {
		c.sections[s.ID] = s
	}

	c.log.Info().Int("tasks", len(c.tasks)).Int("events", len(c.events)).
		Int("files", len(c.metadata)).Msg("cache loaded")
	return c, nil
}

// SetGlobalDefaultProject sets the fallback project used by documents without
// an explicit default.
func (c *Cache) SetGlobalDefaultProject(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultPr = id
}

// TaskByID returns the cached record for the given remote id.
func (c *Cache) TaskByID(id string) (task.Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tasks[id]
	return t, ok
}

// TasksForPath returns every cached task living in the given document.
func (c *Cache) TasksForPath(path string) []task.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []task.Task
	for _, t := range c.tasks {
		if t.Path == path {
			out = append(out, t)
		}
	}
	return out
}

// KnownTaskIDs returns the set of every cached task id.
func (c *Cache) KnownTaskIDs() map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]bool, len(c.tasks))
	for id := range c.tasks {
		out[id] = true
	}
	return out
}

// AppendTask stores a freshly created task.
func (c *Cache) AppendTask(t task.Task) error {
	if t.SyncState == "" {
		t.SyncState = task.StateSynced
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks[t.ID] = t
	return c.repo.UpsertTask(t)
}

// UpdateTask replaces the cached record wholesale.
func (c *Cache) UpdateTask(t task.Task) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tasks[t.ID]; !ok {
		return fmt.Errorf("task %s not in cache", t.ID)
	}
	c.tasks[t.ID] = t
	return c.repo.UpsertTask(t)
}

// DeleteTasks drops the given records from the cache.
func (c *Cache) DeleteTasks(ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.tasks, id)
	}
	return c.repo.DeleteTasks(ids)
}

// CloseTask marks the cached record completed.
func (c *Cache) CloseTask(id string) error {
	return c.mutateTask(id, func(t *task.Task) { t.Completed = true })
}

// ReopenTask marks the cached record uncompleted.
func (c *Cache) ReopenTask(id string) error {
	return c.mutateTask(id, func(t *task.Task) { t.Completed = false })
}

// ModifyContent updates the cached content.
func (c *Cache) ModifyContent(id, content string) error {
	return c.mutateTask(id, func(t *task.Task) { t.Content = content })
}

// ModifyDue updates the cached due fields. A datetime carries the date, so
// the bare date field is cleared when a datetime is set.
func (c *Cache) ModifyDue(id, dueDate, dueDatetime string) error {
	return c.mutateTask(id, func(t *task.Task) {
		if dueDatetime != "" {
			t.DueDatetime = dueDatetime
			t.DueDate = ""
			return
		}
		t.DueDate = dueDate
		t.DueDatetime = ""
	})
}

// SetSyncState transitions a task between sync states.
func (c *Cache) SetSyncState(id string, state task.SyncState) error {
	return c.mutateTask(id, func(t *task.Task) { t.SyncState = state })
}

func (c *Cache) mutateTask(id string, fn func(*task.Task)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[id]
	if !ok {
		return fmt.Errorf("task %s not in cache", id)
	}
	fn(&t)
	c.tasks[id] = t
	return c.repo.UpsertTask(t)
}

// IsEventProcessed reports whether an activity event was already replayed.
func (c *Cache) IsEventProcessed(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.events[id]
	return ok
}

// RecordEvents marks activity events as processed, permanently.
func (c *Cache) RecordEvents(events []task.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range events {
		if _, ok := c.events[e.ID]; ok {
			continue
		}
		c.events[e.ID] = e
		if err := c.repo.RecordEvent(e); err != nil {
			return err
		}
	}
	return nil
}

// Metadata returns the per-document record, if any.
func (c *Cache) Metadata(path string) (task.FileMetadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.metadata[path]
	return m, ok
}

// MetadataPaths lists every document with a metadata record.
func (c *Cache) MetadataPaths() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.metadata))
	for p := range c.metadata {
		out = append(out, p)
	}
	return out
}

// UpdateMetadata stores a per-document record, keeping Count in step with
// TaskIDs.
func (c *Cache) UpdateMetadata(path string, m task.FileMetadata) error {
	m.Count = len(m.TaskIDs)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[path] = m
	return c.repo.UpsertMetadata(path, m)
}

// DeleteMetadata drops a document's record.
func (c *Cache) DeleteMetadata(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.metadata, path)
	return c.repo.DeleteMetadata(path)
}

// RenameFile repoints the metadata record and every task at the new path.
func (c *Cache) RenameFile(oldPath, newPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.metadata[oldPath]; ok {
		delete(c.metadata, oldPath)
		c.metadata[newPath] = m
	}
	for id, t := range c.tasks {
		if t.Path == oldPath {
			t.Path = newPath
			c.tasks[id] = t
		}
	}
	return c.repo.RenameFile(oldPath, newPath)
}

// ProjectIDByName resolves a project name to its id.
func (c *Cache) ProjectIDByName(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for id, n := range c.projects {
		if n == name {
			return id, true
		}
	}
	return "", false
}

// ProjectNameByID resolves a project id to its name.
func (c *Cache) ProjectNameByID(id string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.projects[id]
	return name, ok
}

// AddProject stores a project mapping.
func (c *Cache) AddProject(p task.Project) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projects[p.ID] = p.Name
	return c.repo.UpsertProject(p)
}

// SetProjects replaces the project map with a fresh remote listing.
func (c *Cache) SetProjects(projects []task.Project) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range projects {
		c.projects[p.ID] = p.Name
		if err := c.repo.UpsertProject(p); err != nil {
			return err
		}
	}
	return nil
}

// SectionNameByID resolves a section id to its name.
func (c *Cache) SectionNameByID(id string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sections[id]
	if !ok {
		return "", false
	}
	return s.Name, true
}

// SectionIDByName resolves a section name within a project.
func (c *Cache) SectionIDByName(name, projectID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for id, s := range c.sections {
		if s.Name == name && (projectID == "" || s.ProjectID == projectID) {
			return id, true
		}
	}
	return "", false
}

// AddSection stores a section mapping.
func (c *Cache) AddSection(s task.Section) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sections[s.ID] = s
	return c.repo.UpsertSection(s)
}

// SetSections replaces the section map with a fresh remote listing.
func (c *Cache) SetSections(sections []task.Section) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range sections {
		c.sections[s.ID] = s
		if err := c.repo.UpsertSection(s); err != nil {
			return err
		}
	}
	return nil
}

// DefaultProjectID returns the document's default project, falling back to
// the global default.
func (c *Cache) DefaultProjectID(path string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if m, ok := c.metadata[path]; ok && m.DefaultProjectID != "" {
		return m.DefaultProjectID
	}
	return c.defaultPr
}

// Snapshot exports the whole cache in its serializable shape.
func (c *Cache) Snapshot() task.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := task.Snapshot{
		FileMetadata: make(map[string]task.FileMetadata, len(c.metadata)),
	}
	for _, t := range c.tasks {
		snap.Tasks = append(snap.Tasks, t)
	}
	for _, e := range c.events {
		snap.Events = append(snap.Events, e)
	}
	for p, m := range c.metadata {
		snap.FileMetadata[p] = m
	}
	for id, name := range c.projects {
		snap.Projects = append(snap.Projects, task.Project{ID: id, Name: name})
	}
	for _, s := range c.sections {
		snap.Sections = append(snap.Sections, s)
	}
	return snap
}

// Counts returns cheap size figures for the status endpoint.
func (c *Cache) Counts() (tasks, events, files int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tasks), len(c.events), len(c.metadata)
}
