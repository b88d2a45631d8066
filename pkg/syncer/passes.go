package syncer

import (
	"context"
	"fmt"
	"strings"

	"github.com/mklimuk/task-pilot/pkg/codec"
	"github.com/mklimuk/task-pilot/pkg/remote"
	"github.com/mklimuk/task-pilot/pkg/task"
)

// syncDocumentLocked runs the ordered pass sequence over one document. New
// tasks are pushed before deletions and modifications are examined so a line
// written and deleted between two triggers cannot be mistaken for an orphan.
func (e *Engine) syncDocumentLocked(ctx context.Context, path string) (bool, error) {
	mutated := false

	if e.cfg.Sync.FullVaultSync {
		n, err := e.editor.MarkDocumentTasks(path)
		if err != nil {
			return mutated, err
		}
		mutated = mutated || n > 0
	}
	if e.cfg.Sync.AutofixMissing {
		n, err := e.editor.AutofixMissing(path)
		if err != nil {
			return mutated, err
		}
		mutated = mutated || n > 0
	}

	created, err := e.newTaskPass(ctx, path)
	if err != nil {
		return mutated, err
	}
	mutated = mutated || created

	if err := e.deletePass(ctx, path); err != nil {
		return mutated, err
	}

	modified, err := e.modifyPass(ctx, path)
	if err != nil {
		return mutated, err
	}
	return mutated || modified, nil
}

// newTaskPass creates a remote task for every tagged line without an
// identifier and writes the identifier link back into the line.
func (e *Engine) newTaskPass(ctx context.Context, path string) (bool, error) {
	text, err := e.store.Read(path)
	if err != nil {
		return false, err
	}
	lines := strings.Split(text, "\n")

	created := false
	for i, line := range lines {
		if !e.codec.IsTaskLine(line) || e.codec.HasIdentifier(line) {
			continue
		}
		if e.codec.HasMissingFlag(line) {
			continue
		}

		parsed := e.codec.Parse(line, path, i, text)
		if err := e.ensureProject(ctx, &parsed); err != nil {
			e.log.Error().Err(err).Str("path", path).Msg("project resolution failed")
			continue
		}
		sectionID, err := e.ensureSection(ctx, parsed.SectionName, parsed.ProjectID)
		if err != nil {
			e.log.Error().Err(err).Str("path", path).Msg("section resolution failed")
			continue
		}

		remoteTask, err := e.remote.CreateTask(ctx, remote.NewTask{
			Content:      parsed.Content,
			Description:  parsed.Description,
			ProjectID:    parsed.ProjectID,
			SectionID:    sectionID,
			ParentID:     parsed.ParentID,
			Labels:       parsed.Labels,
			Priority:     parsed.Priority,
			DueDate:      parsed.DueDate,
			DueDatetime:  parsed.DueDatetime,
			Duration:     parsed.Duration,
			DurationUnit: parsed.DurationUnit,
			DeadlineDate: parsed.DeadlineDate,
		})
		if err != nil {
			e.log.Error().Err(err).Str("path", path).Msg("task creation failed")
			continue
		}

		updated := line
		if parsed.NeedsDateStamp {
			updated = e.codec.StampDate(updated, codec.DateOf(parsed.DueDatetime), parsed.DueTime)
		}
		updated = e.codec.AddIdentifierLink(updated, remoteTask.ID)
		lines[i] = updated

		cached := parsed.Task
		cached.ID = remoteTask.ID
		cached.ProjectID = remoteTask.ProjectID
		cached.SectionID = sectionID
		cached.URL = remoteTask.URL
		cached.SyncState = task.StateSynced
		if err := e.cache.AppendTask(cached); err != nil {
			return created, err
		}
		if err := e.appendToMetadata(path, remoteTask.ID); err != nil {
			return created, err
		}

		// A line already checked when first seen closes immediately.
		if parsed.Completed {
			if err := e.remote.CloseTask(ctx, remoteTask.ID); err != nil {
				e.log.Error().Err(err).Str("id", remoteTask.ID).Msg("close after create failed")
			} else if err := e.cache.CloseTask(remoteTask.ID); err != nil {
				return created, err
			}
		}

		created = true
		e.notifier.Notify(fmt.Sprintf("Created task %q in %s", parsed.Content, path))
	}

	if created {
		if err := e.store.WriteLines(path, lines); err != nil {
			return created, err
		}
	}
	return created, nil
}

// deletePass removes remote tasks whose identifier vanished from the
// document body. Identifier and tag counts are compared first so the common
// unchanged document skips the full reconciliation.
func (e *Engine) deletePass(ctx context.Context, path string) error {
	meta, ok := e.cache.Metadata(path)
	if !ok || len(meta.TaskIDs) == 0 {
		return nil
	}
	text, err := e.store.Read(path)
	if err != nil {
		return err
	}

	tags, links := e.editor.IdentifierStats(text)
	if tags == links && links == len(meta.TaskIDs) {
		return nil
	}

	present := e.editor.BodyIdentifiers(text)
	var removed []string
	var kept []string
	for _, id := range meta.TaskIDs {
		if present[id] {
			kept = append(kept, id)
			continue
		}
		removed = append(removed, id)
	}
	if len(removed) == 0 {
		return nil
	}

	for _, id := range removed {
		cached, ok := e.cache.TaskByID(id)
		// A task flagged missing is already gone remotely; only the cache
		// entry is reconciled.
		if ok && cached.SyncState != task.StateSynced {
			continue
		}
		if err := e.remote.DeleteTask(ctx, id); err != nil {
			e.log.Error().Err(err).Str("id", id).Msg("remote delete failed")
			kept = append(kept, id)
			continue
		}
		e.notifier.Notify(fmt.Sprintf("Deleted task %s removed from %s", id, path))
	}

	deleted := make([]string, 0, len(removed))
	keptSet := make(map[string]bool, len(kept))
	for _, id := range kept {
		keptSet[id] = true
	}
	for _, id := range removed {
		if !keptSet[id] {
			deleted = append(deleted, id)
		}
	}
	if err := e.cache.DeleteTasks(deleted); err != nil {
		return err
	}

	meta.TaskIDs = kept
	return e.cache.UpdateMetadata(path, meta)
}

// modifyPass pushes line-side edits of identified tasks to the remote
// service.
func (e *Engine) modifyPass(ctx context.Context, path string) (bool, error) {
	text, err := e.store.Read(path)
	if err != nil {
		return false, err
	}
	lines := strings.Split(text, "\n")

	mutated := false
	for i, line := range lines {
		if !e.codec.IsTaskLine(line) {
			continue
		}
		id := e.codec.Identifier(line)
		if id == "" {
			continue
		}
		// Identifiers from before the API format migration are inert.
		if e.codec.IsStaleIdentifier(id) {
			continue
		}

		cached, ok := e.cache.TaskByID(id)
		if !ok {
			e.log.Warn().Str("id", id).Str("path", path).Msg("identified line missing from cache")
			continue
		}

		parsed := e.codec.Parse(line, path, i, text)
		if parsed.NeedsDateStamp {
			stamped := e.codec.StampDate(line, codec.DateOf(parsed.DueDatetime), parsed.DueTime)
			if stamped != line {
				lines[i] = stamped
				if err := e.store.WriteLines(path, lines); err != nil {
					return mutated, err
				}
				mutated = true
			}
		}

		changed, err := e.pushChanges(ctx, path, id, parsed, cached)
		if err != nil {
			e.log.Error().Err(err).Str("id", id).Msg("modification push failed")
			continue
		}
		mutated = mutated || changed
	}
	return mutated, nil
}

// pushChanges applies one line's detected differences: status transitions
// through the dedicated endpoints, field edits through a partial update, and
// project or parent moves into the cache only.
func (e *Engine) pushChanges(ctx context.Context, path, id string, parsed codec.ParsedTask, cached task.Task) (bool, error) {
	d := e.detector.Detect(parsed, cached)
	if !d.Changed() {
		return false, nil
	}

	if d.StatusChanged {
		if parsed.Completed {
			if err := e.remote.CloseTask(ctx, id); err != nil {
				return false, err
			}
			if err := e.cache.CloseTask(id); err != nil {
				return false, err
			}
			e.notifier.Notify(fmt.Sprintf("Completed task %s", id))
		} else {
			if err := e.remote.ReopenTask(ctx, id); err != nil {
				return false, err
			}
			if err := e.cache.ReopenTask(id); err != nil {
				return false, err
			}
			e.notifier.Notify(fmt.Sprintf("Reopened task %s", id))
		}
	}

	if d.SectionChanged {
		sectionID, err := e.ensureSection(ctx, d.NewSectionName, cached.ProjectID)
		if err != nil {
			return d.StatusChanged, err
		}
		d.Update.SectionID = sectionID
	}

	if !d.Update.IsZero() {
		res, err := e.remote.UpdateTask(ctx, id, d.Update)
		if err != nil && res.Status != remote.StatusNotFound {
			return d.StatusChanged, err
		}
		switch res.Status {
		case remote.StatusOK:
			merged := mergeUpdate(cached, parsed, res.Task)
			merged.Path = path
			if err := e.cache.UpdateTask(merged); err != nil {
				return true, err
			}
			e.notifier.Notify(fmt.Sprintf("Updated task %s: %s", id, d.Describe()))
		case remote.StatusNotFound:
			// First phase of the missing-task protocol: flag the line and
			// retire it from sync, keeping the cache entry for the delete
			// pass to reconcile.
			if err := e.editor.FlagMissing(id); err != nil {
				return true, err
			}
			if err := e.cache.SetSyncState(id, task.StatePendingRemoval); err != nil {
				return true, err
			}
			e.notifier.Notify(fmt.Sprintf("Task %s no longer exists remotely, line flagged in %s", id, path))
			return true, nil
		case remote.StatusFatal:
			return d.StatusChanged, fmt.Errorf("update of %s failed", id)
		}
	}

	if d.ProjectChanged || d.ParentChanged {
		// Cross-project and re-parent moves are not supported remotely;
		// the cache follows the line so the notice fires once.
		cachedNow, ok := e.cache.TaskByID(id)
		if ok {
			if d.ProjectChanged {
				cachedNow.ProjectID = parsed.ProjectID
			}
			if d.ParentChanged {
				cachedNow.ParentID = parsed.ParentID
			}
			if err := e.cache.UpdateTask(cachedNow); err != nil {
				return true, err
			}
		}
		e.notifier.Notify(fmt.Sprintf("Task %s moved locally (%s), remote left unchanged", id, d.Describe()))
	}

	return true, nil
}

// mergeUpdate folds the applied update into the cached record. The remote
// echo wins for fields it reports; detector results cover the rest.
func mergeUpdate(cached task.Task, parsed codec.ParsedTask, echo *task.Task) task.Task {
	merged := cached
	if echo != nil {
		merged.Content = echo.Content
		merged.Labels = echo.Labels
		merged.Priority = echo.Priority
		merged.DueDate = echo.DueDate
		merged.DueDatetime = echo.DueDatetime
		merged.DeadlineDate = echo.DeadlineDate
		if echo.SectionID != "" {
			merged.SectionID = echo.SectionID
		}
		if echo.Duration > 0 {
			merged.Duration = echo.Duration
			merged.DurationUnit = echo.DurationUnit
		}
		return merged
	}
	merged.Content = parsed.Content
	merged.Labels = parsed.Labels
	merged.Priority = parsed.Priority
	merged.DueDate = parsed.DueDate
	merged.DueDatetime = parsed.DueDatetime
	merged.DeadlineDate = parsed.DeadlineDate
	if parsed.Duration > 0 {
		merged.Duration = parsed.Duration
		merged.DurationUnit = parsed.DurationUnit
	}
	return merged
}

// ensureProject makes sure the parsed task has a project id, creating the
// named project remotely when the cache does not know it.
func (e *Engine) ensureProject(ctx context.Context, parsed *codec.ParsedTask) error {
	if parsed.ProjectID != "" || parsed.ProjectName == "" {
		return nil
	}
	p, err := e.remote.CreateProject(ctx, parsed.ProjectName)
	if err != nil {
		return fmt.Errorf("failed to create project %q: %w", parsed.ProjectName, err)
	}
	if err := e.cache.AddProject(*p); err != nil {
		return err
	}
	parsed.ProjectID = p.ID
	return nil
}

// ensureSection resolves a section name within a project, creating it
// remotely on a cache miss. An empty name resolves to no section.
func (e *Engine) ensureSection(ctx context.Context, name, projectID string) (string, error) {
	if name == "" {
		return "", nil
	}
	if id, ok := e.cache.SectionIDByName(name, projectID); ok {
		return id, nil
	}
	s, err := e.remote.CreateSection(ctx, name, projectID)
	if err != nil {
		return "", fmt.Errorf("failed to create section %q: %w", name, err)
	}
	if err := e.cache.AddSection(*s); err != nil {
		return "", err
	}
	return s.ID, nil
}

func (e *Engine) appendToMetadata(path, id string) error {
	meta, ok := e.cache.Metadata(path)
	if !ok {
		meta = task.FileMetadata{}
	}
	for _, existing := range meta.TaskIDs {
		if existing == id {
			return nil
		}
	}
	meta.TaskIDs = append(meta.TaskIDs, id)
	return e.cache.UpdateMetadata(path, meta)
}
