package syncer

import (
	"context"
	"fmt"

	"github.com/mklimuk/task-pilot/pkg/codec"
	"github.com/mklimuk/task-pilot/pkg/remote"
	"github.com/mklimuk/task-pilot/pkg/task"
)

// pull fetches the remote activity log and replays unseen events onto the
// documents. Inspected event ids are recorded permanently so no event is
// replayed twice, except events for task ids not yet in the cache: those
// stay unrecorded and replay on a later pass once the task is known.
func (e *Engine) pull(ctx context.Context) (bool, error) {
	events, err := e.remote.ActivityEvents(ctx)
	if err != nil {
		return false, err
	}

	known := e.cache.KnownTaskIDs()
	mutated := false
	var inspected []task.Event

	for _, evt := range events {
		if e.cache.IsEventProcessed(evt.ID) {
			continue
		}
		if evt.ObjectType == task.ObjectItem && !known[evt.ObjectID] {
			continue
		}
		if evt.ObjectType == task.ObjectNote && !known[evt.ParentItemID] {
			continue
		}
		inspected = append(inspected, evt)

		// Our own writes echo back through the activity log; replaying
		// them would ping-pong every change.
		if remote.OwnClient(evt.ExtraData.Client) {
			continue
		}

		switch evt.ObjectType {
		case task.ObjectItem:
			m, err := e.replayItemEvent(ctx, evt)
			if err != nil {
				e.log.Error().Err(err).Str("event", evt.ID).Msg("event replay failed")
				continue
			}
			mutated = mutated || m
		case task.ObjectNote:
			if !e.cfg.Sync.CommentsSync {
				continue
			}
			if evt.EventType != task.EventAdded {
				continue
			}
			if err := e.editor.AppendNote(evt.ParentItemID, codec.DateOf(evt.EventDate), evt.ExtraData.Content); err != nil {
				e.log.Error().Err(err).Str("event", evt.ID).Msg("note replay failed")
				continue
			}
			mutated = true
		case task.ObjectProject:
			// Project renames and additions only refresh the name map.
			if err := e.refreshProjects(ctx); err != nil {
				e.log.Error().Err(err).Msg("project refresh failed")
			}
		}
	}

	if err := e.cache.RecordEvents(inspected); err != nil {
		return mutated, err
	}
	return mutated, nil
}

func (e *Engine) replayItemEvent(ctx context.Context, evt task.Event) (bool, error) {
	id := evt.ObjectID
	switch evt.EventType {
	case task.EventCompleted:
		if err := e.editor.CompleteTask(id); err != nil {
			return false, err
		}
		if err := e.cache.CloseTask(id); err != nil {
			return false, err
		}
		e.notifier.Notify(fmt.Sprintf("Task %s completed remotely", id))
		return true, nil

	case task.EventUncompleted:
		if err := e.editor.UncompleteTask(id); err != nil {
			return false, err
		}
		if err := e.cache.ReopenTask(id); err != nil {
			return false, err
		}
		e.notifier.Notify(fmt.Sprintf("Task %s reopened remotely", id))
		return true, nil

	case task.EventUpdated:
		mutated := false
		extra := evt.ExtraData
		if extra.Content != "" && extra.Content != extra.LastContent {
			if err := e.editor.ApplyContentUpdate(id, extra.LastContent, extra.Content); err != nil {
				return mutated, err
			}
			if err := e.cache.ModifyContent(id, extra.Content); err != nil {
				return mutated, err
			}
			mutated = true
		}
		if extra.DueDate != extra.LastDueDate {
			if err := e.editor.ApplyDueUpdate(id, extra.LastDueDate, extra.DueDate); err != nil {
				return mutated, err
			}
			dueDate, dueDatetime := splitDue(extra.DueDate)
			if err := e.cache.ModifyDue(id, dueDate, dueDatetime); err != nil {
				return mutated, err
			}
			mutated = true
		}
		if mutated {
			e.notifier.Notify(fmt.Sprintf("Task %s updated remotely", id))
		}
		return mutated, nil
	}
	return false, nil
}

func splitDue(due string) (dueDate, dueDatetime string) {
	if codec.TimeOf(due) != "" {
		return "", due
	}
	return due, ""
}

func (e *Engine) refreshProjects(ctx context.Context) error {
	projects, err := e.remote.ListProjects(ctx)
	if err != nil {
		return err
	}
	return e.cache.SetProjects(projects)
}
