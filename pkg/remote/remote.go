// Package remote defines the task service contract and its Todoist HTTP
// implementation. Every call is a single request/response; the service is
// stateless from this side, there are no transaction semantics.
package remote

import (
	"context"
	"errors"

	"github.com/mklimuk/task-pilot/pkg/task"
)

// UpdateStatus is the three-state outcome of an update call.
type UpdateStatus int

const (
	// StatusOK means the update applied; the returned record is current.
	StatusOK UpdateStatus = iota
	// StatusNotFound means the remote record is gone. The caller owns the
	// two-phase flag-then-resync recovery.
	StatusNotFound
	// StatusFatal is any other service error; it aborts this task's update
	// without aborting the enclosing pass.
	StatusFatal
)

// UpdateResult carries the update outcome plus the applied record on OK.
type UpdateResult struct {
	Status UpdateStatus
	Task   *task.Task
}

// ErrNotFound is returned by lookups when the remote object does not exist.
var ErrNotFound = errors.New("remote: not found")

// NewTask is the creation payload. Empty optional fields are dropped before
// the request; a datetime supersedes a bare date.
type NewTask struct {
	Content      string   `json:"content"`
	Description  string   `json:"description,omitempty"`
	ProjectID    string   `json:"project_id,omitempty"`
	SectionID    string   `json:"section_id,omitempty"`
	ParentID     string   `json:"parent_id,omitempty"`
	Labels       []string `json:"labels,omitempty"`
	Priority     int      `json:"priority,omitempty"`
	DueDate      string   `json:"due_date,omitempty"`
	DueDatetime  string   `json:"due_datetime,omitempty"`
	Duration     int      `json:"duration,omitempty"`
	DurationUnit string   `json:"duration_unit,omitempty"`
	DeadlineDate string   `json:"deadline_date,omitempty"`
}

// TaskUpdate is the minimal partial-update payload; zero-valued fields are
// not sent. There is no way to clear a field through this API.
type TaskUpdate struct {
	Content      string   `json:"content,omitempty"`
	Description  string   `json:"description,omitempty"`
	Labels       []string `json:"labels,omitempty"`
	Priority     int      `json:"priority,omitempty"`
	DueDate      string   `json:"due_date,omitempty"`
	DueDatetime  string   `json:"due_datetime,omitempty"`
	DueString    string   `json:"due_string,omitempty"`
	SectionID    string   `json:"section_id,omitempty"`
	Duration     int      `json:"duration,omitempty"`
	DurationUnit string   `json:"duration_unit,omitempty"`
	DeadlineDate string   `json:"deadline_date,omitempty"`
}

// IsZero reports whether the update carries no field at all.
func (u TaskUpdate) IsZero() bool {
	return u.Content == "" && u.Description == "" && len(u.Labels) == 0 &&
		u.Priority == 0 && u.DueDate == "" && u.DueDatetime == "" &&
		u.DueString == "" && u.SectionID == "" && u.Duration == 0 &&
		u.DeadlineDate == ""
}

// Service is the remote task service consumed by the sync passes.
type Service interface {
	CreateTask(ctx context.Context, t NewTask) (*task.Task, error)
	UpdateTask(ctx context.Context, id string, u TaskUpdate) (UpdateResult, error)
	CloseTask(ctx context.Context, id string) error
	ReopenTask(ctx context.Context, id string) error
	DeleteTask(ctx context.Context, id string) error
	GetTask(ctx context.Context, id string) (*task.Task, error)
	CreateProject(ctx context.Context, name string) (*task.Project, error)
	CreateSection(ctx context.Context, name, projectID string) (*task.Section, error)
	ListProjects(ctx context.Context) ([]task.Project, error)
	ListSections(ctx context.Context) ([]task.Section, error)
	ActivityEvents(ctx context.Context) ([]task.Event, error)
}

// FilterEvents returns the events matching the given type constraints;
// empty constraints match everything.
func FilterEvents(events []task.Event, eventType, objectType string) []task.Event {
	var out []task.Event
	for _, e := range events {
		if eventType != "" && e.EventType != eventType {
			continue
		}
		if objectType != "" && e.ObjectType != objectType {
			continue
		}
		out = append(out, e)
	}
	return out
}
