package task

// SyncState tracks where a task stands relative to the remote service.
// A task found missing remotely is flagged rather than dropped, so the
// cache keeps enough information for a later resync or explicit cleanup.
type SyncState string

const (
	// StateSynced means the cache entry matches a live remote task.
	StateSynced SyncState = "synced"
	// StatePendingRemoval means the remote task vanished; the line has been
	// flagged and stripped of its sync tag but the cache entry is retained.
	StatePendingRemoval SyncState = "pending_removal"
	// StateLocallyOrphaned means the flagged line was cleaned up and the
	// cache entry is waiting for the delete pass to reconcile it.
	StateLocallyOrphaned SyncState = "locally_orphaned"
)

// Task is the canonical record mirrored between a document line and the
// remote service. An empty ID means the task has never been pushed.
type Task struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	Description  string    `json:"description,omitempty"`
	ProjectID    string    `json:"project_id,omitempty"`
	SectionID    string    `json:"section_id,omitempty"`
	ParentID     string    `json:"parent_id,omitempty"`
	DueDate      string    `json:"due_date,omitempty"`      // YYYY-MM-DD
	DueDatetime  string    `json:"due_datetime,omitempty"`  // YYYY-MM-DDTHH:MM:SS
	DeadlineDate string    `json:"deadline_date,omitempty"` // YYYY-MM-DD
	Labels       []string  `json:"labels,omitempty"`
	Priority     int       `json:"priority,omitempty"` // 1..4, 4 is most urgent
	Duration     int       `json:"duration,omitempty"` // amount in DurationUnit
	DurationUnit string    `json:"duration_unit,omitempty"`
	Completed    bool      `json:"is_completed"`
	Path         string    `json:"path,omitempty"`
	URL          string    `json:"url,omitempty"`
	SyncState    SyncState `json:"sync_state,omitempty"`
}

// Duration units accepted by the remote service.
const (
	DurationMinute = "minute"
	DurationDay    = "day"
)

// Event is one remote activity record. Once its ID lands in the processed
// set it must never be replayed against the documents again.
type Event struct {
	ID           string    `json:"id"`
	ObjectType   string    `json:"object_type"` // item, note, project
	ObjectID     string    `json:"object_id"`
	ParentItemID string    `json:"parent_item_id,omitempty"`
	EventType    string    `json:"event_type"` // added, updated, completed, uncompleted
	EventDate    string    `json:"event_date"`
	ExtraData    ExtraData `json:"extra_data,omitempty"`
}

// ExtraData is the free-form payload carried by activity events.
type ExtraData struct {
	Content     string `json:"content,omitempty"`
	LastContent string `json:"last_content,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
	LastDueDate string `json:"last_due_date,omitempty"`
	Client      string `json:"client,omitempty"`
}

// Event object types.
const (
	ObjectItem    = "item"
	ObjectNote    = "note"
	ObjectProject = "project"
)

// Event types.
const (
	EventAdded       = "added"
	EventUpdated     = "updated"
	EventCompleted   = "completed"
	EventUncompleted = "uncompleted"
)

// Project is a remote project, cached by name so repeated text occurrences
// never create duplicates.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Section is a remote section inside a project.
type Section struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
}

// FileMetadata is the per-document record: which task ids live in the
// document and a mirrored count for cheap emptiness checks.
type FileMetadata struct {
	TaskIDs            []string `json:"todoistTasks"`
	Count              int      `json:"todoistCount"`
	DefaultProjectID   string   `json:"defaultProjectId,omitempty"`
	DefaultProjectName string   `json:"defaultProjectName,omitempty"`
}

// Snapshot is the serializable shape of the whole cache, loaded at startup
// and flushed after each mutating pass.
type Snapshot struct {
	Tasks        []Task                  `json:"tasks"`
	Events       []Event                 `json:"events"`
	FileMetadata map[string]FileMetadata `json:"fileMetadata"`
	Projects     []Project               `json:"projects"`
	Sections     []Section               `json:"sections"`
}

// HasLabel reports whether the task carries the given label.
func (t Task) HasLabel(label string) bool {
	for _, l := range t.Labels {
		if l == label {
			return true
		}
	}
	return false
}
