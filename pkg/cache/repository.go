package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mklimuk/task-pilot/pkg/task"
)

// Repository handles data access
type Repository struct {
	db *DB
}

// NewRepository creates a new Repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// UpsertTask writes the full task row, replacing any previous version.
func (r *Repository) UpsertTask(t task.Task) error {
	labels, err := json.Marshal(t.Labels)
	if err != nil {
		return fmt.Errorf("failed to encode labels: %w", err)
	}
	query := `INSERT INTO tasks
		(id, path, content, description, project_id, section_id, parent_id,
		 due_date, due_datetime, deadline_date, labels, priority, duration,
		 duration_unit, completed, url, sync_state, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
		 path=excluded.path, content=excluded.content, description=excluded.description,
		 project_id=excluded.project_id, section_id=excluded.section_id,
		 parent_id=excluded.parent_id, due_date=excluded.due_date,
		 due_datetime=excluded.due_datetime, deadline_date=excluded.deadline_date,
		 labels=excluded.labels, priority=excluded.priority,
		 duration=excluded.duration, duration_unit=excluded.duration_unit,
		 completed=excluded.completed, url=excluded.url,
		 sync_state=excluded.sync_state, updated_at=CURRENT_TIMESTAMP`
	_, err = r.db.Exec(query,
		t.ID, t.Path, t.Content, t.Description, t.ProjectID, t.SectionID, t.ParentID,
		t.DueDate, t.DueDatetime, t.DeadlineDate, string(labels), t.Priority,
		t.Duration, t.DurationUnit, t.Completed, t.URL, string(t.SyncState))
	if err != nil {
		return fmt.Errorf("failed to upsert task %s: %w", t.ID, err)
	}
	return nil
}

// DeleteTasks removes the given task rows.
func (r *Repository) DeleteTasks(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := r.db.Exec(`DELETE FROM tasks WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to delete tasks: %w", err)
	}
	return nil
}

// ListTasks loads every cached task row.
func (r *Repository) ListTasks() ([]task.Task, error) {
	rows, err := r.db.Query(`SELECT id, path, content, description, project_id,
		section_id, parent_id, due_date, due_datetime, deadline_date, labels,
		priority, duration, duration_unit, completed, url, sync_state FROM tasks`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		var t task.Task
		var labels, state string
		if err := rows.Scan(&t.ID, &t.Path, &t.Content, &t.Description,
			&t.ProjectID, &t.SectionID, &t.ParentID, &t.DueDate, &t.DueDatetime,
			&t.DeadlineDate, &labels, &t.Priority, &t.Duration, &t.DurationUnit,
			&t.Completed, &t.URL, &state); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		if labels != "" {
			if err := json.Unmarshal([]byte(labels), &t.Labels); err != nil {
				return nil, fmt.Errorf("failed to decode labels for %s: %w", t.ID, err)
			}
		}
		t.SyncState = task.SyncState(state)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// RecordEvent stores a processed activity event id permanently.
func (r *Repository) RecordEvent(e task.Event) error {
	query := `INSERT OR IGNORE INTO events (id, object_type, event_type, object_id)
		VALUES (?, ?, ?, ?)`
	_, err := r.db.Exec(query, e.ID, e.ObjectType, e.EventType, e.ObjectID)
	if err != nil {
		return fmt.Errorf("failed to record event %s: %w", e.ID, err)
	}
	return nil
}

// ListEvents loads every processed event.
func (r *Repository) ListEvents() ([]task.Event, error) {
	rows, err := r.db.Query(`SELECT id, object_type, event_type, object_id FROM events`)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []task.Event
	for rows.Next() {
		var e task.Event
		if err := rows.Scan(&e.ID, &e.ObjectType, &e.EventType, &e.ObjectID); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// UpsertMetadata writes a per-document metadata row.
func (r *Repository) UpsertMetadata(path string, m task.FileMetadata) error {
	ids, err := json.Marshal(m.TaskIDs)
	if err != nil {
		return fmt.Errorf("failed to encode task ids: %w", err)
	}
	query := `INSERT INTO file_metadata
		(path, task_ids, task_count, default_project_id, default_project_name)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
		 task_ids=excluded.task_ids, task_count=excluded.task_count,
		 default_project_id=excluded.default_project_id,
		 default_project_name=excluded.default_project_name`
	_, err = r.db.Exec(query, path, string(ids), m.Count, m.DefaultProjectID, m.DefaultProjectName)
	if err != nil {
		return fmt.Errorf("failed to upsert metadata for %s: %w", path, err)
	}
	return nil
}

// DeleteMetadata removes a document's metadata row.
func (r *Repository) DeleteMetadata(path string) error {
	if _, err := r.db.Exec(`DELETE FROM file_metadata WHERE path = ?`, path); err != nil {
		return fmt.Errorf("failed to delete metadata for %s: %w", path, err)
	}
	return nil
}

// ListMetadata loads every document metadata row keyed by path.
func (r *Repository) ListMetadata() (map[string]task.FileMetadata, error) {
	rows, err := r.db.Query(`SELECT path, task_ids, task_count,
		default_project_id, default_project_name FROM file_metadata`)
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}
	defer rows.Close()

	out := make(map[string]task.FileMetadata)
	for rows.Next() {
		var path, ids string
		var m task.FileMetadata
		if err := rows.Scan(&path, &ids, &m.Count, &m.DefaultProjectID, &m.DefaultProjectName); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		if err := json.Unmarshal([]byte(ids), &m.TaskIDs); err != nil {
			return nil, fmt.Errorf("failed to decode task ids for %s: %w", path, err)
		}
		out[path] = m
	}
	return out, rows.Err()
}

// UpsertProject stores a project name mapping.
func (r *Repository) UpsertProject(p task.Project) error {
	query := `INSERT INTO projects (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name`
	if _, err := r.db.Exec(query, p.ID, p.Name); err != nil {
		return fmt.Errorf("failed to upsert project %s: %w", p.ID, err)
	}
	return nil
}

// ListProjects loads every cached project.
func (r *Repository) ListProjects() ([]task.Project, error) {
	rows, err := r.db.Query(`SELECT id, name FROM projects`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var out []task.Project
	for rows.Next() {
		var p task.Project
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertSection stores a section mapping.
func (r *Repository) UpsertSection(s task.Section) error {
	query := `INSERT INTO sections (id, name, project_id) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, project_id=excluded.project_id`
	if _, err := r.db.Exec(query, s.ID, s.Name, s.ProjectID); err != nil {
		return fmt.Errorf("failed to upsert section %s: %w", s.ID, err)
	}
	return nil
}

// ListSections loads every cached section.
func (r *Repository) ListSections() ([]task.Section, error) {
	rows, err := r.db.Query(`SELECT id, name, project_id FROM sections`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sections: %w", err)
	}
	defer rows.Close()

	var out []task.Section
	for rows.Next() {
		var s task.Section
		if err := rows.Scan(&s.ID, &s.Name, &s.ProjectID); err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RenameFile repoints every task row and the metadata row at the new path.
func (r *Repository) RenameFile(oldPath, newPath string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin rename tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE tasks SET path = ? WHERE path = ?`, newPath, oldPath); err != nil {
		return fmt.Errorf("failed to repoint tasks: %w", err)
	}
	if err := renameMetadataTx(tx, oldPath, newPath); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rename: %w", err)
	}
	return nil
}

func renameMetadataTx(tx *sql.Tx, oldPath, newPath string) error {
	// A leftover row at the new path would violate the primary key.
	if _, err := tx.Exec(`DELETE FROM file_metadata WHERE path = ?`, newPath); err != nil {
		return fmt.Errorf("failed to clear metadata at %s: %w", newPath, err)
	}
	if _, err := tx.Exec(`UPDATE file_metadata SET path = ? WHERE path = ?`, newPath, oldPath); err != nil {
		return fmt.Errorf("failed to repoint metadata: %w", err)
	}
	return nil
}
