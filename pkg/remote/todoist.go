package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mklimuk/task-pilot/pkg/logging"
	"github.com/mklimuk/task-pilot/pkg/task"
)

const todoistDefaultBaseURL = "https://todoist.com/api/v1"

// Client ids reported by the activity log for changes made through this
// service; events carrying them are dropped during the remote pull so our own
// writes never echo back.
var ownClientPrefixes = []string{"task-pilot", "obsidian-todoist-sync"}

// TodoistClient implements Service against the Todoist REST API v1.
type TodoistClient struct {
	httpClient *http.Client
	token      string
	baseURL    string
	clientID   string
	log        zerolog.Logger
}

// Ensure TodoistClient implements Service.
var _ Service = (*TodoistClient)(nil)

// NewTodoistClient creates a new Todoist API client. Each client instance
// carries a stable request id header so the activity log can attribute our
// own writes.
func NewTodoistClient(token, baseURL string) *TodoistClient {
	if baseURL == "" {
		baseURL = todoistDefaultBaseURL
	}
	return &TodoistClient{
		httpClient: &http.Client{},
		token:      token,
		baseURL:    baseURL,
		clientID:   "task-pilot-" + uuid.NewString(),
		log:        logging.Component("todoist"),
	}
}

// OwnClient reports whether the given activity-log client id belongs to this
// integration.
func OwnClient(client string) bool {
	for _, p := range ownClientPrefixes {
		if len(client) >= len(p) && client[:len(p)] == p {
			return true
		}
	}
	return false
}

// CreateTask creates a remote task. A datetime supersedes a bare date, empty
// section and parent ids are dropped, and a zero duration drops its unit.
func (c *TodoistClient) CreateTask(ctx context.Context, t NewTask) (*task.Task, error) {
	if t.DueDatetime != "" {
		t.DueDate = ""
	}
	if t.Duration == 0 {
		t.DurationUnit = ""
	}

	var created task.Task
	if err := c.do(ctx, http.MethodPost, "/tasks", t, &created); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return &created, nil
}

// UpdateTask applies a partial update and classifies the outcome into the
// three-state result the modification pass expands on.
func (c *TodoistClient) UpdateTask(ctx context.Context, id string, u TaskUpdate) (UpdateResult, error) {
	if u.DueDatetime != "" {
		u.DueDate = ""
	}
	if u.Duration == 0 {
		u.DurationUnit = ""
	}
	if u.IsZero() {
		return UpdateResult{Status: StatusFatal}, fmt.Errorf("update for task %s carries no field", id)
	}

	var updated task.Task
	err := c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id), u, &updated)
	switch {
	case err == nil:
		return UpdateResult{Status: StatusOK, Task: &updated}, nil
	case isNotFound(err):
		return UpdateResult{Status: StatusNotFound}, nil
	default:
		return UpdateResult{Status: StatusFatal}, fmt.Errorf("failed to update task %s: %w", id, err)
	}
}

// CloseTask marks the remote task completed.
func (c *TodoistClient) CloseTask(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/close", nil, nil); err != nil {
		return fmt.Errorf("failed to close task %s: %w", id, err)
	}
	return nil
}

// ReopenTask marks the remote task uncompleted.
func (c *TodoistClient) ReopenTask(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/reopen", nil, nil); err != nil {
		return fmt.Errorf("failed to reopen task %s: %w", id, err)
	}
	return nil
}

// DeleteTask removes the remote task.
func (c *TodoistClient) DeleteTask(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

// GetTask fetches the current remote record.
func (c *TodoistClient) GetTask(ctx context.Context, id string) (*task.Task, error) {
	var t task.Task
	err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, &t)
	if isNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return &t, nil
}

// CreateProject creates a remote project.
func (c *TodoistClient) CreateProject(ctx context.Context, name string) (*task.Project, error) {
	var p task.Project
	body := map[string]string{"name": name}
	if err := c.do(ctx, http.MethodPost, "/projects", body, &p); err != nil {
		return nil, fmt.Errorf("failed to create project %q: %w", name, err)
	}
	return &p, nil
}

// CreateSection creates a section inside a project.
func (c *TodoistClient) CreateSection(ctx context.Context, name, projectID string) (*task.Section, error) {
	var s task.Section
	body := map[string]string{"name": name, "project_id": projectID}
	if err := c.do(ctx, http.MethodPost, "/sections", body, &s); err != nil {
		return nil, fmt.Errorf("failed to create section %q: %w", name, err)
	}
	return &s, nil
}

// listResponse is the paginated envelope of the v1 listing endpoints.
type listResponse[T any] struct {
	Results    []T    `json:"results"`
	NextCursor string `json:"next_cursor"`
}

// ListProjects fetches every project, following pagination cursors.
func (c *TodoistClient) ListProjects(ctx context.Context) ([]task.Project, error) {
	return listAll[task.Project](ctx, c, "/projects")
}

// ListSections fetches every section, following pagination cursors.
func (c *TodoistClient) ListSections(ctx context.Context) ([]task.Section, error) {
	return listAll[task.Section](ctx, c, "/sections")
}

// ActivityEvents fetches the recent activity log page.
func (c *TodoistClient) ActivityEvents(ctx context.Context) ([]task.Event, error) {
	var resp listResponse[task.Event]
	if err := c.do(ctx, http.MethodGet, "/activities?limit=100", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch activity log: %w", err)
	}
	return resp.Results, nil
}

func listAll[T any](ctx context.Context, c *TodoistClient, path string) ([]T, error) {
	var out []T
	cursor := ""
	for {
		p := path
		if cursor != "" {
			p += "?cursor=" + url.QueryEscape(cursor)
		}
		var resp listResponse[T]
		if err := c.do(ctx, http.MethodGet, p, nil, &resp); err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", path, err)
		}
		out = append(out, resp.Results...)
		if resp.NextCursor == "" {
			return out, nil
		}
		cursor = resp.NextCursor
	}
}

// apiError carries the HTTP status so callers can classify outcomes.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("todoist API error (status %d): %s", e.status, e.body)
}

func isNotFound(err error) bool {
	ae, ok := err.(*apiError)
	return ok && ae.status == http.StatusNotFound
}

func (c *TodoistClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-Request-Id", c.clientID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apiError{status: resp.StatusCode, body: string(respBytes)}
	}

	if out == nil || len(respBytes) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBytes, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
