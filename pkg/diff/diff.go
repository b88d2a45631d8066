// Package diff compares a freshly parsed task line against the cached remote
// record and produces the smallest update payload that reconciles them.
package diff

import (
	"sort"
	"strings"

	"github.com/mklimuk/task-pilot/pkg/codec"
	"github.com/mklimuk/task-pilot/pkg/remote"
	"github.com/mklimuk/task-pilot/pkg/task"
)

// SectionNamer resolves a section id to its name. The comparison happens on
// names because the line side only ever carries a name.
type SectionNamer interface {
	SectionNameByID(id string) (string, bool)
}

// ProjectNamer resolves a project id to its name for change reporting.
type ProjectNamer interface {
	ProjectNameByID(id string) (string, bool)
}

// Result enumerates every detected difference. Update carries only the
// pushable fields; project and parent moves are recorded but never pushed,
// the caller updates the cache and surfaces a notice instead.
type Result struct {
	ContentChanged  bool
	StatusChanged   bool
	DueDateChanged  bool
	DueTimeChanged  bool
	LabelsChanged   bool
	PriorityChanged bool
	DurationChanged bool
	SectionChanged  bool
	DeadlineChanged bool
	ProjectChanged  bool
	ParentChanged   bool

	// NewSectionName is set when SectionChanged; the caller resolves or
	// creates the section before issuing the move.
	NewSectionName string

	Update remote.TaskUpdate
	Labels []string
}

// Pushable reports whether anything must be sent to the remote service.
func (r Result) Pushable() bool {
	return !r.Update.IsZero() || r.SectionChanged
}

// Changed reports whether any difference at all was detected, including the
// cache-only ones.
func (r Result) Changed() bool {
	return r.Pushable() || r.StatusChanged || r.ProjectChanged || r.ParentChanged
}

// Describe renders the detected changes for log lines and notifications.
func (r Result) Describe() string {
	var parts []string
	add := func(cond bool, name string) {
		if cond {
			parts = append(parts, name)
		}
	}
	add(r.ContentChanged, "content")
	add(r.StatusChanged, "status")
	add(r.DueDateChanged, "due date")
	add(r.DueTimeChanged, "due time")
	add(r.LabelsChanged, "labels")
	add(r.PriorityChanged, "priority")
	add(r.DurationChanged, "duration")
	add(r.SectionChanged, "section")
	add(r.DeadlineChanged, "deadline")
	add(r.ProjectChanged, "project (local only)")
	add(r.ParentChanged, "parent (local only)")
	return strings.Join(parts, ", ")
}

// Detector compares parsed lines against cached records.
type Detector struct {
	sections SectionNamer
	projects ProjectNamer
}

// New returns a detector backed by the given name resolvers.
func New(sections SectionNamer, projects ProjectNamer) *Detector {
	return &Detector{sections: sections, projects: projects}
}

// Detect compares the parsed line against the cached record field by field
// and assembles the minimal update. Fields absent from the line are left
// alone; this API has no clear operation.
func (d *Detector) Detect(parsed codec.ParsedTask, cached task.Task) Result {
	var r Result

	if !contentEqual(parsed.Content, cached.Content) {
		r.ContentChanged = true
		r.Update.Content = parsed.Content
	}

	// Completion drives dedicated close and reopen calls, never the
	// generic update.
	if parsed.Completed != cached.Completed {
		r.StatusChanged = true
	}

	d.detectDue(parsed, cached, &r)

	if !labelsEqual(parsed.Labels, cached.Labels) {
		r.LabelsChanged = true
		r.Update.Labels = parsed.Labels
		r.Labels = parsed.Labels
	}

	if parsed.Priority != 0 && parsed.Priority != cached.Priority {
		r.PriorityChanged = true
		r.Update.Priority = parsed.Priority
	}

	// A duration difference only counts when both sides carry an amount;
	// the service cannot clear a duration through a partial update.
	if parsed.Duration > 0 && cached.Duration > 0 && parsed.Duration != cached.Duration {
		r.DurationChanged = true
		r.Update.Duration = parsed.Duration
		r.Update.DurationUnit = task.DurationMinute
	}

	d.detectSection(parsed, cached, &r)

	if deadlineChanged(parsed.DeadlineDate, cached.DeadlineDate) {
		r.DeadlineChanged = true
		r.Update.DeadlineDate = parsed.DeadlineDate
	}

	// Project and parent are compared for reporting only. Moving a task
	// between projects or under a new parent is not supported remotely,
	// so these differences update the cache and surface a notice once.
	if parsed.ProjectID != "" && cached.ProjectID != "" && parsed.ProjectID != cached.ProjectID {
		r.ProjectChanged = true
	}
	if parsed.ParentID != cached.ParentID {
		r.ParentChanged = true
	}

	return r
}

// detectDue compares the date and the clock time independently. A line with
// only a date never reports a time change and the other way round; when both
// are present each component is checked on its own.
func (d *Detector) detectDue(parsed codec.ParsedTask, cached task.Task, r *Result) {
	cachedDue := cached.DueDatetime
	if cachedDue == "" {
		cachedDue = cached.DueDate
	}
	cachedDate := codec.DateOf(cachedDue)
	cachedTime := codec.TimeOf(cachedDue)

	switch {
	case parsed.HasDueDate && !parsed.HasDueTime:
		if parsed.DueDate != cachedDate {
			r.DueDateChanged = true
			r.Update.DueDate = parsed.DueDate
		}
	case parsed.HasDueTime && !parsed.HasDueDate:
		if codec.TimeOf(parsed.DueDatetime) != cachedTime {
			r.DueTimeChanged = true
			r.Update.DueDatetime = parsed.DueDatetime
		}
	case parsed.HasDueDate && parsed.HasDueTime:
		if codec.DateOf(parsed.DueDatetime) != cachedDate {
			r.DueDateChanged = true
		}
		if codec.TimeOf(parsed.DueDatetime) != cachedTime {
			r.DueTimeChanged = true
		}
		if r.DueDateChanged || r.DueTimeChanged {
			r.Update.DueDatetime = parsed.DueDatetime
		}
	}
}

// detectSection resolves the cached section id to a name first; an empty
// section on the line side is never treated as a removal.
func (d *Detector) detectSection(parsed codec.ParsedTask, cached task.Task, r *Result) {
	if parsed.SectionName == "" {
		return
	}
	cachedName := ""
	if cached.SectionID != "" {
		if name, ok := d.sections.SectionNameByID(cached.SectionID); ok {
			cachedName = name
		}
	}
	if parsed.SectionName != cachedName {
		r.SectionChanged = true
		r.NewSectionName = parsed.SectionName
	}
}

// contentEqual ignores every whitespace difference; token removal and
// re-insertion shuffle spaces around without changing meaning.
func contentEqual(a, b string) bool {
	return stripSpace(a) == stripSpace(b)
}

func stripSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// labelsEqual treats the two slices as sets.
func labelsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// deadlineChanged treats two empty deadlines as equal and anything else as a
// plain string comparison; both sides are already normalized to YYYY-MM-DD.
func deadlineChanged(line, cached string) bool {
	if line == "" && cached == "" {
		return false
	}
	if line == "" {
		// No clear operation exists; a vanished deadline stays remote.
		return false
	}
	return line != cached
}
