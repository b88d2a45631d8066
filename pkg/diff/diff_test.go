package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mklimuk/task-pilot/pkg/codec"
	"github.com/mklimuk/task-pilot/pkg/task"
)

type stubNames struct {
	sections map[string]string
	projects map[string]string
}

func (s *stubNames) SectionNameByID(id string) (string, bool) {
	n, ok := s.sections[id]
	return n, ok
}

func (s *stubNames) ProjectNameByID(id string) (string, bool) {
	n, ok := s.projects[id]
	return n, ok
}

func testDetector() *Detector {
	names := &stubNames{
		sections: map[string]string{"sec1": "Drafts"},
		projects: map[string]string{"projA": "Alpha"},
	}
	return New(names, names)
}

func parsedWith(fn func(*codec.ParsedTask)) codec.ParsedTask {
	p := codec.ParsedTask{}
	p.Content = "write report"
	p.Priority = 1
	fn(&p)
	return p
}

func cachedTask() task.Task {
	return task.Task{
		ID:       "t1",
		Content:  "write report",
		Priority: 1,
	}
}

func TestNoChanges(t *testing.T) {
	d := testDetector()
	r := d.Detect(parsedWith(func(p *codec.ParsedTask) {}), cachedTask())
	assert.False(t, r.Changed())
	assert.True(t, r.Update.IsZero())
}

func TestContentIgnoresWhitespace(t *testing.T) {
	d := testDetector()
	r := d.Detect(parsedWith(func(p *codec.ParsedTask) {
		p.Content = "write  report"
	}), cachedTask())
	assert.False(t, r.ContentChanged)

	r = d.Detect(parsedWith(func(p *codec.ParsedTask) {
		p.Content = "write new report"
	}), cachedTask())
	assert.True(t, r.ContentChanged)
	assert.Equal(t, "write new report", r.Update.Content)
}

func TestStatusChangeIsNotPushable(t *testing.T) {
	d := testDetector()
	r := d.Detect(parsedWith(func(p *codec.ParsedTask) {
		p.Completed = true
	}), cachedTask())
	assert.True(t, r.StatusChanged)
	assert.True(t, r.Update.IsZero())
	assert.True(t, r.Changed())
}

func TestLabelsAsSets(t *testing.T) {
	d := testDetector()
	cached := cachedTask()
	cached.Labels = []string{"home", "work"}

	same := d.Detect(parsedWith(func(p *codec.ParsedTask) {
		p.Labels = []string{"work", "home"}
	}), cached)
	assert.False(t, same.LabelsChanged)

	diffed := d.Detect(parsedWith(func(p *codec.ParsedTask) {
		p.Labels = []string{"work"}
	}), cached)
	assert.True(t, diffed.LabelsChanged)
	assert.Equal(t, []string{"work"}, diffed.Update.Labels)
}

func TestDueDateOnly(t *testing.T) {
	d := testDetector()
	cached := cachedTask()
	cached.DueDate = "2025-04-01"

	same := d.Detect(parsedWith(func(p *codec.ParsedTask) {
		p.HasDueDate = true
		p.DueDate = "2025-04-01"
	}), cached)
	assert.False(t, same.DueDateChanged)

	moved := d.Detect(parsedWith(func(p *codec.ParsedTask) {
		p.HasDueDate = true
		p.DueDate = "2025-05-02"
	}), cached)
	assert.True(t, moved.DueDateChanged)
	assert.False(t, moved.DueTimeChanged)
	assert.Equal(t, "2025-05-02", moved.Update.DueDate)
	assert.Empty(t, moved.Update.DueDatetime)
}

func TestDueDateOnlyAgainstCachedDatetime(t *testing.T) {
	d := testDetector()
	cached := cachedTask()
	cached.DueDatetime = "2025-04-01T14:30:00"

	// date component matches, the dropped time is not a date change
	same := d.Detect(parsedWith(func(p *codec.ParsedTask) {
		p.HasDueDate = true
		p.DueDate = "2025-04-01"
	}), cached)
	assert.False(t, same.DueDateChanged)
}

func TestDueTimeOnly(t *testing.T) {
	d := testDetector()
	cached := cachedTask()
	cached.DueDatetime = "2025-04-01T14:30:00"

	moved := d.Detect(parsedWith(func(p *codec.ParsedTask) {
		p.HasDueTime = true
		p.DueDatetime = "2025-04-01T16:00:00"
	}), cached)
	assert.True(t, moved.DueTimeChanged)
	assert.False(t, moved.DueDateChanged)
	assert.Equal(t, "2025-04-01T16:00:00", moved.Update.DueDatetime)
}

func TestDueBothComponentsIndependent(t *testing.T) {
	d := testDetector()
	cached := cachedTask()
	cached.DueDatetime = "2025-04-01T14:30:00"

	r := d.Detect(parsedWith(func(p *codec.ParsedTask) {
		p.HasDueDate = true
		p.HasDueTime = true
		p.DueDatetime = "2025-05-02T14:30:00"
	}), cached)
	assert.True(t, r.DueDateChanged)
	assert.False(t, r.DueTimeChanged)
	assert.Equal(t, "2025-05-02T14:30:00", r.Update.DueDatetime)
}

func TestDurationOnlyWhenBothPresent(t *testing.T) {
	d := testDetector()

	// cached side has no duration: line-side value is no change
	r := d.Detect(parsedWith(func(p *codec.ParsedTask) {
		p.Duration = 30
	}), cachedTask())
	assert.False(t, r.DurationChanged)

	cached := cachedTask()
	cached.Duration = 45
	cached.DurationUnit = task.DurationMinute
	r = d.Detect(parsedWith(func(p *codec.ParsedTask) {
		p.Duration = 30
	}), cached)
	assert.True(t, r.DurationChanged)
	assert.Equal(t, 30, r.Update.Duration)
	assert.Equal(t, task.DurationMinute, r.Update.DurationUnit)

	// vanished line-side duration is not a removal
	r = d.Detect(parsedWith(func(p *codec.ParsedTask) {}), cached)
	assert.False(t, r.DurationChanged)
}

func TestSectionComparedByName(t *testing.T) {
	d := testDetector()
	cached := cachedTask()
	cached.SectionID = "sec1"

	same := d.Detect(parsedWith(func(p *codec.ParsedTask) {
		p.SectionName = "Drafts"
	}), cached)
	assert.False(t, same.SectionChanged)

	moved := d.Detect(parsedWith(func(p *codec.ParsedTask) {
		p.SectionName = "Review"
	}), cached)
	assert.True(t, moved.SectionChanged)
	assert.Equal(t, "Review", moved.NewSectionName)

	// an empty line-side section is never a change
	empty := d.Detect(parsedWith(func(p *codec.ParsedTask) {}), cached)
	assert.False(t, empty.SectionChanged)
}

func TestDeadlineBothEmptyUnchanged(t *testing.T) {
	d := testDetector()

	r := d.Detect(parsedWith(func(p *codec.ParsedTask) {}), cachedTask())
	assert.False(t, r.DeadlineChanged)

	cached := cachedTask()
	cached.DeadlineDate = "2025-12-31"
	r = d.Detect(parsedWith(func(p *codec.ParsedTask) {
		p.DeadlineDate = "2026-01-15"
	}), cached)
	assert.True(t, r.DeadlineChanged)
	assert.Equal(t, "2026-01-15", r.Update.DeadlineDate)
}

func TestProjectMoveIsCacheOnly(t *testing.T) {
	d := testDetector()
	cached := cachedTask()
	cached.ProjectID = "projA"

	r := d.Detect(parsedWith(func(p *codec.ParsedTask) {
		p.ProjectID = "projB"
	}), cached)
	assert.True(t, r.ProjectChanged)
	assert.True(t, r.Update.IsZero())
	assert.True(t, r.Changed())
	assert.False(t, r.Pushable())
	assert.Contains(t, r.Describe(), "project (local only)")
}

func TestPriorityChange(t *testing.T) {
	d := testDetector()
	r := d.Detect(parsedWith(func(p *codec.ParsedTask) {
		p.Priority = 4
	}), cachedTask())
	assert.True(t, r.PriorityChanged)
	assert.Equal(t, 4, r.Update.Priority)
}
