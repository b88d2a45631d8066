package codec

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/task-pilot/pkg/task"
)

type stubResolver struct {
	tasks    map[string]task.Task
	projects map[string]string // name -> id
	defaults map[string]string // path -> project id
}

func (s *stubResolver) TaskByID(id string) (task.Task, bool) {
	t, ok := s.tasks[id]
	return t, ok
}

func (s *stubResolver) ProjectIDByName(name string) (string, bool) {
	id, ok := s.projects[name]
	return id, ok
}

func (s *stubResolver) ProjectNameByID(id string) (string, bool) {
	for name, pid := range s.projects {
		if pid == id {
			return name, true
		}
	}
	return "", false
}

func (s *stubResolver) DefaultProjectID(path string) string {
	return s.defaults[path]
}

func fixedNow() time.Time {
	return time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)
}

func testCodec(t *testing.T, resolver Resolver) *Codec {
	t.Helper()
	return New(Options{
		Tag:                 "#tdsync",
		AlternativeKeywords: true,
		VaultName:           "vault",
		Now:                 fixedNow,
	}, resolver)
}

func TestIsTaskLine(t *testing.T) {
	c := testCodec(t, nil)

	assert.True(t, c.IsTaskLine("- [ ] buy milk #tdsync"))
	assert.True(t, c.IsTaskLine("\t- [x] done thing #tdsync"))
	assert.True(t, c.IsTaskLine("* [ ] star bullet #tdsync"))
	assert.False(t, c.IsTaskLine("- [ ] bare checkbox"))
	assert.False(t, c.IsTaskLine("plain text #tdsync"))
	assert.False(t, c.IsTaskLine("- [ ] other tag #tdsynced extra"))
}

func TestIdentifierExtraction(t *testing.T) {
	c := testCodec(t, nil)

	line := "- [ ] buy milk #tdsync %%[tid:: [6X7rM8997g3RQmvh](https://app.todoist.com/app/task/6X7rM8997g3RQmvh)]%%"
	assert.True(t, c.HasIdentifier(line))
	assert.Equal(t, "6X7rM8997g3RQmvh", c.Identifier(line))

	appLine := "- [ ] buy milk #tdsync %%[tid:: [abc123](todoist://task?id=abc123)]%%"
	assert.Equal(t, "abc123", c.Identifier(appLine))

	assert.False(t, c.HasIdentifier("- [ ] buy milk #tdsync"))
}

func TestStaleIdentifier(t *testing.T) {
	c := testCodec(t, nil)

	assert.True(t, c.IsStaleIdentifier("7812345690"))
	assert.False(t, c.IsStaleIdentifier("6X7rM8997g3RQmvh"))
	assert.False(t, c.IsStaleIdentifier(""))
}

func TestParseContentStripping(t *testing.T) {
	c := testCodec(t, nil)

	line := "- [ ] write report 🗓️2025-04-01 ⏰14:30 ⏳45min !!2 ///Drafts #work #tdsync {{04-10}}"
	p := c.Parse(line, "notes/today.md", 0, "")

	assert.Equal(t, "write report", p.Content)
	assert.Equal(t, "2025-04-01", p.DueDate)
	assert.Equal(t, "2025-04-01T14:30:00", p.DueDatetime)
	assert.Equal(t, 45, p.Duration)
	assert.Equal(t, task.DurationMinute, p.DurationUnit)
	assert.Equal(t, 3, p.Priority) // !!2 inverts to 3
	assert.Equal(t, "Drafts", p.SectionName)
	assert.Equal(t, []string{"work"}, p.Labels)
	assert.Equal(t, "2025-04-10", p.DeadlineDate)
	assert.False(t, p.Completed)
}

func TestParseIndentedCheckboxStripped(t *testing.T) {
	c := testCodec(t, nil)

	spaced := c.Parse("  - [ ] buy milk #tdsync", "a.md", 0, "")
	assert.Equal(t, "buy milk", spaced.Content)

	tabbed := c.Parse("\t- [x] done thing #tdsync", "a.md", 0, "")
	assert.Equal(t, "done thing", tabbed.Content)
	assert.True(t, tabbed.Completed)
}

func TestParseSyncTagNotALabel(t *testing.T) {
	c := testCodec(t, nil)

	p := c.Parse("- [ ] thing #home #tdsync", "a.md", 0, "")
	assert.Equal(t, []string{"home"}, p.Labels)
}

func TestParseEmptyContentFallsBackToDocumentName(t *testing.T) {
	c := testCodec(t, nil)

	p := c.Parse("- [ ] #tdsync", "notes/Groceries.md", 0, "")
	assert.Equal(t, "Groceries", p.Content)
}

func TestParsePriorityInversion(t *testing.T) {
	c := testCodec(t, nil)

	cases := map[string]int{
		"- [ ] a !!1 #tdsync": 4,
		"- [ ] a !!2 #tdsync": 3,
		"- [ ] a !!3 #tdsync": 2,
		"- [ ] a !!4 #tdsync": 1,
	}
	for line, want := range cases {
		p := c.Parse(line, "a.md", 0, "")
		assert.Equal(t, want, p.Priority, line)
	}

	// no marker defaults to lowest urgency
	p := c.Parse("- [ ] a #tdsync", "a.md", 0, "")
	assert.Equal(t, 1, p.Priority)
}

func TestParseDueShapes(t *testing.T) {
	c := testCodec(t, nil)

	t.Run("date only", func(t *testing.T) {
		p := c.Parse("- [ ] a 🗓️2025-04-01 #tdsync", "a.md", 0, "")
		assert.True(t, p.HasDueDate)
		assert.False(t, p.HasDueTime)
		assert.Equal(t, "2025-04-01", p.DueDate)
		assert.Empty(t, p.DueDatetime)
		assert.False(t, p.NeedsDateStamp)
	})

	t.Run("date and time", func(t *testing.T) {
		p := c.Parse("- [ ] a 🗓️2025-04-01 ⏰9:05 #tdsync", "a.md", 0, "")
		assert.True(t, p.HasDueDate)
		assert.True(t, p.HasDueTime)
		assert.Equal(t, "2025-04-01T09:05:00", p.DueDatetime)
	})

	t.Run("time only combines with today", func(t *testing.T) {
		p := c.Parse("- [ ] a ⏰16:00 #tdsync", "a.md", 0, "")
		assert.False(t, p.HasDueDate)
		assert.True(t, p.HasDueTime)
		assert.Equal(t, "2025-03-14T16:00:00", p.DueDatetime)
		assert.True(t, p.NeedsDateStamp)
	})

	t.Run("double digit day kept whole", func(t *testing.T) {
		p := c.Parse("- [ ] a 🗓️2025-04-28 #tdsync", "a.md", 0, "")
		assert.Equal(t, "2025-04-28", p.DueDate)
		assert.Equal(t, "a", p.Content)

		timed := c.Parse("- [ ] a 🗓️2025-04-15 ⏰9:00 #tdsync", "a.md", 0, "")
		assert.Equal(t, "2025-04-15T09:00:00", timed.DueDatetime)
	})

	t.Run("two digit year expands", func(t *testing.T) {
		p := c.Parse("- [ ] a 🗓️25-4-1 #tdsync", "a.md", 0, "")
		assert.Equal(t, "2025-04-01", p.DueDate)
	})

	t.Run("alternative keyword", func(t *testing.T) {
		p := c.Parse("- [ ] a @2025-04-01 #tdsync", "a.md", 0, "")
		assert.Equal(t, "2025-04-01", p.DueDate)
	})

	t.Run("calendar token without date warns", func(t *testing.T) {
		p := c.Parse("- [ ] a 🗓️tomorrow #tdsync", "a.md", 0, "")
		assert.False(t, p.HasDueDate)
		assert.NotEmpty(t, p.Warnings)
	})

	t.Run("impossible time rejected", func(t *testing.T) {
		p := c.Parse("- [ ] a ⏰25:00 #tdsync", "a.md", 0, "")
		assert.False(t, p.HasDueTime)
		assert.NotEmpty(t, p.Warnings)
	})
}

func TestParseDurationLimits(t *testing.T) {
	c := testCodec(t, nil)

	p := c.Parse("- [ ] a ⏳90min #tdsync", "a.md", 0, "")
	assert.Equal(t, 90, p.Duration)

	over := c.Parse("- [ ] a ⏳1500min #tdsync", "a.md", 0, "")
	assert.Zero(t, over.Duration)
	assert.NotEmpty(t, over.Warnings)

	alt := c.Parse("- [ ] a &30min #tdsync", "a.md", 0, "")
	assert.Equal(t, 30, alt.Duration)
}

func TestParseDeadlineFormats(t *testing.T) {
	c := testCodec(t, nil)

	full := c.Parse("- [ ] a {{2025-12-31}} #tdsync", "a.md", 0, "")
	assert.Equal(t, "2025-12-31", full.DeadlineDate)

	short := c.Parse("- [ ] a {{25-12-31}} #tdsync", "a.md", 0, "")
	assert.Equal(t, "2025-12-31", short.DeadlineDate)

	md := c.Parse("- [ ] a {{12-31}} #tdsync", "a.md", 0, "")
	assert.Equal(t, "2025-12-31", md.DeadlineDate)

	bad := c.Parse("- [ ] a {{soon}} #tdsync", "a.md", 0, "")
	assert.Empty(t, bad.DeadlineDate)
	assert.NotEmpty(t, bad.Warnings)
}

func TestFindParent(t *testing.T) {
	resolver := &stubResolver{
		tasks: map[string]task.Task{
			"parent1": {ID: "parent1", ProjectID: "projA"},
		},
		projects: map[string]string{"Alpha": "projA"},
	}
	c := testCodec(t, resolver)

	doc := "- [ ] parent #tdsync %%[tid:: [parent1](https://app.todoist.com/app/task/parent1)]%%\n" +
		"\t- [ ] child #tdsync"
	p := c.Parse("\t- [ ] child #tdsync", "a.md", 1, doc)
	assert.Equal(t, "parent1", p.ParentID)
	// parent project is inherited unconditionally
	assert.Equal(t, "projA", p.ProjectID)
}

func TestFindParentStopsAtBlankLine(t *testing.T) {
	c := testCodec(t, nil)

	doc := "- [ ] parent #tdsync %%[tid:: [parent1](https://app.todoist.com/app/task/parent1)]%%\n" +
		"\n" +
		"\t- [ ] child #tdsync"
	p := c.Parse("\t- [ ] child #tdsync", "a.md", 2, doc)
	assert.Empty(t, p.ParentID)
}

func TestProjectPrecedence(t *testing.T) {
	resolver := &stubResolver{
		tasks:    map[string]task.Task{},
		projects: map[string]string{"Alpha": "projA", "work": "projW"},
		defaults: map[string]string{"a.md": "projD"},
	}
	c := testCodec(t, resolver)

	t.Run("project comment wins over label", func(t *testing.T) {
		p := c.Parse("- [ ] x %%[p:: Alpha]%% #work #tdsync", "a.md", 0, "")
		assert.Equal(t, "projA", p.ProjectID)
		assert.Equal(t, "Alpha", p.ProjectName)
	})

	t.Run("label naming a project", func(t *testing.T) {
		p := c.Parse("- [ ] x #work #tdsync", "a.md", 0, "")
		assert.Equal(t, "projW", p.ProjectID)
	})

	t.Run("document default", func(t *testing.T) {
		p := c.Parse("- [ ] x #tdsync", "a.md", 0, "")
		assert.Equal(t, "projD", p.ProjectID)
	})
}

func TestDocumentBacklink(t *testing.T) {
	c := testCodec(t, nil)

	desc := c.DocumentBacklink("notes/plan & do.md")
	assert.Contains(t, desc, "obsidian://open?vault=vault")
	assert.Contains(t, desc, "notes%2Fplan+%26+do.md")
	assert.Contains(t, desc, "[notes/plan & do.md]")
}

func TestSerializeIdentifierLink(t *testing.T) {
	c := testCodec(t, nil)

	line := "- [ ] buy milk #tdsync"
	out := c.AddIdentifierLink(line, "abc123")
	assert.True(t, c.HasIdentifier(out))
	assert.Equal(t, "abc123", c.Identifier(out))

	// idempotent
	assert.Equal(t, out, c.AddIdentifierLink(out, "other"))

	stripped := c.RemoveIdentifierLink(out)
	assert.False(t, c.HasIdentifier(stripped))
	assert.Equal(t, line, stripped)
}

func TestSerializeLinkBeforeDate(t *testing.T) {
	c := New(Options{Tag: "#tdsync", DateBeforeTag: true, Now: fixedNow}, nil)

	line := "- [ ] buy milk 🗓️2025-04-01 #tdsync"
	out := c.AddIdentifierLink(line, "abc123")
	require.True(t, c.HasIdentifier(out))
	assert.Less(t, strings.Index(out, "%%[tid"), strings.Index(out, "🗓️"))
}

func TestSerializeCheckboxToggles(t *testing.T) {
	c := testCodec(t, nil)

	line := "\t- [ ] indented task #tdsync"
	done := c.MarkComplete(line)
	assert.Equal(t, "\t- [x] indented task #tdsync", done)
	assert.Equal(t, line, c.MarkIncomplete(done))
}

func TestSerializeMissingFlag(t *testing.T) {
	c := testCodec(t, nil)

	line := "- [ ] gone task"
	flagged := c.AddMissingFlag(line)
	assert.True(t, c.HasMissingFlag(flagged))
	assert.Equal(t, line, c.RemoveMissingFlag(flagged))
}

func TestSerializeStampDate(t *testing.T) {
	c := testCodec(t, nil)

	line := "- [ ] call ⏰16:00 #tdsync"
	out := c.StampDate(line, "2025-03-14", "16:00")
	assert.Equal(t, "- [ ] call 🗓️2025-03-14 ⏰16:00 #tdsync", out)

	// re-parse is stable: the stamped line is a date+time shape
	p := c.Parse(out, "a.md", 0, "")
	assert.True(t, p.HasDueDate)
	assert.True(t, p.HasDueTime)
	assert.False(t, p.NeedsDateStamp)
}

func TestSerializeDueDateEdits(t *testing.T) {
	c := testCodec(t, nil)

	line := "- [ ] a 🗓️2025-04-01 #tdsync"
	replaced := c.ReplaceDueDate(line, "2025-04-01", "2025-05-02")
	assert.Contains(t, replaced, "2025-05-02")

	removed := c.RemoveDueDate(line)
	assert.NotContains(t, removed, "2025-04-01")
	assert.Contains(t, removed, "#tdsync")

	inserted := c.InsertDueDate("- [ ] a #tdsync", "2025-06-01")
	p := c.Parse(inserted, "a.md", 0, "")
	assert.Equal(t, "2025-06-01", p.DueDate)
}

func TestNoteLineIndentsUnderParent(t *testing.T) {
	c := testCodec(t, nil)

	note := c.NoteLine("\t- [ ] parent #tdsync", "2025-03-14", "a remote comment")
	assert.Equal(t, "\t\t- 2025-03-14 a remote comment", note)
}

func TestNormalizeDueDate(t *testing.T) {
	cases := map[string]string{
		"2025-04-01": "2025-04-01",
		"25-4-1":     "2025-04-01",
		"25-12-09":   "2025-12-09",
	}
	for in, want := range cases {
		got, err := normalizeDueDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := normalizeDueDate("not a date")
	assert.Error(t, err)
}

func TestDateTimeSplitters(t *testing.T) {
	assert.Equal(t, "2025-04-01", DateOf("2025-04-01T14:30:00"))
	assert.Equal(t, "2025-04-01", DateOf("2025-04-01"))
	assert.Equal(t, "14:30:00", TimeOf("2025-04-01T14:30:00"))
	assert.Empty(t, TimeOf("2025-04-01"))
}
