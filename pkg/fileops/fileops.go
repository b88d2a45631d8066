// Package fileops performs targeted edits on vault documents: checking and
// unchecking boxes, rewriting tokens in place and replaying remote changes
// onto the owning line. Every operation funnels through the codec's line
// rewriters so documents never drift from the recognized grammar.
package fileops

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mklimuk/task-pilot/pkg/codec"
	"github.com/mklimuk/task-pilot/pkg/logging"
	"github.com/mklimuk/task-pilot/pkg/task"
	"github.com/mklimuk/task-pilot/pkg/vault"
)

// Locator resolves a task id to its cached record, used to find the owning
// document without scanning the whole vault.
type Locator interface {
	TaskByID(id string) (task.Task, bool)
}

// Editor applies line-level edits across the vault.
type Editor struct {
	store   *vault.Store
	codec   *codec.Codec
	locator Locator
	log     zerolog.Logger
}

// NewEditor creates an Editor.
func NewEditor(store *vault.Store, c *codec.Codec, locator Locator) *Editor {
	return &Editor{
		store:   store,
		codec:   c,
		locator: locator,
		log:     logging.Component("fileops"),
	}
}

// Line is one located task line.
type Line struct {
	Path   string
	Number int
	Text   string
}

// FindLine locates the line carrying the given task id. The cached path is
// tried first; a vault-wide scan is the fallback for lines that moved.
func (e *Editor) FindLine(id string) (Line, error) {
	if t, ok := e.locator.TaskByID(id); ok && t.Path != "" && e.store.Exists(t.Path) {
		if l, ok := e.findInFile(t.Path, id); ok {
			return l, nil
		}
	}
	docs, err := e.store.ListDocuments()
	if err != nil {
		return Line{}, err
	}
	for _, doc := range docs {
		if l, ok := e.findInFile(doc, id); ok {
			return l, nil
		}
	}
	return Line{}, fmt.Errorf("no line carries task %s", id)
}

func (e *Editor) findInFile(path, id string) (Line, bool) {
	lines, err := e.store.Lines(path)
	if err != nil {
		return Line{}, false
	}
	for i, line := range lines {
		if e.codec.Identifier(line) == id {
			return Line{Path: path, Number: i, Text: line}, true
		}
	}
	return Line{}, false
}

// rewrite locates the id-carrying line, applies fn and writes the result
// back. A no-op rewrite skips the write.
func (e *Editor) rewrite(id string, fn func(string) string) error {
	l, err := e.FindLine(id)
	if err != nil {
		return err
	}
	updated := fn(l.Text)
	if updated == l.Text {
		return nil
	}
	return e.store.ReplaceLine(l.Path, l.Number, updated)
}

// CompleteTask checks the box on the line carrying the given id.
func (e *Editor) CompleteTask(id string) error {
	return e.rewrite(id, e.codec.MarkComplete)
}

// UncompleteTask unchecks the box on the line carrying the given id.
func (e *Editor) UncompleteTask(id string) error {
	return e.rewrite(id, e.codec.MarkIncomplete)
}

// ApplyContentUpdate replays a remote content edit onto the line.
func (e *Editor) ApplyContentUpdate(id, oldContent, newContent string) error {
	return e.rewrite(id, func(line string) string {
		return e.codec.ReplaceContent(line, oldContent, newContent)
	})
}

// ApplyDueUpdate replays a remote due date change onto the line. A cleared
// remote date removes the token, a new date on a dateless line inserts one.
func (e *Editor) ApplyDueUpdate(id, oldDue, newDue string) error {
	return e.rewrite(id, func(line string) string {
		switch {
		case newDue == "":
			return e.codec.RemoveDueDate(line)
		case oldDue == "":
			return e.codec.InsertDueDate(line, codec.DateOf(newDue))
		default:
			return e.codec.ReplaceDueDate(line, codec.DateOf(oldDue), codec.DateOf(newDue))
		}
	})
}

// AppendNote inserts a remote comment as a child bullet under the line.
func (e *Editor) AppendNote(id, timestamp, note string) error {
	l, err := e.FindLine(id)
	if err != nil {
		return err
	}
	lines, err := e.store.Lines(l.Path)
	if err != nil {
		return err
	}
	noteLine := e.codec.NoteLine(l.Text, timestamp, note)
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:l.Number+1]...)
	out = append(out, noteLine)
	out = append(out, lines[l.Number+1:]...)
	return e.store.WriteLines(l.Path, out)
}

// FlagMissing marks a line whose remote task vanished: the missing marker is
// appended, the sync tag and identifier link are stripped so the line stops
// participating in sync until the user resolves it.
func (e *Editor) FlagMissing(id string) error {
	return e.rewrite(id, func(line string) string {
		line = e.codec.RemoveIdentifierLink(line)
		line = e.codec.RemoveSyncTag(line)
		return e.codec.AddMissingFlag(line)
	})
}

// StampDate writes the auto-combined current date back onto a time-only
// line so the next parse is stable.
func (e *Editor) StampDate(path string, lineNo int, date, timeOfDay string) error {
	lines, err := e.store.Lines(path)
	if err != nil {
		return err
	}
	if lineNo < 0 || lineNo >= len(lines) {
		return fmt.Errorf("line %d out of range in %s", lineNo, path)
	}
	updated := e.codec.StampDate(lines[lineNo], date, timeOfDay)
	if updated == lines[lineNo] {
		return nil
	}
	lines[lineNo] = updated
	return e.store.WriteLines(path, lines)
}

// MarkDocumentTasks appends the sync tag to every plain checkbox line in the
// document that carries neither the tag nor an identifier. Used by the
// whole-vault enrollment mode.
func (e *Editor) MarkDocumentTasks(path string) (int, error) {
	lines, err := e.store.Lines(path)
	if err != nil {
		return 0, err
	}
	marked := 0
	for i, line := range lines {
		if !e.codec.IsCheckboxLine(line) {
			continue
		}
		if e.codec.IsTaskLine(line) || e.codec.HasIdentifier(line) || e.codec.HasMissingFlag(line) {
			continue
		}
		lines[i] = e.codec.AddSyncTag(line)
		marked++
	}
	if marked == 0 {
		return 0, nil
	}
	return marked, e.store.WriteLines(path, lines)
}

// AutofixMissing strips the missing-task marker from every flagged line in
// the document, leaving a clean checkbox behind.
func (e *Editor) AutofixMissing(path string) (int, error) {
	lines, err := e.store.Lines(path)
	if err != nil {
		return 0, err
	}
	fixed := 0
	for i, line := range lines {
		if !e.codec.HasMissingFlag(line) {
			continue
		}
		lines[i] = e.codec.RemoveMissingFlag(line)
		fixed++
	}
	if fixed == 0 {
		return 0, nil
	}
	return fixed, e.store.WriteLines(path, lines)
}

// IdentifierStats counts tagged task lines and identifier links in the body
// of the document, ignoring frontmatter. The deletion pass uses the pair as
// a cheap equality check before parsing anything. Lines are matched as whole
// task lines so a longer tag sharing the sync tag as prefix does not count.
func (e *Editor) IdentifierStats(text string) (tags, links int) {
	for _, line := range strings.Split(vault.StripFrontmatter(text), "\n") {
		if e.codec.IsTaskLine(line) {
			tags++
		}
		if e.codec.HasIdentifier(line) {
			links++
		}
	}
	return tags, links
}

// BodyIdentifiers returns every identifier present in the document body.
func (e *Editor) BodyIdentifiers(text string) map[string]bool {
	out := make(map[string]bool)
	for _, line := range strings.Split(vault.StripFrontmatter(text), "\n") {
		if id := e.codec.Identifier(line); id != "" {
			out[id] = true
		}
	}
	return out
}
