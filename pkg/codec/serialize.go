package codec

import (
	"regexp"
	"strings"
)

// The serialization helpers rewrite single lines without touching unrelated
// text. They are the only way sync passes are allowed to edit a task line.

// IdentifierLink renders the identifier-link token for a freshly created
// task, honoring the app-URI preference.
func (c *Codec) IdentifierLink(id string) string {
	if c.linksAppURI {
		return "%%[tid:: [" + id + "](todoist://task?id=" + id + ")]%%"
	}
	return "%%[tid:: [" + id + "](https://app.todoist.com/app/task/" + id + ")]%%"
}

// AddIdentifierLink appends the identifier link to the line. With the
// date-before-tag preference and a due date present, the link lands before
// the date token instead of after the sync tag.
func (c *Codec) AddIdentifierLink(line, id string) string {
	if c.HasIdentifier(line) {
		return line
	}
	link := c.IdentifierLink(id)
	if c.dateBeforeTag {
		if loc := c.pats.anyDate.FindStringIndex(line); loc != nil {
			return line[:loc[0]] + link + " " + line[loc[0]:]
		}
	}
	return strings.Replace(line, c.tag, c.tag+" "+link, 1)
}

// RemoveIdentifierLink strips the identifier-link token from the line.
func (c *Codec) RemoveIdentifierLink(line string) string {
	return collapseLine(c.pats.identifierLink.ReplaceAllString(line, ""))
}

// AddSyncTag appends the sync marker token to a bare checkbox line.
func (c *Codec) AddSyncTag(line string) string {
	return line + " " + c.tag
}

// RemoveSyncTag strips the sync marker token from the line.
func (c *Codec) RemoveSyncTag(line string) string {
	return collapseLine(strings.Replace(line, c.tag, "", 1))
}

// InsertDueDate places a due date token immediately before the sync tag.
func (c *Codec) InsertDueDate(line, date string) string {
	return strings.Replace(line, c.tag, "🗓️"+date+" "+c.tag, 1)
}

// InsertDueTime places a due time token immediately before the sync tag.
func (c *Codec) InsertDueTime(line, timeOfDay string) string {
	return strings.Replace(line, c.tag, "⏰"+timeOfDay+" "+c.tag, 1)
}

// ReplaceDueDate swaps the old date spelling for the new one.
func (c *Codec) ReplaceDueDate(line, oldDate, newDate string) string {
	return strings.Replace(line, strings.TrimSpace(oldDate), strings.TrimSpace(newDate), 1)
}

// ReplaceDueTime swaps the old clock time for the new one.
func (c *Codec) ReplaceDueTime(line, oldTime, newTime string) string {
	return strings.Replace(line, strings.TrimSpace(oldTime), strings.TrimSpace(newTime), 1)
}

// RemoveDueDate strips the due date token entirely.
func (c *Codec) RemoveDueDate(line string) string {
	return collapseLine(c.pats.anyDate.ReplaceAllString(line, ""))
}

// StampDate rewrites a time-only line into date+time form so that the
// auto-combined current date survives the next parse.
func (c *Codec) StampDate(line, date, timeOfDay string) string {
	loc := c.pats.anyTime.FindStringIndex(line)
	if loc == nil {
		return line
	}
	return line[:loc[0]] + "🗓️" + date + " ⏰" + timeOfDay + line[loc[1]:]
}

// MissingFlagMark renders the marker appended to a line whose remote task no
// longer exists.
func (c *Codec) MissingFlagMark() string {
	return `<mark style="background: #FF5582A6;">+++` + c.missingFlag + `+++</mark>`
}

// AddMissingFlag appends the missing-task marker to the line.
func (c *Codec) AddMissingFlag(line string) string {
	return collapseLine(line + " " + c.MissingFlagMark())
}

// RemoveMissingFlag strips the missing-task marker.
func (c *Codec) RemoveMissingFlag(line string) string {
	return collapseLine(c.pats.missingFlag.ReplaceAllString(line, ""))
}

// MarkComplete checks the checkbox.
func (c *Codec) MarkComplete(line string) string {
	return uncheckedBoxRe.ReplaceAllString(line, "$1- [x]")
}

// MarkIncomplete unchecks the checkbox.
func (c *Codec) MarkIncomplete(line string) string {
	return checkedBoxRe.ReplaceAllString(line, "$1- [ ]")
}

// ReplaceContent swaps the task content inside the line, leaving every token
// untouched.
func (c *Codec) ReplaceContent(line, oldContent, newContent string) string {
	if oldContent == "" {
		return line
	}
	return strings.Replace(line, oldContent, newContent, 1)
}

// NoteLine renders a remote comment as an indented child bullet.
func (c *Codec) NoteLine(parentLine, timestamp, note string) string {
	indent := strings.Repeat("\t", c.TabIndentation(parentLine)+1)
	return indent + "- " + timestamp + " " + note
}

var (
	uncheckedBoxRe = regexp.MustCompile(`(^[ \t]*)[-*] \[ \]`)
	checkedBoxRe   = regexp.MustCompile(`(^[ \t]*)[-*] \[(?:x|X)\]`)
)

// collapseLine squeezes doubled spaces left behind by token removal but
// preserves leading indentation.
func collapseLine(line string) string {
	trimmed := strings.TrimLeft(line, " \t")
	indent := line[:len(line)-len(trimmed)]
	return indent + strings.TrimRight(strings.Join(strings.Fields(trimmed), " "), " ")
}
