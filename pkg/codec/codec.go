// Package codec translates between checkbox task lines and structured task
// records. Parsing is an ordered pipeline of token extractors over a residual
// line buffer; whatever survives the pipeline is the task content. Parsing
// never fails: unresolvable fields are omitted and reported as warnings.
package codec

import (
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mklimuk/task-pilot/pkg/logging"
	"github.com/mklimuk/task-pilot/pkg/task"
)

// Resolver supplies the read-only cache lookups the codec needs while
// parsing. It must never mutate anything; project and section creation is the
// orchestrator's job.
type Resolver interface {
	TaskByID(id string) (task.Task, bool)
	ProjectIDByName(name string) (string, bool)
	ProjectNameByID(id string) (string, bool)
	DefaultProjectID(path string) string
}

// ParsedTask is the transient result of parsing one line. It wraps the Task
// with resolution hints the orchestrator needs (names that may still have to
// be created remotely, and the raw due shape for the change detector).
type ParsedTask struct {
	task.Task

	ProjectName string
	SectionName string

	HasDueDate bool
	HasDueTime bool
	DueTime    string // HH:MM, only when HasDueTime

	// NeedsDateStamp is set for time-only lines: the current date was
	// auto-combined and must be written back so a later re-parse is stable.
	NeedsDateStamp bool

	Warnings []string
}

// Options configure a Codec. Tag is the sync marker token, e.g. "#tdsync".
type Options struct {
	Tag                 string
	AlternativeKeywords bool
	VaultName           string
	LinksAppURI         bool
	DateBeforeTag       bool
	MissingFlag         string
	Now                 func() time.Time
}

// Codec parses and serializes task lines for one configuration.
type Codec struct {
	tag           string
	vaultName     string
	linksAppURI   bool
	dateBeforeTag bool
	missingFlag   string
	pats          patterns
	resolver      Resolver
	now           func() time.Time
	log           zerolog.Logger
}

// New creates a Codec. The resolver may be nil for serialization-only use.
func New(opts Options, resolver Resolver) *Codec {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	missingFlag := opts.MissingFlag
	if missingFlag == "" {
		missingFlag = "Task not found in todoist"
	}
	return &Codec{
		tag:           opts.Tag,
		vaultName:     opts.VaultName,
		linksAppURI:   opts.LinksAppURI,
		dateBeforeTag: opts.DateBeforeTag,
		missingFlag:   missingFlag,
		pats:          compilePatterns(opts.Tag, opts.AlternativeKeywords, missingFlag),
		resolver:      resolver,
		now:           now,
		log:           logging.Component("codec"),
	}
}

// Tag returns the configured sync marker token.
func (c *Codec) Tag() string { return c.tag }

// IsTaskLine reports whether the line is a checkbox item carrying the sync
// marker token.
func (c *Codec) IsTaskLine(line string) bool {
	return c.pats.taskLine.MatchString(line)
}

// IsCheckboxLine reports whether the line is any markdown checkbox item.
func (c *Codec) IsCheckboxLine(line string) bool {
	return c.pats.checkboxIndent.MatchString(line)
}

// HasIdentifier reports whether the line already carries an identifier-link
// token from a previous sync.
func (c *Codec) HasIdentifier(line string) bool {
	return line != "" && c.pats.identifier.MatchString(line)
}

// Identifier extracts the remote task id from the line, or "".
func (c *Codec) Identifier(line string) string {
	m := c.pats.identifier.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	return m[1]
}

// IsStaleIdentifier reports whether the id predates the v1 API format
// migration. Stale ids are deliberately inert: no update logic runs on them.
func (c *Codec) IsStaleIdentifier(id string) bool {
	return id != "" && c.pats.staleID.MatchString(id)
}

// IsCompleted reports whether the checkbox is checked.
func (c *Codec) IsCompleted(line string) bool {
	return c.pats.checked.MatchString(line)
}

// HasMissingFlag reports whether the line carries the missing-task marker.
func (c *Codec) HasMissingFlag(line string) bool {
	return c.pats.missingFlag.MatchString(line)
}

// TabIndentation counts leading tab characters.
func (c *Codec) TabIndentation(line string) int {
	m := c.pats.tabIndent.FindStringSubmatch(line)
	if m == nil {
		return 0
	}
	return len(m[1])
}

func (c *Codec) isBlank(line string) bool {
	return c.pats.blank.MatchString(line)
}

// Parse converts one line into a ParsedTask. docText and lineNo provide the
// surrounding document for the indentation-based parent scan; docText may be
// empty when the caller knows the line is not indented.
func (c *Codec) Parse(line, docPath string, lineNo int, docText string) ParsedTask {
	p := ParsedTask{}
	p.Path = docPath
	p.Priority = 1

	text := line
	if c.TabIndentation(line) > 0 {
		text = c.pats.checkboxIndent.ReplaceAllString(line, "- [$3] ")
		if parentID, ok := c.findParent(line, lineNo, docText); ok {
			p.ParentID = parentID
		}
	}

	c.parseDue(text, docPath, &p)

	// Ordered extraction pipeline; each step consumes its token so the final
	// residual is the bare content.
	rest := text
	_, rest, _ = extract(c.pats.identifierLink, rest)
	// The project comment shares the %%[key:: value]%% shape, so it must be
	// read before the generic metadata sweep.
	projectComment := ""
	if m, r, ok := extract(c.pats.projectComment, rest); ok {
		rest = r
		projectComment = m[1]
	}
	rest = c.pats.inlineMetadata.ReplaceAllString(rest, " ")
	if m, r, ok := extract(c.pats.priority, rest); ok {
		rest = r
		n, _ := strconv.Atoi(m[1])
		if inv, err := invertPriority(n); err == nil {
			p.Priority = inv
		}
	}
	_, rest, _ = extract(c.pats.dueDate, rest)
	_, rest, _ = extract(c.pats.dueTime, rest)
	if m, r, ok := extract(c.pats.duration, rest); ok {
		rest = r
		c.parseDuration(m[1], &p)
	}
	if m, r, ok := extract(c.pats.deadline, rest); ok {
		rest = r
		c.parseDeadline(m[0], &p)
	} else if c.pats.deadlineBracket.MatchString(rest) {
		p.warn(&c.log, "deadline brackets found but no valid date inside, expected YYYY-MM-DD or MM-DD")
		_, rest, _ = extract(c.pats.deadlineBracket, rest)
	}
	if m, r, ok := extract(c.pats.section, rest); ok {
		rest = r
		p.SectionName = m[1]
	}
	tags, rest := extractAll(c.pats.labels, rest)
	for _, t := range tags {
		label := strings.TrimPrefix(t, "#")
		if label == strings.TrimPrefix(c.tag, "#") {
			continue
		}
		p.Labels = append(p.Labels, label)
	}
	rest = c.pats.checkboxIndent.ReplaceAllString(rest, "")

	p.Content = collapseWhitespace(rest)
	if p.Content == "" {
		p.Content = strings.TrimSuffix(filepath.Base(docPath), ".md")
	}

	p.Completed = c.IsCompleted(text)
	p.ID = c.Identifier(text)
	if p.ID != "" {
		p.URL = "https://app.todoist.com/app/task/" + p.ID
	}
	p.Description = c.DocumentBacklink(docPath)

	c.resolveProject(projectComment, docPath, &p)

	return p
}

// findParent scans upward from lineNo for the nearest line with strictly
// lower indentation, stopping at blank lines. Only an identifier-carrying
// line can be a parent.
func (c *Codec) findParent(line string, lineNo int, docText string) (string, bool) {
	if docText == "" {
		return "", false
	}
	lines := strings.Split(docText, "\n")
	if lineNo > len(lines) {
		lineNo = len(lines)
	}
	indent := c.TabIndentation(line)
	for i := lineNo - 1; i >= 0; i-- {
		prev := lines[i]
		if c.isBlank(prev) {
			return "", false
		}
		if c.TabIndentation(prev) >= indent {
			continue
		}
		if c.HasIdentifier(prev) {
			return c.Identifier(prev), true
		}
		return "", false
	}
	return "", false
}

// parseDue classifies the line into one of the three mutually exclusive due
// shapes: date-only, date+time, or time-only.
func (c *Codec) parseDue(text, docPath string, p *ParsedTask) {
	dateMatch := c.pats.dueDate.FindStringSubmatch(text)
	timeMatch := c.pats.dueTime.FindStringSubmatch(text)
	hasCalToken := c.pats.dateToken.MatchString(text)

	dueTime := ""
	if timeMatch != nil {
		t, err := normalizeClockTime(timeMatch[1])
		if err != nil {
			p.warn(&c.log, err.Error())
		} else {
			dueTime = t
		}
	}

	if hasCalToken && dateMatch == nil {
		p.warn(&c.log, "calendar token present but no valid due date, task continues without one")
		return
	}

	switch {
	case dateMatch != nil && dueTime != "":
		date, err := normalizeDueDate(strings.Join(dateMatch[1:], "-"))
		if err != nil {
			p.warn(&c.log, err.Error())
			return
		}
		p.HasDueDate, p.HasDueTime = true, true
		p.DueDate = date
		p.DueTime = dueTime
		p.DueDatetime = date + "T" + dueTime + ":00"
	case dateMatch != nil:
		date, err := normalizeDueDate(strings.Join(dateMatch[1:], "-"))
		if err != nil {
			p.warn(&c.log, err.Error())
			return
		}
		p.HasDueDate = true
		p.DueDate = date
	case dueTime != "":
		// Time-only: combine with today and ask the caller to write the
		// date back so the next parse sees a stable datetime.
		today := c.now().Format("2006-01-02")
		p.HasDueTime = true
		p.DueTime = dueTime
		p.DueDatetime = today + "T" + dueTime + ":00"
		p.NeedsDateStamp = true
	}
}

func (c *Codec) parseDuration(raw string, p *ParsedTask) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.warn(&c.log, "malformed duration "+raw)
		return
	}
	if n > 1440 {
		p.warn(&c.log, "duration above 24 hours is ignored")
		return
	}
	p.Duration = n
	p.DurationUnit = task.DurationMinute
}

func (c *Codec) parseDeadline(rawToken string, p *ParsedTask) {
	raw := strings.TrimSuffix(strings.TrimPrefix(rawToken, "{{"), "}}")
	d, err := normalizeDeadline(raw, c.now())
	if err != nil {
		p.warn(&c.log, err.Error())
		return
	}
	p.DeadlineDate = d
}

// resolveProject applies the project precedence: inherited parent project,
// explicit project comment, first label naming a cached project, then the
// document default. Child lines inherit the parent project unconditionally.
func (c *Codec) resolveProject(comment, docPath string, p *ParsedTask) {
	if c.resolver == nil {
		p.ProjectName = comment
		return
	}
	if p.ParentID != "" {
		if parent, ok := c.resolver.TaskByID(p.ParentID); ok {
			p.ProjectID = parent.ProjectID
			if name, ok := c.resolver.ProjectNameByID(parent.ProjectID); ok {
				p.ProjectName = name
			}
			return
		}
	}
	if comment != "" {
		p.ProjectName = comment
		if id, ok := c.resolver.ProjectIDByName(comment); ok {
			p.ProjectID = id
		}
		return
	}
	for _, label := range p.Labels {
		if id, ok := c.resolver.ProjectIDByName(label); ok {
			p.ProjectID = id
			p.ProjectName = label
			return
		}
	}
	p.ProjectID = c.resolver.DefaultProjectID(docPath)
	if p.ProjectID != "" {
		if name, ok := c.resolver.ProjectNameByID(p.ProjectID); ok {
			p.ProjectName = name
		}
	} else {
		c.log.Warn().Str("path", docPath).Msg("no default project configured for document")
	}
}

// DocumentBacklink builds the derived description pointing back at the
// owning document.
func (c *Codec) DocumentBacklink(docPath string) string {
	u := "obsidian://open?vault=" + url.QueryEscape(c.vaultName) + "&file=" + url.QueryEscape(docPath)
	return "[" + docPath + "](" + u + ")"
}

func (p *ParsedTask) warn(log *zerolog.Logger, msg string) {
	p.Warnings = append(p.Warnings, msg)
	log.Warn().Str("path", p.Path).Msg(msg)
}
