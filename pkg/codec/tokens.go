package codec

import (
	"fmt"
	"regexp"
	"strings"
)

// Token alphabets recognized in task lines. The alternative set adds plain
// ASCII triggers for keyboards where emoji are a chore.
const (
	dateTokens    = "🗓️|📅|📆|🗓"
	dateTokensAlt = "🗓️|📅|📆|🗓|@"
	timeTokens    = "⏰|⏲"
	timeTokensAlt = `⏰|⏲|\$`
	durTokens     = "⏳"
	durTokensAlt  = "⏳|&"
)

// patterns holds every compiled regex for one codec configuration. They are
// built once per Codec because the sync tag and the token alphabets are
// user-configurable.
type patterns struct {
	checkboxIndent  *regexp.Regexp
	checked         *regexp.Regexp
	taskLine        *regexp.Regexp
	identifier      *regexp.Regexp
	identifierLink  *regexp.Regexp
	tabIndent       *regexp.Regexp
	blank           *regexp.Regexp
	dueDate         *regexp.Regexp
	dateToken       *regexp.Regexp
	dueTime         *regexp.Regexp
	duration        *regexp.Regexp
	priority        *regexp.Regexp
	labels          *regexp.Regexp
	section         *regexp.Regexp
	projectComment  *regexp.Regexp
	deadline        *regexp.Regexp
	deadlineBracket *regexp.Regexp
	inlineMetadata  *regexp.Regexp
	anyDate         *regexp.Regexp
	anyTime         *regexp.Regexp
	missingFlag     *regexp.Regexp
	staleID         *regexp.Regexp
}

func compilePatterns(tag string, alternativeKeywords bool, missingFlag string) patterns {
	dates, times, durs := dateTokens, timeTokens, durTokens
	if alternativeKeywords {
		dates, times, durs = dateTokensAlt, timeTokensAlt, durTokensAlt
	}

	return patterns{
		checkboxIndent: regexp.MustCompile(`^([ \t]*)(-|\*)\s+\[(x|X| )\]\s`),
		checked:        regexp.MustCompile(`^[\s]*(-|\*)\s+\[(x|X)\]\s`),
		taskLine: regexp.MustCompile(
			`(?i)^[\s]*[-*] \[[x ]\] [\s\S]*` + regexp.QuoteMeta(tag) + `(\s|$)`),
		identifier: regexp.MustCompile(`\[tid:: \[([a-zA-Z0-9]+)\]`),
		identifierLink: regexp.MustCompile(
			`%%\[tid:: \[[a-zA-Z0-9]+\]\((?:https://app\.todoist\.com/app/task/[a-zA-Z0-9]+|todoist://task\?id=[a-zA-Z0-9]+)\)\]%%`),
		tabIndent: regexp.MustCompile(`^(\t+)`),
		blank:     regexp.MustCompile(`^\s*$`),
		// Day alternatives run longest-first: nothing anchors the pattern
		// after the day, so a shorter branch would win on days >= 10.
		dueDate: regexp.MustCompile(
			`(?:` + dates + `)\s?(\d{2}(?:\d{2})?)-(0?[1-9]|1[0-2])-(3[01]|[12]\d|0?[1-9])`),
		dateToken: regexp.MustCompile(`(?:` + dates + `)`),
		dueTime:   regexp.MustCompile(`(?:` + times + `)\s?(\d{1,2}:\d{2})`),
		duration:  regexp.MustCompile(`(?:` + durs + `)(\d+)min`),
		priority:  regexp.MustCompile(`\s!!([1-4])\s`),
		labels:    regexp.MustCompile(`#[-\w\x{4e00}-\x{9fa5}]+`),
		section:   regexp.MustCompile(`///([-\w\x{4e00}-\x{9fa5}]+)`),
		projectComment: regexp.MustCompile(
			`%%\[p::\s*([^\]]+?)\s*\]%%`),
		deadline: regexp.MustCompile(
			`\{\{(?:(\d{4}|\d{2})-)?(1[0-2]|0?[1-9])-(3[01]|[12]\d|0?[1-9])\}\}`),
		deadlineBracket: regexp.MustCompile(`\{\{.*?\}\}`),
		inlineMetadata:  regexp.MustCompile(`%%\[\w+::\s*\w+\]%%`),
		anyDate:         regexp.MustCompile(`(?:` + dates + `)\s?\d{2,4}-\d{1,2}-\d{1,2}`),
		anyTime:         regexp.MustCompile(`(?:` + times + `)\s?\d{1,2}:\d{2}`),
		missingFlag: regexp.MustCompile(
			`<mark[^>]*>\+\+\+` + regexp.QuoteMeta(missingFlag) + `\+\+\+</mark>`),
		staleID: regexp.MustCompile(`^\d+$`),
	}
}

// extract removes the first match of re from line and returns the submatch
// groups along with the residual line. The pipeline in Parse feeds each
// residual into the next extractor so no token is counted twice.
func extract(re *regexp.Regexp, line string) (groups []string, rest string, found bool) {
	loc := re.FindStringSubmatchIndex(line)
	if loc == nil {
		return nil, line, false
	}
	match := re.FindStringSubmatch(line)
	rest = line[:loc[0]] + " " + line[loc[1]:]
	return match, rest, true
}

// extractAll removes every match of re, returning the whole-match strings.
func extractAll(re *regexp.Regexp, line string) (matches []string, rest string) {
	matches = re.FindAllString(line, -1)
	rest = re.ReplaceAllString(line, " ")
	return matches, rest
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// invertPriority maps the in-text marker scale (!!1 highest) onto the remote
// scale (4 highest).
func invertPriority(n int) (int, error) {
	if n < 1 || n > 4 {
		return 0, fmt.Errorf("priority marker out of range: %d", n)
	}
	return 5 - n, nil
}
