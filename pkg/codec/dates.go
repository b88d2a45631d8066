package codec

import (
	"fmt"
	"regexp"
	"time"
)

var (
	fullDateRe  = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	looseDateRe = regexp.MustCompile(`(\d{2,4})-(\d{1,2})-(\d{1,2})`)

	deadlineFullRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	deadlineShortRe = regexp.MustCompile(`^\d{2}-\d{2}-\d{2}$`)
	deadlineMDRe    = regexp.MustCompile(`^\d{2}-\d{2}$`)
)

// normalizeDueDate widens accepted date spellings to YYYY-MM-DD: a two digit
// year is prefixed with "20", single digit months and days are zero padded.
func normalizeDueDate(raw string) (string, error) {
	if fullDateRe.MatchString(raw) {
		return raw, nil
	}
	m := looseDateRe.FindStringSubmatch(raw)
	if m == nil {
		return "", fmt.Errorf("malformed due date %q, expected YYYY-MM-DD", raw)
	}
	year, month, day := m[1], m[2], m[3]
	if len(year) == 2 {
		year = "20" + year
	}
	if len(month) == 1 {
		month = "0" + month
	}
	if len(day) == 1 {
		day = "0" + day
	}
	return year + "-" + month + "-" + day, nil
}

// normalizeDeadline accepts YYYY-MM-DD, YY-MM-DD and MM-DD (current year).
func normalizeDeadline(raw string, now time.Time) (string, error) {
	switch {
	case deadlineFullRe.MatchString(raw):
		return raw, nil
	case deadlineShortRe.MatchString(raw):
		return "20" + raw, nil
	case deadlineMDRe.MatchString(raw):
		return fmt.Sprintf("%d-%s", now.Year(), raw), nil
	}
	return "", fmt.Errorf("malformed deadline %q, expected YYYY-MM-DD, YY-MM-DD or MM-DD", raw)
}

// normalizeClockTime pads H:MM to HH:MM and rejects impossible readings.
func normalizeClockTime(raw string) (string, error) {
	if len(raw) == 4 { // H:MM
		raw = "0" + raw
	}
	var h, m int
	if _, err := fmt.Sscanf(raw, "%d:%d", &h, &m); err != nil {
		return "", fmt.Errorf("malformed due time %q: %w", raw, err)
	}
	if h > 23 || m > 59 {
		return "", fmt.Errorf("due time %q out of range", raw)
	}
	return raw, nil
}

// DateOf truncates a date or datetime string to its YYYY-MM-DD prefix.
func DateOf(s string) string {
	if len(s) > 10 {
		return s[:10]
	}
	return s
}

// TimeOf returns the HH:MM:SS suffix of a datetime string, or "" when the
// value carries no time component.
func TimeOf(s string) string {
	if len(s) > 10 {
		return s[len(s)-8:]
	}
	return ""
}
