package utils

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// relativePattern matches offsets such as +7d, -3d, +2w or +1m.
var relativePattern = regexp.MustCompile(`^([+-]\d+)([dwm])$`)

// clockPattern matches a trailing time of day such as 09:00 or 9:30
var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

var namedDays = map[string]int{"yesterday": -1, "today": 0, "tomorrow": 1}

// parseRelativeDate resolves today, tomorrow, yesterday and signed offsets
// against now's calendar day. It returns nil for anything else.
func parseRelativeDate(dateStr string, now time.Time) *time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	lower := strings.ToLower(dateStr)

	if days, ok := namedDays[lower]; ok {
		t := today.AddDate(0, 0, days)
		return &t
	}

	m := relativePattern.FindStringSubmatch(lower)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	var t time.Time
	switch m[2] {
	case "d":
		t = today.AddDate(0, 0, n)
	case "w":
		t = today.AddDate(0, 0, 7*n)
	default:
		t = today.AddDate(0, n, 0)
	}
	return &t
}

// ParseDateFlag parses a calendar day: today, tomorrow, yesterday, +Nd, -Nd, +Nw, +Nm or YYYY-MM-DD.
// Returns nil, nil for an empty string.
func ParseDateFlag(dateStr string) (*time.Time, error) {
	return parseDateFlagAt(dateStr, time.Now())
}

func parseDateFlagAt(dateStr string, now time.Time) (*time.Time, error) {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" {
		return nil, nil
	}

	if t := parseRelativeDate(dateStr, now); t != nil {
		return t, nil
	}

	parsed, err := time.ParseInLocation("2006-01-02", dateStr, time.Local)
	if err != nil {
		return nil, ErrInvalidDate(dateStr)
	}
	return &parsed, nil
}

// ParseDueFlag parses a due date with an optional time of day, e.g.
// "tomorrow 09:00", "+2d 14:30", "2026-01-15 09:00", "2026-01-15T09:00:00".
// A day without a time means midnight local time.
func ParseDueFlag(s string) (*time.Time, error) {
	return parseDueFlagAt(s, time.Now())
}

func parseDueFlagAt(s string, now time.Time) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return &t, nil
		}
	}

	day, clock := s, ""
	if i := strings.LastIndex(s, " "); i > 0 {
		day, clock = strings.TrimSpace(s[:i]), s[i+1:]
	}

	d, err := parseDateFlagAt(day, now)
	if err != nil {
		return nil, ErrInvalidDate(s)
	}
	if clock == "" {
		return d, nil
	}

	m := clockPattern.FindStringSubmatch(clock)
	if m == nil {
		return nil, ErrInvalidDate(s)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return nil, ErrInvalidDate(s)
	}
	t := time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, time.Local)
	return &t, nil
}
