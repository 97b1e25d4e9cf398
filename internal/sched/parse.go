package sched

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var durationRe = regexp.MustCompile(`^([0-9]+)\s*(s|sec|secs|m|min|mins|h|hr|hrs)$`)

// ParseDuration parses a relative wait duration such as "30s", "5min" or
// "2h". Zero durations are rejected.
func ParseDuration(raw string) (time.Duration, error) {
	m := durationRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(raw)))
	if m == nil {
		return 0, fmt.Errorf("invalid duration %q (expected forms like 30s, 5min, 2h)", raw)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	switch m[2][0] {
	case 's':
		return time.Duration(n) * time.Second, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	default:
		return time.Duration(n) * time.Hour, nil
	}
}

var clockRe = regexp.MustCompile(`^([0-9]{1,2}):([0-9]{2})$`)

// ParseSchedule parses an absolute schedule expression relative to now:
//
//	tomorrow            next day at 00:00
//	tomorrow HH:MM      next day at the given local time
//	YYYY-MM-DD HH:MM    an absolute local timestamp
//
// Unknown expressions are authoring errors.
func ParseSchedule(raw string, now time.Time) (time.Time, error) {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)

	if lower == "tomorrow" {
		return midnight(now).AddDate(0, 0, 1), nil
	}
	if rest, ok := strings.CutPrefix(lower, "tomorrow "); ok {
		h, min, err := parseClock(strings.TrimSpace(rest))
		if err != nil {
			return time.Time{}, fmt.Errorf("schedule %q: %w", raw, err)
		}
		day := midnight(now).AddDate(0, 0, 1)
		return day.Add(time.Duration(h)*time.Hour + time.Duration(min)*time.Minute), nil
	}

	if t, err := time.ParseInLocation("2006-01-02 15:04", s, now.Location()); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid schedule %q (expected tomorrow, tomorrow HH:MM, or YYYY-MM-DD HH:MM)", raw)
}

func parseClock(s string) (int, int, error) {
	m := clockRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("invalid time %q (expected HH:MM)", s)
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	if h > 23 || min > 59 {
		return 0, 0, fmt.Errorf("invalid time %q", s)
	}
	return h, min, nil
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// FireAt computes the fire time for a WAIT block from either its relative
// duration or its schedule expression. Exactly one must be set.
func FireAt(duration, until string, now time.Time) (time.Time, error) {
	switch {
	case duration != "" && until != "":
		return time.Time{}, fmt.Errorf("wait cannot have both a duration and a schedule")
	case duration != "":
		d, err := ParseDuration(duration)
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(d), nil
	case until != "":
		return ParseSchedule(until, now)
	default:
		return time.Time{}, fmt.Errorf("wait requires a duration or a schedule")
	}
}
