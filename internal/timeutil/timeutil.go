package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var defaultLocation = time.UTC

// ResolveLocation returns the user's location with UTC fallback.
func ResolveLocation(timezone string) (*time.Location, bool) {
	if timezone == "" {
		return defaultLocation, true
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return defaultLocation, true
	}
	return loc, false
}

// ValidTimezone reports whether tz names a loadable IANA zone
func ValidTimezone(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// ParseClock parses a wall-clock time written as H:MM or HH:MM (24h).
func ParseClock(value string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok || len(m) != 2 || len(h) == 0 || len(h) > 2 {
		return 0, 0, fmt.Errorf("unable to parse clock time: %q", value)
	}

	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("unable to parse clock time: %q", value)
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("unable to parse clock time: %q", value)
	}
	return hour, minute, nil
}

// NextClockOccurrence returns the first instant strictly after now at which the wall clock in
// loc reads hour:minute. The result is in UTC.
func NextClockOccurrence(now time.Time, hour, minute int, loc *time.Location) time.Time {
	if loc == nil {
		loc = defaultLocation
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next.UTC()
}

// FormatLocal renders t in the given timezone for display, falling back to UTC.
func FormatLocal(t time.Time, timezone string) string {
	loc, _ := ResolveLocation(timezone)
	return t.In(loc).Format("2006-01-02 15:04")
}
