package util

import (
	"strconv"
	"time"
	_ "time/tzdata"
)

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

var newYork = loadNewYork()

func loadNewYork() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*60*60)
	}
	return loc
}

// NewYork returns the America/New_York location.
func NewYork() *time.Location { return newYork }

const (
	sessionOpenMinutes  = 9*60 + 30
	sessionCloseMinutes = 16 * 60
)

// IsMarketOpen reports whether t falls in the US equities regular session
// (09:30-16:00 America/New_York, Monday to Friday).
func IsMarketOpen(t time.Time) bool {
	et := t.In(newYork)
	switch et.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	m := et.Hour()*60 + et.Minute()
	return m >= sessionOpenMinutes && m < sessionCloseMinutes
}

// DayStamp identifies the calendar day of t in New York.
func DayStamp(t time.Time) string {
	return t.In(newYork).Format("2006-01-02")
}

// HourStamp identifies the wall-clock hour of t in New York.
func HourStamp(t time.Time) string {
	return t.In(newYork).Format("2006-01-02T15")
}
