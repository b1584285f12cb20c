package util

import (
	"fmt"
	"time"
)

const (
	// DateLayout is the wire format of calendar dates.
	DateLayout = "2006-01-02"
	// HourBucketLayout formats the hourly cache bucket.
	HourBucketLayout = "2006010215"
)

// ParseDate parses a YYYY-MM-DD date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// ParseDateDefault parses a date or returns def if s is empty or invalid.
func ParseDateDefault(s string, def time.Time) time.Time {
	if s == "" {
		return def
	}
	if t, err := ParseDate(s); err == nil {
		return t
	}
	return def
}

// DayUTC truncates t to midnight UTC.
func DayUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last nanosecond of t's UTC day.
func EndOfDay(t time.Time) time.Time {
	return DayUTC(t).Add(24*time.Hour - time.Nanosecond)
}

// FormatDate renders t's UTC day as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// HourBucket returns the UTC hour of t as YYYYMMDDHH.
func HourBucket(t time.Time) string {
	return t.UTC().Format(HourBucketLayout)
}

// FromUnixMilli converts epoch milliseconds to a UTC time.
func FromUnixMilli(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// DailySeries returns n consecutive days starting the day after last.
func DailySeries(last time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	day := DayUTC(last)
	for i := 1; i <= n; i++ {
		out = append(out, day.AddDate(0, 0, i))
	}
	return out
}
