package timeutil

import "time"

// TickFormat is the layout of per-tick result filenames and of the date
// column inside them: MM-DD-YYYY_HH:MM:SS.
const TickFormat = "01-02-2006_15:04:05"

// FormatTick renders t in TickFormat.
func FormatTick(t time.Time) string { return t.Format(TickFormat) }

// ParseTick parses a TickFormat string.
func ParseTick(s string) (time.Time, error) { return time.Parse(TickFormat, s) }

// RoundNearestHour rounds t to the nearest hour (minute 30 rounds up).
func RoundNearestHour(t time.Time) time.Time {
	rounded := t.Truncate(time.Hour)
	if t.Minute() >= 30 {
		rounded = rounded.Add(time.Hour)
	}
	return rounded
}

// ReportingInterval snaps t down to the crisis-reporting 8-hour interval:
// 00:00, 08:00 or 16:00 of t's day.
func ReportingInterval(t time.Time) time.Time {
	hour := 0
	switch {
	case t.Hour() >= 16:
		hour = 16
	case t.Hour() >= 8:
		hour = 8
	}
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, t.Location())
}
