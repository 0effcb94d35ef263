package domain

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-date format used for snapshot file names, the
// snapshot payload and every output table.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD string into UTC midnight of that date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// FormatDate renders a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Day returns UTC midnight of t's calendar date as observed in t's own
// location. All dates flowing through the pipeline are normalised this way
// so they compare and hash consistently.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayBounds returns the inclusive unix-second bounds of a UTC calendar day.
func DayBounds(day time.Time) (minTS, maxTS int64) {
	start := Day(day)
	end := start.Add(24*time.Hour - time.Second)
	return start.Unix(), end.Unix()
}

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange normalises both ends to calendar days.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: Day(start), End: Day(end)}
}

// Empty reports whether the range contains no dates.
func (r DateRange) Empty() bool {
	return r.Start.After(r.End)
}

// Contains reports whether day falls within the range.
func (r DateRange) Contains(day time.Time) bool {
	d := Day(day)
	return !d.Before(r.Start) && !d.After(r.End)
}

// Days enumerates every date in the range in ascending order.
func (r DateRange) Days() []time.Time {
	if r.Empty() {
		return nil
	}
	var days []time.Time
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func (r DateRange) String() string {
	return FormatDate(r.Start) + ".." + FormatDate(r.End)
}
