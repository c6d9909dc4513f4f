package rental

import "time"

// Dates are calendar dates: UTC midnight, no time-of-day. Interval
// endpoints are inclusive on both sides.

const DateLayout = "2006-01-02"

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func FormatDate(t time.Time) string { return t.Format(DateLayout) }

// DateOnly strips the time-of-day component.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EndDate computes the inclusive last rental day: start + days - 1.
func EndDate(start time.Time, days int) time.Time {
	return start.AddDate(0, 0, days-1)
}

// Buffered extends an interval end by the sanitization buffer. The buffer
// applies to the end only, never the start.
func Buffered(end time.Time, bufferDays int) time.Time {
	return end.AddDate(0, 0, bufferDays)
}

// Overlaps reports whether the closed intervals [aStart,aEnd] and
// [bStart,bEnd] share at least one day: a.start <= b.end && a.end >= b.start.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aStart.After(bEnd) && !aEnd.Before(bStart)
}
