package schema

import "time"

// TimeBeforeOrEqual nil is treated as the end of time
func TimeBeforeOrEqual(t *time.Time, t2 *time.Time) bool {
	if t == nil && t2 == nil {
		return true
	}
	if t == nil {
		return false
	}
	if t2 == nil {
		return true
	}
	return t.Before(*t2) || t.Equal(*t2)
}

func TimeAfterOrEqual(t *time.Time, t2 *time.Time) bool {
	if t == nil && t2 == nil {
		return true
	}
	if t == nil {
		return true
	}
	if t2 == nil {
		return false
	}
	return t.After(*t2) || t.Equal(*t2)
}

// TimeInRange is the left inclusive test start <= t < end
func TimeInRange(t time.Time, start time.Time, end time.Time) bool {
	return TimeAfterOrEqual(&t, &start) && t.Before(end)
}

// StartOfDay returns the local midnight of t, in t's location
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// FloorToInterval truncates t to the previous interval boundary of its day
func FloorToInterval(t time.Time) time.Time {
	dayStart := StartOfDay(t)
	steps := t.Sub(dayStart) / IntervalWidth
	return dayStart.Add(steps * IntervalWidth)
}

// FormatDay formats t as YYYY-MM-DD in t's location
func FormatDay(t time.Time) string {
	return t.Format(DayFormat)
}

// ParseDay validates a YYYY-MM-DD string
func ParseDay(day string) (time.Time, error) {
	return time.Parse(DayFormat, day)
}
