package data

import (
	"time"

	"github.com/mdblp/interval-sync/schema"
)

// GenerateIntervals returns the five minutes buckets of the day of now,
// from local midnight to the bucket containing now (included).
//
// The result is ordered by start, without gap nor overlap, and has
// floor(minutesSinceMidnight(now)/5) + 1 elements, the minutes being elapsed
// since midnight. On a DST change day this is not the wall clock reading:
// the repeated hour gives repeated labels and the skipped hour has none.
func GenerateIntervals(now time.Time) []schema.Interval {
	dayStart := schema.StartOfDay(now)
	roundedNow := schema.FloorToInterval(now)

	count := int(roundedNow.Sub(dayStart)/schema.IntervalWidth) + 1
	intervals := make([]schema.Interval, 0, count)
	for i := 0; i < count; i++ {
		intervals = append(intervals, schema.NewInterval(dayStart.Add(time.Duration(i)*schema.IntervalWidth)))
	}
	return intervals
}

// DayRange returns the [start, end) window of the day of now,
// used to read the raw samples of today
func DayRange(now time.Time) (time.Time, time.Time) {
	start := schema.StartOfDay(now)
	year, month, day := start.Date()
	end := time.Date(year, month, day+1, 0, 0, 0, 0, start.Location())
	return start, end
}
