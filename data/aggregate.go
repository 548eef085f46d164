package data

import (
	"math"
	"sort"

	"github.com/mdblp/interval-sync/schema"
)

// meanPrecisionFactor rounds means to one decimal
const meanPrecisionFactor float64 = 10.0

// Aggregate folds the samples into the intervals using reducer.
//
// A sample belongs to an interval when start <= timestamp < end.
// Empty intervals are kept with a 0 value and a 0 sample count.
// The result is in reverse chronological order: most recent interval first.
func Aggregate(samples []schema.Sample, intervals []schema.Interval, reducer schema.Reducer) []schema.IntervalCandidate {
	sorted := make([]schema.Sample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	candidates := make([]schema.IntervalCandidate, len(intervals))
	for i, interval := range intervals {
		first := sort.Search(len(sorted), func(n int) bool {
			return !sorted[n].Timestamp.Before(interval.Start)
		})
		var total float64
		count := 0
		for n := first; n < len(sorted) && interval.Contains(sorted[n].Timestamp); n++ {
			total += sorted[n].SampleValue()
			count++
		}
		// Reverse order while filling
		candidates[len(intervals)-1-i] = schema.IntervalCandidate{
			Interval:    interval,
			Value:       reduce(reducer, total, count),
			SampleCount: count,
		}
	}
	return candidates
}

func reduce(reducer schema.Reducer, total float64, count int) float64 {
	if count == 0 {
		return 0
	}
	switch reducer {
	case schema.Mean:
		return RoundMean(total / float64(count))
	default:
		return total
	}
}

// RoundMean rounds a mean value to one decimal place
func RoundMean(value float64) float64 {
	return math.Round(value*meanPrecisionFactor) / meanPrecisionFactor
}

// Summarize computes the day level aggregate of stored interval values:
// the mean of the bucket values for Mean metrics, their sum for Sum metrics.
// Empty buckets are part of the mean. Returns 0 for an empty day.
func Summarize(values []float64, reducer schema.Reducer) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	if reducer == schema.Mean {
		return total / float64(len(values))
	}
	return total
}
