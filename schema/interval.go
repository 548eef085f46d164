package schema

import "time"

const (
	// IntervalWidth is the fixed width of every bucket
	IntervalWidth = 5 * time.Minute
	// DayFormat is the layout of the date part of an interval key: 2021-09-28
	DayFormat = "2006-01-02"
	// LabelFormat is the layout used to label an interval start: 10:25 AM
	LabelFormat = "3:04 PM"
	// DefaultDeviceSource is stored when the sender does not tell where the data comes from
	DefaultDeviceSource = "health_connect"
	// DefaultUserID owns the intervals of a single user deployment
	DefaultUserID = "default_user"
)

type (
	// Sample is a single raw observation read from the device data source.
	// A nil Value is a reading without value.
	Sample struct {
		Timestamp time.Time `json:"timestamp"`
		Value     *float64  `json:"value,omitempty"`
	}

	// Interval is a half-open [Start, End) bucket of IntervalWidth
	Interval struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
		Label string    `json:"label"`
	}

	// IntervalCandidate is the reduced value of an interval, ready to be sent to the store
	IntervalCandidate struct {
		Interval
		Value       float64 `json:"value"`
		SampleCount int     `json:"sampleCount"`
	}
)

// NewInterval build the interval starting at start
func NewInterval(start time.Time) Interval {
	return Interval{
		Start: start,
		End:   start.Add(IntervalWidth),
		Label: start.Format(LabelFormat),
	}
}

// Contains reports whether t is in [Start, End)
func (i Interval) Contains(t time.Time) bool {
	return TimeInRange(t, i.Start, i.End)
}

// Range returns a human readable "10:25 AM - 10:30 AM"
func (i Interval) Range() string {
	return i.Start.Format(LabelFormat) + " - " + i.End.Format(LabelFormat)
}

// SampleValue returns the value of the sample, 0 when missing
func (s Sample) SampleValue() float64 {
	if s.Value == nil {
		return 0
	}
	return *s.Value
}
