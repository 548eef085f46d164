package schema

import "strings"

// Reducer tells how the samples of a bucket are folded into one value
type Reducer int

const (
	// Mean for continuous signals (heart rate, hrv)
	Mean Reducer = iota
	// Sum for counters (steps)
	Sum
)

func (r Reducer) String() string {
	switch r {
	case Mean:
		return "mean"
	case Sum:
		return "sum"
	}
	return "unknown"
}

// RecordType is the data source record type read for a metric
type RecordType string

const (
	RecordTypeSteps     RecordType = "Steps"
	RecordTypeHeartRate RecordType = "HeartRate"
	RecordTypeHrv       RecordType = "HeartRateVariabilityRmssd"
)

// MetricDefinition describes one synced metric.
// The json field names are part of the public API and must not change.
type MetricDefinition struct {
	// Name is used in routes (/api/{Name}) and store keys
	Name string
	// IntervalsField is the request body field holding the intervals array
	IntervalsField string
	// ValueField is the name of the value in an interval payload and in returned records
	ValueField string
	// AggregateField is the name of the day aggregate in query responses
	AggregateField string
	// Collection is the mongo collection holding the records
	Collection string
	RecordType RecordType
	Reducer    Reducer
	// Label used in log and response messages
	Label string
}

var (
	Steps = MetricDefinition{
		Name:           "steps",
		IntervalsField: "stepIntervals",
		ValueField:     "stepCount",
		AggregateField: "totalSteps",
		Collection:     "stepData",
		RecordType:     RecordTypeSteps,
		Reducer:        Sum,
		Label:          "step",
	}
	HeartRate = MetricDefinition{
		Name:           "heartrate",
		IntervalsField: "heartRateIntervals",
		ValueField:     "heartRateValue",
		AggregateField: "avgHeartRate",
		Collection:     "heartRateData",
		RecordType:     RecordTypeHeartRate,
		Reducer:        Mean,
		Label:          "Heart Rate",
	}
	Hrv = MetricDefinition{
		Name:           "hrv",
		IntervalsField: "hrvIntervals",
		ValueField:     "hrvValue",
		AggregateField: "avgHrv",
		Collection:     "hrvData",
		RecordType:     RecordTypeHrv,
		Reducer:        Mean,
		Label:          "HRV",
	}
)

// Metrics lists every supported metric
var Metrics = []MetricDefinition{Steps, HeartRate, Hrv}

// MetricByName finds a metric definition, case insensitive
func MetricByName(name string) (MetricDefinition, bool) {
	for _, m := range Metrics {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return MetricDefinition{}, false
}
