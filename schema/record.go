package schema

import "time"

type (
	// IntervalKey is the natural key of a stored interval, unique in the store
	IntervalKey struct {
		UserID        string
		Date          string
		IntervalStart time.Time
	}

	// IntervalFields are the mutable fields of an interval record, as received from a sender
	IntervalFields struct {
		IntervalStart time.Time
		IntervalEnd   time.Time
		TimeLabel     string
		MetricValue   float64
		SampleCount   int
		DeviceSource  string
	}

	// IntervalRecord is the persisted bucket.
	// SampleCount == 0 with MetricValue == 0 means "bucket observed but no data".
	IntervalRecord struct {
		ID            string    `json:"id,omitempty"`
		UserID        string    `json:"userId"`
		Date          string    `json:"date"`
		IntervalStart time.Time `json:"intervalStart"`
		IntervalEnd   time.Time `json:"intervalEnd"`
		TimeLabel     string    `json:"timeLabel"`
		MetricValue   float64   `json:"metricValue"`
		SampleCount   int       `json:"sampleCount"`
		DeviceSource  string    `json:"deviceSource"`
		CreatedAt     time.Time `json:"createdAt"`
		UpdatedAt     time.Time `json:"updatedAt"`
	}

	// DaySummary is the list of records of a day with the day level aggregate
	DaySummary struct {
		Date      string
		Records   []IntervalRecord
		Aggregate float64
	}
)

// Key returns the natural key of the record
func (r *IntervalRecord) Key() IntervalKey {
	return IntervalKey{
		UserID:        r.UserID,
		Date:          r.Date,
		IntervalStart: r.IntervalStart,
	}
}

// Apply replaces the mutable fields of the record
func (r *IntervalRecord) Apply(fields IntervalFields) {
	r.IntervalEnd = fields.IntervalEnd
	r.TimeLabel = fields.TimeLabel
	r.MetricValue = fields.MetricValue
	r.SampleCount = fields.SampleCount
	r.DeviceSource = fields.DeviceSource
	if r.DeviceSource == "" {
		r.DeviceSource = DefaultDeviceSource
	}
}

// NewIntervalRecord creates a record for a key never seen before
func NewIntervalRecord(key IntervalKey, fields IntervalFields, now time.Time) *IntervalRecord {
	record := &IntervalRecord{
		UserID:        key.UserID,
		Date:          key.Date,
		IntervalStart: key.IntervalStart,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	record.Apply(fields)
	return record
}
