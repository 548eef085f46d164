package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mdblp/interval-sync/data"
	"github.com/mdblp/interval-sync/schema"
)

const defaultUpsertTimeout = 5 * time.Second

var (
	errInvalidEnd     = errors.New("intervalEnd must be intervalStart + 5 minutes")
	errEmptyLabel     = errors.New("timeLabel is empty")
	errInvalidValue   = errors.New("value must be a finite non-negative number")
	errNegativeSample = errors.New("sampleCount must not be negative")
	errEmptyWithValue = errors.New("an interval without sample must have a 0 value")
)

var upsertTimer = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:      "upsert_time",
	Help:      "A histogram for a single interval upsert execution time (ms)",
	Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
	Subsystem: "intervalsync",
	Namespace: "dblp",
}, []string{"metric"})

var upsertCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name:      "upserts_total",
	Help:      "The number of interval upserts, by metric and result",
	Subsystem: "intervalsync",
	Namespace: "dblp",
}, []string{"metric", "result"})

type (
	// IntervalDataUseCase stores and reads the interval records of every metric
	IntervalDataUseCase interface {
		StoreIntervals(ctx context.Context, def schema.MetricDefinition, userID string, date string, fields []schema.IntervalFields) *BatchResult
		GetByDate(ctx context.Context, def schema.MetricDefinition, userID string, date string) (*schema.DaySummary, error)
		GetToday(ctx context.Context, def schema.MetricDefinition, userID string) (*schema.DaySummary, error)
		Today() string
	}

	// RecordFailure is the error of one record of a batch
	RecordFailure struct {
		Index         int
		IntervalStart time.Time
		Err           error
	}

	// BatchResult successes and failures of a StoreIntervals call.
	// Successes are never rolled back because of a failure.
	BatchResult struct {
		Stored   []schema.IntervalRecord
		Failures []RecordFailure
	}

	IntervalData struct {
		logger        *log.Logger
		repo          IntervalRepository
		location      *time.Location
		upsertTimeout time.Duration
		now           func() time.Time
	}
)

func (f RecordFailure) Error() string {
	return fmt.Sprintf("record %d [%s]: %s", f.Index, f.IntervalStart.Format(time.RFC3339), f.Err)
}

func (f RecordFailure) Unwrap() error {
	return f.Err
}

// AllFailed true when there was something to store and nothing was stored
func (b *BatchResult) AllFailed() bool {
	return len(b.Stored) == 0 && len(b.Failures) > 0
}

// NewIntervalData location is used to compute "today", nil means UTC
func NewIntervalData(logger *log.Logger, repo IntervalRepository, location *time.Location) *IntervalData {
	if location == nil {
		location = time.UTC
	}
	return &IntervalData{
		logger:        logger,
		repo:          repo,
		location:      location,
		upsertTimeout: defaultUpsertTimeout,
		now:           time.Now,
	}
}

// Today returns the current date in the service timezone
func (d *IntervalData) Today() string {
	return schema.FormatDay(d.now().In(d.location))
}

func checkFields(fields schema.IntervalFields) error {
	if !fields.IntervalEnd.Equal(fields.IntervalStart.Add(schema.IntervalWidth)) {
		return errInvalidEnd
	}
	if fields.TimeLabel == "" {
		return errEmptyLabel
	}
	if math.IsNaN(fields.MetricValue) || math.IsInf(fields.MetricValue, 0) || fields.MetricValue < 0 {
		return errInvalidValue
	}
	if fields.SampleCount < 0 {
		return errNegativeSample
	}
	if fields.SampleCount == 0 && fields.MetricValue != 0 {
		return errEmptyWithValue
	}
	return nil
}

// StoreIntervals upserts every interval independently, in order.
func (d *IntervalData) StoreIntervals(ctx context.Context, def schema.MetricDefinition, userID string, date string, fields []schema.IntervalFields) *BatchResult {
	result := &BatchResult{
		Stored:   make([]schema.IntervalRecord, 0, len(fields)),
		Failures: make([]RecordFailure, 0),
	}
	for i, f := range fields {
		if err := checkFields(f); err != nil {
			result.Failures = append(result.Failures, RecordFailure{Index: i, IntervalStart: f.IntervalStart, Err: err})
			upsertCounter.WithLabelValues(def.Name, "invalid").Inc()
			continue
		}
		record, err := d.upsert(ctx, def, schema.IntervalKey{UserID: userID, Date: date, IntervalStart: f.IntervalStart}, f)
		if err != nil {
			d.logger.Printf("Error storing %s interval %d for user %s: %s", def.Label, i, userID, err)
			result.Failures = append(result.Failures, RecordFailure{Index: i, IntervalStart: f.IntervalStart, Err: err})
			upsertCounter.WithLabelValues(def.Name, "error").Inc()
			continue
		}
		result.Stored = append(result.Stored, *record)
		upsertCounter.WithLabelValues(def.Name, "ok").Inc()
	}
	return result
}

func (d *IntervalData) upsert(ctx context.Context, def schema.MetricDefinition, key schema.IntervalKey, fields schema.IntervalFields) (*schema.IntervalRecord, error) {
	upsertCtx, cancel := context.WithTimeout(ctx, d.upsertTimeout)
	defer cancel()
	start := time.Now()
	record, err := d.repo.UpsertInterval(upsertCtx, def.Name, key, fields)
	upsertTimer.WithLabelValues(def.Name).Observe(float64(time.Since(start).Milliseconds()))
	return record, err
}

// GetByDate returns the records of the day with the day aggregate:
// the mean of the bucket values for mean metrics, the total for the others.
// Empty buckets are part of the mean.
func (d *IntervalData) GetByDate(ctx context.Context, def schema.MetricDefinition, userID string, date string) (*schema.DaySummary, error) {
	records, err := d.repo.FindByDate(ctx, def.Name, userID, date)
	if err != nil {
		return nil, fmt.Errorf("find %s records of %s: %w", def.Name, date, err)
	}
	values := make([]float64, len(records))
	for i := range records {
		values[i] = records[i].MetricValue
	}
	return &schema.DaySummary{
		Date:      date,
		Records:   records,
		Aggregate: data.Summarize(values, def.Reducer),
	}, nil
}

func (d *IntervalData) GetToday(ctx context.Context, def schema.MetricDefinition, userID string) (*schema.DaySummary, error) {
	return d.GetByDate(ctx, def, userID, d.Today())
}

// RecordPayload is the public JSON of a record, the value being named after the metric
func RecordPayload(def schema.MetricDefinition, record schema.IntervalRecord) map[string]interface{} {
	return map[string]interface{}{
		"id":            record.ID,
		"userId":        record.UserID,
		"date":          record.Date,
		"intervalStart": record.IntervalStart.UTC().Format(time.RFC3339),
		"intervalEnd":   record.IntervalEnd.UTC().Format(time.RFC3339),
		"timeLabel":     record.TimeLabel,
		def.ValueField:  record.MetricValue,
		"sampleCount":   record.SampleCount,
		"deviceSource":  record.DeviceSource,
		"createdAt":     record.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updatedAt":     record.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// RecordsPayload converts a list of records with RecordPayload
func RecordsPayload(def schema.MetricDefinition, records []schema.IntervalRecord) []map[string]interface{} {
	payload := make([]map[string]interface{}, 0, len(records))
	for i := range records {
		payload = append(payload, RecordPayload(def, records[i]))
	}
	return payload
}
