package usecase

import (
	"context"
	"errors"
	"log"
	"math"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mdblp/interval-sync/schema"
)

var testLogger = log.New(os.Stdout, "usecase-test ", log.LstdFlags|log.Lshortfile)

func fieldsAt(start time.Time, value float64) schema.IntervalFields {
	return schema.IntervalFields{
		IntervalStart: start,
		IntervalEnd:   start.Add(schema.IntervalWidth),
		TimeLabel:     start.Format(schema.LabelFormat),
		MetricValue:   value,
		SampleCount:   1,
	}
}

func recordOf(userID string, date string, f schema.IntervalFields) *schema.IntervalRecord {
	return schema.NewIntervalRecord(schema.IntervalKey{UserID: userID, Date: date, IntervalStart: f.IntervalStart}, f, time.Now())
}

func TestStoreIntervals_PartialFailure(t *testing.T) {
	repo := &MockIntervalRepository{}
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	fields := make([]schema.IntervalFields, 5)
	for i := range fields {
		fields[i] = fieldsAt(base.Add(time.Duration(i)*schema.IntervalWidth), float64(i*10))
	}
	storeErr := errors.New("write failed")
	for i, f := range fields {
		key := schema.IntervalKey{UserID: "u1", Date: "2024-03-01", IntervalStart: f.IntervalStart}
		if i == 2 {
			repo.On("UpsertInterval", mock.Anything, "steps", key, f).Return(nil, storeErr).Once()
			continue
		}
		repo.On("UpsertInterval", mock.Anything, "steps", key, f).Return(recordOf("u1", "2024-03-01", f), nil).Once()
	}

	uc := NewIntervalData(testLogger, repo, nil)
	result := uc.StoreIntervals(context.Background(), schema.Steps, "u1", "2024-03-01", fields)

	repo.AssertExpectations(t)
	repo.AssertNumberOfCalls(t, "UpsertInterval", 5)
	assert.Len(t, result.Stored, 4)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, 2, result.Failures[0].Index)
	assert.True(t, result.Failures[0].IntervalStart.Equal(fields[2].IntervalStart))
	assert.ErrorIs(t, result.Failures[0], storeErr)
	assert.False(t, result.AllFailed())
}

func TestStoreIntervals_InvalidRecordsNotStored(t *testing.T) {
	repo := &MockIntervalRepository{}
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	valid := fieldsAt(start, 12)

	badEnd := fieldsAt(start.Add(schema.IntervalWidth), 1)
	badEnd.IntervalEnd = badEnd.IntervalStart.Add(time.Minute)
	noLabel := fieldsAt(start.Add(2*schema.IntervalWidth), 1)
	noLabel.TimeLabel = ""
	negative := fieldsAt(start.Add(3*schema.IntervalWidth), -1)
	notFinite := fieldsAt(start.Add(4*schema.IntervalWidth), math.NaN())
	badCount := fieldsAt(start.Add(5*schema.IntervalWidth), 1)
	badCount.SampleCount = -2
	noSample := fieldsAt(start.Add(6*schema.IntervalWidth), 5)
	noSample.SampleCount = 0

	repo.On("UpsertInterval", mock.Anything, "hrv", mock.Anything, valid).Return(recordOf("u1", "2024-03-01", valid), nil).Once()

	uc := NewIntervalData(testLogger, repo, nil)
	result := uc.StoreIntervals(context.Background(), schema.Hrv, "u1", "2024-03-01",
		[]schema.IntervalFields{valid, badEnd, noLabel, negative, notFinite, badCount, noSample})

	repo.AssertNumberOfCalls(t, "UpsertInterval", 1)
	assert.Len(t, result.Stored, 1)
	require.Len(t, result.Failures, 6)
	assert.ErrorIs(t, result.Failures[0], errInvalidEnd)
	assert.ErrorIs(t, result.Failures[1], errEmptyLabel)
	assert.ErrorIs(t, result.Failures[2], errInvalidValue)
	assert.ErrorIs(t, result.Failures[3], errInvalidValue)
	assert.ErrorIs(t, result.Failures[4], errNegativeSample)
	assert.ErrorIs(t, result.Failures[5], errEmptyWithValue)
}

func TestStoreIntervals_AllFailed(t *testing.T) {
	repo := &MockIntervalRepository{}
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	repo.On("UpsertInterval", mock.Anything, "heartrate", mock.Anything, mock.Anything).Return(nil, errors.New("down"))

	uc := NewIntervalData(testLogger, repo, nil)
	result := uc.StoreIntervals(context.Background(), schema.HeartRate, "u1", "2024-03-01",
		[]schema.IntervalFields{fieldsAt(start, 60), fieldsAt(start.Add(schema.IntervalWidth), 62)})

	assert.True(t, result.AllFailed())
	assert.Empty(t, result.Stored)
}

func TestStoreIntervals_UpsertHasDeadline(t *testing.T) {
	repo := &MockIntervalRepository{}
	f := fieldsAt(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), 60)
	hasDeadline := mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	})
	repo.On("UpsertInterval", hasDeadline, "heartrate", mock.Anything, f).Return(recordOf("u1", "2024-03-01", f), nil).Once()

	uc := NewIntervalData(testLogger, repo, nil)
	result := uc.StoreIntervals(context.Background(), schema.HeartRate, "u1", "2024-03-01", []schema.IntervalFields{f})
	repo.AssertExpectations(t)
	assert.Len(t, result.Stored, 1)
}

func TestGetByDate_Aggregates(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	records := []schema.IntervalRecord{
		*recordOf("u1", "2024-03-01", fieldsAt(start, 70)),
		*recordOf("u1", "2024-03-01", fieldsAt(start.Add(schema.IntervalWidth), 0)),
		*recordOf("u1", "2024-03-01", fieldsAt(start.Add(2*schema.IntervalWidth), 80)),
	}
	repo := &MockIntervalRepository{}
	repo.On("FindByDate", mock.Anything, mock.Anything, "u1", "2024-03-01").Return(records, nil)
	uc := NewIntervalData(testLogger, repo, nil)

	summary, err := uc.GetByDate(context.Background(), schema.HeartRate, "u1", "2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", summary.Date)
	assert.Len(t, summary.Records, 3)
	assert.Equal(t, 50.0, summary.Aggregate)

	summary, err = uc.GetByDate(context.Background(), schema.Steps, "u1", "2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, 150.0, summary.Aggregate)
}

func TestGetByDate_EmptyAndError(t *testing.T) {
	repo := &MockIntervalRepository{}
	repo.On("FindByDate", mock.Anything, "hrv", "u1", "2024-03-01").Return([]schema.IntervalRecord{}, nil)
	repo.On("FindByDate", mock.Anything, "hrv", "u1", "2024-03-02").Return(nil, errors.New("down"))
	uc := NewIntervalData(testLogger, repo, nil)

	summary, err := uc.GetByDate(context.Background(), schema.Hrv, "u1", "2024-03-01")
	require.NoError(t, err)
	assert.Empty(t, summary.Records)
	assert.Equal(t, 0.0, summary.Aggregate)

	_, err = uc.GetByDate(context.Background(), schema.Hrv, "u1", "2024-03-02")
	assert.Error(t, err)
}

func TestToday_UsesServiceLocation(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skip("no tzdata")
	}
	uc := NewIntervalData(testLogger, &MockIntervalRepository{}, tokyo)
	uc.now = func() time.Time { return time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC) }
	assert.Equal(t, "2024-03-02", uc.Today())

	utc := NewIntervalData(testLogger, &MockIntervalRepository{}, nil)
	utc.now = uc.now
	assert.Equal(t, "2024-03-01", utc.Today())
}

func TestRecordPayload_ValueField(t *testing.T) {
	f := fieldsAt(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), 42)
	payload := RecordPayload(schema.Hrv, *recordOf("u1", "2024-03-01", f))
	assert.Equal(t, 42.0, payload["hrvValue"])
	assert.Equal(t, "2024-03-01T10:00:00Z", payload["intervalStart"])
	assert.NotContains(t, payload, "metricValue")
}
