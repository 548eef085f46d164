package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdblp/interval-sync/schema"
)

type fakeSource struct {
	mu          sync.Mutex
	samples     map[schema.RecordType][]schema.Sample
	readErr     map[schema.RecordType]error
	filters     []TimeRangeFilter
	initialized bool
	initErr     error
	denied      map[schema.RecordType]bool
}

func (f *fakeSource) Initialize(ctx context.Context) (bool, error) {
	return f.initialized, f.initErr
}

func (f *fakeSource) RequestPermission(ctx context.Context, recordTypes []schema.RecordType) ([]PermissionResult, error) {
	results := make([]PermissionResult, 0, len(recordTypes))
	for _, recordType := range recordTypes {
		status := permissionGranted
		if f.denied[recordType] {
			status = "denied"
		}
		results = append(results, PermissionResult{AccessType: accessTypeRead, RecordType: recordType, Status: status})
	}
	return results, nil
}

func (f *fakeSource) ReadRecords(ctx context.Context, recordType schema.RecordType, filter TimeRangeFilter) ([]schema.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	if err := f.readErr[recordType]; err != nil {
		return nil, err
	}
	return f.samples[recordType], nil
}

type fakeResolver struct {
	endpoint Endpoint
	err      error
	calls    int
}

func (f *fakeResolver) Resolve(ctx context.Context) (Endpoint, error) {
	f.calls++
	return f.endpoint, f.err
}

type fakeSubmitter struct {
	submissions []Submission
	errs        map[string]error
}

func (f *fakeSubmitter) Submit(ctx context.Context, endpoint Endpoint, submission Submission) (*SubmitResult, error) {
	f.submissions = append(f.submissions, submission)
	result := &SubmitResult{StatusCode: 200, Success: true, Stored: len(submission.Candidates)}
	if err := f.errs[submission.Metric.Name]; err != nil {
		return result, err
	}
	return result, nil
}

func sampleValue(v float64) *float64 {
	return &v
}

var syncNow = time.Date(2024, 3, 1, 10, 7, 0, 0, time.UTC)

func newTestSyncer(source *fakeSource, resolver *fakeResolver, submitter *fakeSubmitter) *Syncer {
	syncer := NewSyncer(source, resolver, submitter, SyncerConfig{UserID: "u1"}, testLogger)
	syncer.now = func() time.Time { return syncNow }
	return syncer
}

func TestSyncer_Defaults(t *testing.T) {
	syncer := NewSyncer(&fakeSource{}, &fakeResolver{}, &fakeSubmitter{}, SyncerConfig{}, testLogger)
	assert.Equal(t, []schema.RecordType{schema.RecordTypeSteps, schema.RecordTypeHeartRate, schema.RecordTypeHrv}, syncer.RecordTypes())
	assert.Equal(t, schema.DefaultDeviceSource, syncer.config.DeviceSource)
	assert.Equal(t, defaultReadTimeout, syncer.config.ReadTimeout)
}

func TestSyncer_Candidates(t *testing.T) {
	source := &fakeSource{samples: map[schema.RecordType][]schema.Sample{
		schema.RecordTypeSteps: {
			{Timestamp: time.Date(2024, 3, 1, 10, 1, 0, 0, time.UTC), Value: sampleValue(30)},
			{Timestamp: time.Date(2024, 3, 1, 10, 6, 0, 0, time.UTC), Value: sampleValue(20)},
			{Timestamp: time.Date(2024, 3, 1, 10, 6, 30, 0, time.UTC), Value: sampleValue(25)},
		},
	}}
	syncer := newTestSyncer(source, &fakeResolver{}, &fakeSubmitter{})

	candidates, err := syncer.Candidates(context.Background(), schema.Steps, syncNow)
	require.NoError(t, err)
	// 00:00 to 10:05 included
	require.Len(t, candidates, 122)
	assert.Equal(t, "10:05 AM", candidates[0].Label)
	assert.Equal(t, 45.0, candidates[0].Value)
	assert.Equal(t, 2, candidates[0].SampleCount)
	assert.Equal(t, 30.0, candidates[1].Value)
	assert.Equal(t, "12:00 AM", candidates[len(candidates)-1].Label)

	require.Len(t, source.filters, 1)
	assert.True(t, source.filters[0].StartTime.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, source.filters[0].EndTime.Equal(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)))
}

func TestSyncer_CandidatesReadError(t *testing.T) {
	source := &fakeSource{readErr: map[schema.RecordType]error{schema.RecordTypeHrv: errors.New("bridge down")}}
	syncer := newTestSyncer(source, &fakeResolver{}, &fakeSubmitter{})

	_, err := syncer.Candidates(context.Background(), schema.Hrv, syncNow)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestSyncer_SyncAll(t *testing.T) {
	resolver := &fakeResolver{endpoint: Endpoint{BaseURL: "http://localhost:3000/api"}}
	submitter := &fakeSubmitter{}
	syncer := newTestSyncer(&fakeSource{}, resolver, submitter)

	require.NoError(t, syncer.SyncAll(context.Background()))
	assert.Equal(t, 1, resolver.calls)
	require.Len(t, submitter.submissions, 3)
	for i, def := range schema.Metrics {
		submission := submitter.submissions[i]
		assert.Equal(t, def.Name, submission.Metric.Name)
		assert.Equal(t, "u1", submission.UserID)
		assert.Equal(t, "2024-03-01", submission.Date)
		assert.Equal(t, schema.DefaultDeviceSource, submission.DeviceSource)
		assert.Len(t, submission.Candidates, 122)
	}
}

func TestSyncer_SyncAllContinuesAfterSubmitFailure(t *testing.T) {
	submitter := &fakeSubmitter{errs: map[string]error{"steps": ErrPartialFailure, "heartrate": ErrNetwork}}
	syncer := newTestSyncer(&fakeSource{}, &fakeResolver{}, submitter)

	err := syncer.SyncAll(context.Background())
	assert.ErrorIs(t, err, ErrPartialFailure)
	assert.ErrorIs(t, err, ErrNetwork)
	require.Len(t, submitter.submissions, 3)
	assert.Equal(t, "hrv", submitter.submissions[2].Metric.Name)
}

func TestSyncer_SyncAllAbortsOnSourceFailure(t *testing.T) {
	source := &fakeSource{readErr: map[schema.RecordType]error{schema.RecordTypeHeartRate: ErrSourceUnavailable}}
	submitter := &fakeSubmitter{}
	syncer := newTestSyncer(source, &fakeResolver{}, submitter)

	err := syncer.SyncAll(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	require.Len(t, submitter.submissions, 1)
	assert.Equal(t, "steps", submitter.submissions[0].Metric.Name)
	assert.Len(t, source.filters, 2)
}

func TestSyncer_SyncAllNoEndpoint(t *testing.T) {
	submitter := &fakeSubmitter{}
	syncer := newTestSyncer(&fakeSource{}, &fakeResolver{err: ErrNetwork}, submitter)

	assert.ErrorIs(t, syncer.SyncAll(context.Background()), ErrNetwork)
	assert.Empty(t, submitter.submissions)
}
