package infrastructure

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goComMgo "github.com/tidepool-org/go-common/clients/mongo"

	"github.com/mdblp/interval-sync/schema"
)

var testingConfig = &goComMgo.Config{
	Timeout:                2 * time.Second,
	WaitConnectionInterval: 5 * time.Second,
	MaxConnectionAttempts:  0,
}

func before(t *testing.T) *IntervalMongoRepository {
	if _, exist := os.LookupEnv("TIDEPOOL_STORE_ADDRESSES"); !exist {
		t.Skip("TIDEPOOL_STORE_ADDRESSES not set, skipping mongo tests")
	}
	ctx := context.Background()
	logger := log.New(os.Stdout, "mongo-test ", log.LstdFlags|log.LUTC|log.Lshortfile)
	testingConfig.FromEnv()

	store, err := NewIntervalMongoRepository(testingConfig, logger)
	if err != nil {
		t.Fatalf("Unexpected error while creating store: %s", err)
	}
	store.Start()
	store.WaitUntilStarted()

	t.Cleanup(func() {
		for _, metric := range schema.Metrics {
			store.Collection(metric.Collection).Drop(ctx)
		}
		store.Close()
	})
	return store
}

func TestIntervalIndexes(t *testing.T) {
	indexes := intervalIndexes()
	assert.Len(t, indexes, len(schema.Metrics))
	for _, metric := range schema.Metrics {
		models, found := indexes[metric.Collection]
		require.True(t, found, metric.Collection)
		require.Len(t, models, 2)
		assert.True(t, *models[0].Options.Unique)
		assert.Equal(t, idxUserDateStart, *models[0].Options.Name)
	}
}

func TestMongoUpsertInterval(t *testing.T) {
	store := before(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	key := schema.IntervalKey{UserID: "u1", Date: "2024-03-01", IntervalStart: start}

	created, err := store.UpsertInterval(ctx, "steps", key, testFields(start, 100, 2))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, schema.DefaultDeviceSource, created.DeviceSource)

	updated, err := store.UpsertInterval(ctx, "steps", key, testFields(start, 150, 3))
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, 150.0, updated.MetricValue)
	assert.True(t, created.CreatedAt.Equal(updated.CreatedAt))

	records, err := store.FindByDate(ctx, "steps", "u1", "2024-03-01")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 150.0, records[0].MetricValue)
}

func TestMongoUpsertInterval_Concurrent(t *testing.T) {
	store := before(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC)
	key := schema.IntervalKey{UserID: "u1", Date: "2024-03-01", IntervalStart: start}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(value float64) {
			defer wg.Done()
			_, err := store.UpsertInterval(ctx, "heartrate", key, testFields(start, value, 1))
			assert.NoError(t, err)
		}(float64(60 + i))
	}
	wg.Wait()

	records, err := store.FindByDate(ctx, "heartrate", "u1", "2024-03-01")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestMongoFindByDate_Sorted(t *testing.T) {
	store := before(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	for _, offset := range []int{2, 0, 1} {
		start := base.Add(time.Duration(offset) * schema.IntervalWidth)
		key := schema.IntervalKey{UserID: "u1", Date: "2024-03-01", IntervalStart: start}
		_, err := store.UpsertInterval(ctx, "hrv", key, testFields(start, 40, 1))
		require.NoError(t, err)
	}
	records, err := store.FindByDate(ctx, "hrv", "u1", "2024-03-01")
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i := range records {
		assert.True(t, records[i].IntervalStart.Equal(base.Add(time.Duration(i)*schema.IntervalWidth)))
	}
}
