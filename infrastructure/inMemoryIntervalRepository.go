package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mdblp/interval-sync/schema"
)

// ErrMockUpsert is returned by InMemoryIntervalRepository for the failing interval starts
var ErrMockUpsert = errors.New("mock upsert error")

// InMemoryIntervalRepository in memory usecase.IntervalRepository, for unit tests
type InMemoryIntervalRepository struct {
	mu      sync.Mutex
	records map[string]map[string]*schema.IntervalRecord

	// FailStarts lists the interval starts (RFC3339) which upsert fails
	FailStarts []string
	// FindError is returned by FindByDate when set
	FindError error
	Now       func() time.Time
}

func NewInMemoryIntervalRepository() *InMemoryIntervalRepository {
	return &InMemoryIntervalRepository{
		records: make(map[string]map[string]*schema.IntervalRecord),
		Now:     time.Now,
	}
}

func mockKey(key schema.IntervalKey) string {
	return fmt.Sprintf("%s|%s|%d", key.UserID, key.Date, key.IntervalStart.UnixNano())
}

func (c *InMemoryIntervalRepository) UpsertInterval(ctx context.Context, metric string, key schema.IntervalKey, fields schema.IntervalFields) (*schema.IntervalRecord, error) {
	start := key.IntervalStart.UTC().Format(time.RFC3339)
	for _, failing := range c.FailStarts {
		if failing == start {
			return nil, ErrMockUpsert
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	byKey, found := c.records[metric]
	if !found {
		byKey = make(map[string]*schema.IntervalRecord)
		c.records[metric] = byKey
	}
	now := c.Now().UTC()
	record, found := byKey[mockKey(key)]
	if !found {
		record = schema.NewIntervalRecord(key, fields, now)
		record.ID = uuid.New().String()
		byKey[mockKey(key)] = record
	} else {
		record.Apply(fields)
		record.UpdatedAt = now
	}
	res := *record
	return &res, nil
}

func (c *InMemoryIntervalRepository) FindByDate(ctx context.Context, metric string, userID string, date string) ([]schema.IntervalRecord, error) {
	if c.FindError != nil {
		return nil, c.FindError
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	records := make([]schema.IntervalRecord, 0)
	for _, record := range c.records[metric] {
		if record.UserID == userID && record.Date == date {
			records = append(records, *record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].IntervalStart.Before(records[j].IntervalStart)
	})
	return records, nil
}

// Count returns the number of records stored for metric
func (c *InMemoryIntervalRepository) Count(metric string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records[metric])
}
