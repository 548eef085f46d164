package usecase

import (
	"bytes"
	"context"

	"github.com/mdblp/interval-sync/schema"
)

// IntervalRepository is the upsert store of the interval records.
//
// Implementations guarantee a unique record per (userId, date, intervalStart),
// whatever the number of concurrent writers.
type IntervalRepository interface {
	// UpsertInterval creates the record of key or replaces its mutable fields
	UpsertInterval(ctx context.Context, metric string, key schema.IntervalKey, fields schema.IntervalFields) (*schema.IntervalRecord, error)
	// FindByDate returns the records of a user day sorted by intervalStart ascending
	FindByDate(ctx context.Context, metric string, userID string, date string) ([]schema.IntervalRecord, error)
}

type DatabaseAdapter interface {
	Ping() error
	Close() error
}

type Uploader interface {
	Upload(ctx context.Context, key string, contentType string, buffer *bytes.Buffer) error
}
