package infrastructure

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/google/uuid"

	"github.com/mdblp/interval-sync/schema"
)

const (
	badgerKeyPrefix   = "iv"
	maxConflictRetry  = 10
	defaultGCInterval = 10 * time.Minute
	gcDiscardRatio    = 0.5
)

var errUserHashCollision = errors.New("interval key already owned by another user")

// BadgerConfig holds the embedded store configuration
type BadgerConfig struct {
	// Path of the database files, ignored when InMemory is set
	Path     string
	InMemory bool
}

// IntervalBadgerRepository embedded implementation of usecase.IntervalRepository
//
// Keys are iv/<metric>/<user hash>/<date>/<intervalStart unix nano, big endian>
// so a day of a user is a single prefix scan, already sorted by intervalStart.
type IntervalBadgerRepository struct {
	db       *badger.DB
	logger   *log.Logger
	now      func() time.Time
	userHash func(string) uint64
}

// NewIntervalBadgerRepository opens (or creates) the badger database
func NewIntervalBadgerRepository(config BadgerConfig, logger *log.Logger) (*IntervalBadgerRepository, error) {
	opts := badger.DefaultOptions(config.Path)
	if config.InMemory {
		opts = opts.WithInMemory(true)
	}
	opts = opts.
		WithLogger(nil).
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(16 << 20).
		WithNumCompactors(2).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &IntervalBadgerRepository{db: db, logger: logger, now: time.Now, userHash: xxhash.Sum64String}, nil
}

func (r *IntervalBadgerRepository) dayPrefix(metric string, userID string, date string) []byte {
	return []byte(fmt.Sprintf("%s/%s/%016x/%s/", badgerKeyPrefix, metric, r.userHash(userID), date))
}

func (r *IntervalBadgerRepository) intervalKey(metric string, key schema.IntervalKey) []byte {
	prefix := r.dayPrefix(metric, key.UserID, key.Date)
	k := make([]byte, len(prefix)+8)
	copy(k, prefix)
	binary.BigEndian.PutUint64(k[len(prefix):], uint64(key.IntervalStart.UnixNano()))
	return k
}

func metricName(metric string) (string, error) {
	def, found := schema.MetricByName(metric)
	if !found {
		return "", fmt.Errorf("unknown metric %q", metric)
	}
	return def.Name, nil
}

// UpsertInterval read-modify-write of the record in a single transaction.
// Conflicting transactions on the same key are replayed.
func (r *IntervalBadgerRepository) UpsertInterval(ctx context.Context, metric string, key schema.IntervalKey, fields schema.IntervalFields) (*schema.IntervalRecord, error) {
	name, err := metricName(metric)
	if err != nil {
		return nil, err
	}
	key.IntervalStart = key.IntervalStart.UTC()
	dbKey := r.intervalKey(name, key)

	var record *schema.IntervalRecord
	for attempt := 0; attempt < maxConflictRetry; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err = r.db.Update(func(txn *badger.Txn) error {
			record = nil
			now := r.now().UTC()
			item, err := txn.Get(dbKey)
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
				record = schema.NewIntervalRecord(key, fields, now)
				record.ID = uuid.New().String()
			case err != nil:
				return err
			default:
				existing := schema.IntervalRecord{}
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &existing)
				}); err != nil {
					return err
				}
				if existing.UserID != key.UserID {
					return fmt.Errorf("%w: %s", errUserHashCollision, existing.UserID)
				}
				existing.Apply(fields)
				existing.UpdatedAt = now
				record = &existing
			}
			value, err := json.Marshal(record)
			if err != nil {
				return err
			}
			return txn.Set(dbKey, value)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("upsert %s interval [%s][%s][%s]: %w", name, key.UserID, key.Date, key.IntervalStart.Format(time.RFC3339), err)
	}
	return record, nil
}

// FindByDate prefix scan of the user day, intervalStart ascending
func (r *IntervalBadgerRepository) FindByDate(ctx context.Context, metric string, userID string, date string) ([]schema.IntervalRecord, error) {
	name, err := metricName(metric)
	if err != nil {
		return nil, err
	}
	prefix := r.dayPrefix(name, userID, date)
	records := make([]schema.IntervalRecord, 0)

	err = r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchSize = 100
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var record schema.IntervalRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			}); err != nil {
				return err
			}
			// user hash collision
			if record.UserID != userID {
				continue
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].IntervalStart.Before(records[j].IntervalStart)
	})
	return records, nil
}

// Ping reports an error when the database was closed
func (r *IntervalBadgerRepository) Ping() error {
	if r.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

func (r *IntervalBadgerRepository) Close() error {
	return r.db.Close()
}

// RunGC rewrites the value log files until there is nothing left to reclaim
func (r *IntervalBadgerRepository) RunGC(discardRatio float64) error {
	for {
		err := r.db.RunValueLogGC(discardRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// RunGCLoop runs the value log GC every interval until ctx is done
func (r *IntervalBadgerRepository) RunGCLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultGCInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			if err := r.RunGC(gcDiscardRatio); err != nil {
				r.logger.Printf("badger GC failed: %s", err)
				continue
			}
			r.logger.Printf("badger GC completed in %v", time.Since(start).Round(time.Millisecond))
		case <-ctx.Done():
			r.logger.Println("Stopping badger GC loop")
			return
		}
	}
}
