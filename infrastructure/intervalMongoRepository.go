package infrastructure

import (
	"context"
	"fmt"
	"log"
	"time"

	goComMgo "github.com/tidepool-org/go-common/clients/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mdblp/interval-sync/schema"
)

const (
	idxUserDateStart = "UserIdDateIntervalStartUnique"
	idxUserDate      = "UserIdDate"
)

// intervalDocument is the mongo representation of schema.IntervalRecord
type intervalDocument struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	UserID        string             `bson:"userId"`
	Date          string             `bson:"date"`
	IntervalStart time.Time          `bson:"intervalStart"`
	IntervalEnd   time.Time          `bson:"intervalEnd"`
	TimeLabel     string             `bson:"timeLabel"`
	MetricValue   float64            `bson:"metricValue"`
	SampleCount   int                `bson:"sampleCount"`
	DeviceSource  string             `bson:"deviceSource"`
	CreatedAt     time.Time          `bson:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt"`
}

func (d *intervalDocument) toRecord() schema.IntervalRecord {
	record := schema.IntervalRecord{
		UserID:        d.UserID,
		Date:          d.Date,
		IntervalStart: d.IntervalStart,
		IntervalEnd:   d.IntervalEnd,
		TimeLabel:     d.TimeLabel,
		MetricValue:   d.MetricValue,
		SampleCount:   d.SampleCount,
		DeviceSource:  d.DeviceSource,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if !d.ID.IsZero() {
		record.ID = d.ID.Hex()
	}
	return record
}

// intervalIndexes: the unique index is what makes the upsert safe
// against concurrent writers of the same bucket
func intervalIndexes() map[string][]mongo.IndexModel {
	indexes := make(map[string][]mongo.IndexModel, len(schema.Metrics))
	for _, metric := range schema.Metrics {
		indexes[metric.Collection] = []mongo.IndexModel{
			{
				Keys: bson.D{{Key: "userId", Value: 1}, {Key: "date", Value: 1}, {Key: "intervalStart", Value: 1}},
				Options: options.Index().
					SetName(idxUserDateStart).
					SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "date", Value: 1}},
				Options: options.Index().SetName(idxUserDate),
			},
		}
	}
	return indexes
}

// IntervalMongoRepository mongo implementation of usecase.IntervalRepository,
// one collection per metric
type IntervalMongoRepository struct {
	*goComMgo.StoreClient
	now func() time.Time
}

// NewIntervalMongoRepository creates a new interval repository for mongo
func NewIntervalMongoRepository(config *goComMgo.Config, logger *log.Logger) (*IntervalMongoRepository, error) {
	if config != nil {
		config.Indexes = intervalIndexes()
	}
	repo := IntervalMongoRepository{now: time.Now}
	store, err := goComMgo.NewStoreClient(config, logger)
	repo.StoreClient = store
	return &repo, err
}

func (r *IntervalMongoRepository) collection(metric string) (*mongo.Collection, error) {
	def, found := schema.MetricByName(metric)
	if !found {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}
	return r.Collection(def.Collection), nil
}

func keyFilter(key schema.IntervalKey) bson.M {
	return bson.M{
		"userId":        key.UserID,
		"date":          key.Date,
		"intervalStart": key.IntervalStart,
	}
}

// UpsertInterval atomic create-or-replace of the record of key.
//
// Two concurrent upserts of a new key can both miss the document and try to insert it:
// the unique index rejects the second one, which is then replayed as an update.
func (r *IntervalMongoRepository) UpsertInterval(ctx context.Context, metric string, key schema.IntervalKey, fields schema.IntervalFields) (*schema.IntervalRecord, error) {
	coll, err := r.collection(metric)
	if err != nil {
		return nil, err
	}
	deviceSource := fields.DeviceSource
	if deviceSource == "" {
		deviceSource = schema.DefaultDeviceSource
	}

	now := r.now().UTC()
	update := bson.M{
		"$set": bson.M{
			"intervalEnd":  fields.IntervalEnd,
			"timeLabel":    fields.TimeLabel,
			"metricValue":  fields.MetricValue,
			"sampleCount":  fields.SampleCount,
			"deviceSource": deviceSource,
			"updatedAt":    now,
		},
		"$setOnInsert": bson.M{
			"createdAt": now,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc intervalDocument
	err = coll.FindOneAndUpdate(ctx, keyFilter(key), update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		doc = intervalDocument{}
		err = coll.FindOneAndUpdate(ctx, keyFilter(key), update, opts).Decode(&doc)
	}
	if err != nil {
		return nil, fmt.Errorf("upsert %s interval [%s][%s][%s]: %w", metric, key.UserID, key.Date, key.IntervalStart.Format(time.RFC3339), err)
	}
	record := doc.toRecord()
	return &record, nil
}

// FindByDate returns the records of the day, intervalStart ascending
func (r *IntervalMongoRepository) FindByDate(ctx context.Context, metric string, userID string, date string) ([]schema.IntervalRecord, error) {
	coll, err := r.collection(metric)
	if err != nil {
		return nil, err
	}
	query := bson.M{
		"userId": userID,
		"date":   date,
	}
	opts := options.Find()
	opts.SetHint(idxUserDateStart)
	opts.SetSort(bson.D{primitive.E{Key: "intervalStart", Value: 1}})

	cursor, err := coll.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []intervalDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	records := make([]schema.IntervalRecord, 0, len(docs))
	for i := range docs {
		records = append(records, docs[i].toRecord())
	}
	return records, nil
}
