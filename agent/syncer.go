package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mdblp/interval-sync/data"
	"github.com/mdblp/interval-sync/schema"
)

type (
	// Resolver returns the endpoint to use for a sync cycle
	Resolver interface {
		Resolve(ctx context.Context) (Endpoint, error)
	}

	IntervalSubmitter interface {
		Submit(ctx context.Context, endpoint Endpoint, submission Submission) (*SubmitResult, error)
	}

	SyncerConfig struct {
		Metrics      []schema.MetricDefinition
		UserID       string
		DeviceSource string
		ReadTimeout  time.Duration
	}

	// Syncer runs one sync cycle: read today's samples, aggregate them and submit the intervals
	Syncer struct {
		source    DataSource
		resolver  Resolver
		submitter IntervalSubmitter
		config    SyncerConfig
		logger    *log.Logger
		now       func() time.Time
	}
)

func NewSyncer(source DataSource, resolver Resolver, submitter IntervalSubmitter, config SyncerConfig, logger *log.Logger) *Syncer {
	if len(config.Metrics) == 0 {
		config.Metrics = schema.Metrics
	}
	if config.DeviceSource == "" {
		config.DeviceSource = schema.DefaultDeviceSource
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = defaultReadTimeout
	}
	return &Syncer{
		source:    source,
		resolver:  resolver,
		submitter: submitter,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// RecordTypes the data source record types read by the configured metrics
func (s *Syncer) RecordTypes() []schema.RecordType {
	recordTypes := make([]schema.RecordType, 0, len(s.config.Metrics))
	for _, def := range s.config.Metrics {
		recordTypes = append(recordTypes, def.RecordType)
	}
	return recordTypes
}

// Candidates reads the samples of the local day of now and reduces them into intervals, latest first
func (s *Syncer) Candidates(ctx context.Context, def schema.MetricDefinition, now time.Time) ([]schema.IntervalCandidate, error) {
	intervals := data.GenerateIntervals(now)
	start, end := data.DayRange(now)

	readCtx, cancel := context.WithTimeout(ctx, s.config.ReadTimeout)
	defer cancel()
	samples, err := s.source.ReadRecords(readCtx, def.RecordType, TimeRangeFilter{StartTime: start, EndTime: end})
	if err != nil {
		if !errors.Is(err, ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %s", ErrSourceUnavailable, err)
		}
		return nil, err
	}
	return data.Aggregate(samples, intervals, def.Reducer), nil
}

// SyncMetric syncs one metric of the current day to endpoint
func (s *Syncer) SyncMetric(ctx context.Context, endpoint Endpoint, def schema.MetricDefinition) (*SubmitResult, error) {
	now := s.now()
	candidates, err := s.Candidates(ctx, def, now)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", def.Name, err)
	}
	result, err := s.submitter.Submit(ctx, endpoint, Submission{
		Metric:       def,
		UserID:       s.config.UserID,
		Date:         schema.FormatDay(now),
		DeviceSource: s.config.DeviceSource,
		Candidates:   candidates,
	})
	if err != nil {
		return result, fmt.Errorf("submit %s: %w", def.Name, err)
	}
	s.logger.Printf("Synced %d %s intervals to %s (%s)", len(candidates), def.Label, endpoint.BaseURL, result.Message)
	return result, nil
}

// SyncAll resolves the endpoint then syncs every metric in turn.
// A data source failure aborts the cycle, a submission failure only fails its metric.
func (s *Syncer) SyncAll(ctx context.Context) error {
	endpoint, err := s.resolver.Resolve(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, def := range s.config.Metrics {
		if _, err := s.SyncMetric(ctx, endpoint, def); err != nil {
			s.logger.Printf("Sync of %s failed: %s", def.Label, err)
			errs = append(errs, err)
			if errors.Is(err, ErrSourceUnavailable) {
				break
			}
		}
	}
	return errors.Join(errs...)
}
