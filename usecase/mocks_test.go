package usecase

import (
	"bytes"
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/mdblp/interval-sync/schema"
)

// MockIntervalRepository testify mock of IntervalRepository
type MockIntervalRepository struct {
	mock.Mock
}

func (m *MockIntervalRepository) UpsertInterval(ctx context.Context, metric string, key schema.IntervalKey, fields schema.IntervalFields) (*schema.IntervalRecord, error) {
	args := m.Called(ctx, metric, key, fields)
	record, _ := args.Get(0).(*schema.IntervalRecord)
	return record, args.Error(1)
}

func (m *MockIntervalRepository) FindByDate(ctx context.Context, metric string, userID string, date string) ([]schema.IntervalRecord, error) {
	args := m.Called(ctx, metric, userID, date)
	records, _ := args.Get(0).([]schema.IntervalRecord)
	return records, args.Error(1)
}

// MockIntervalDataUseCase testify mock of IntervalDataUseCase
type MockIntervalDataUseCase struct {
	mock.Mock
}

func (m *MockIntervalDataUseCase) StoreIntervals(ctx context.Context, def schema.MetricDefinition, userID string, date string, fields []schema.IntervalFields) *BatchResult {
	args := m.Called(ctx, def, userID, date, fields)
	result, _ := args.Get(0).(*BatchResult)
	return result
}

func (m *MockIntervalDataUseCase) GetByDate(ctx context.Context, def schema.MetricDefinition, userID string, date string) (*schema.DaySummary, error) {
	args := m.Called(ctx, def, userID, date)
	summary, _ := args.Get(0).(*schema.DaySummary)
	return summary, args.Error(1)
}

func (m *MockIntervalDataUseCase) GetToday(ctx context.Context, def schema.MetricDefinition, userID string) (*schema.DaySummary, error) {
	args := m.Called(ctx, def, userID)
	summary, _ := args.Get(0).(*schema.DaySummary)
	return summary, args.Error(1)
}

func (m *MockIntervalDataUseCase) Today() string {
	return m.Called().String(0)
}

// MockUploader testify mock of Uploader
type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) Upload(ctx context.Context, key string, contentType string, buffer *bytes.Buffer) error {
	return m.Called(ctx, key, contentType, buffer).Error(0)
}
