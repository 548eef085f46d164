package usecase

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdblp/interval-sync/schema"
)

func readCsv(t *testing.T, buffer *bytes.Buffer) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(buffer.Bytes())).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRecordsToCsv_Empty(t *testing.T) {
	result, err := recordsToCsv(schema.Steps, nil)
	require.NoError(t, err)

	rows := readCsv(t, result)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"intervalStart", "intervalEnd", "timeLabel", "stepCount", "sampleCount", "deviceSource", "userId", "date", "id", "createdAt", "updatedAt"}, rows[0])
}

func TestRecordsToCsv_IntervalRecords(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	records := []schema.IntervalRecord{
		{
			ID:            "abc",
			UserID:        "u1",
			Date:          "2024-03-01",
			IntervalStart: start,
			IntervalEnd:   start.Add(schema.IntervalWidth),
			TimeLabel:     "10:00 AM",
			MetricValue:   72.5,
			SampleCount:   3,
			DeviceSource:  schema.DefaultDeviceSource,
			CreatedAt:     start,
			UpdatedAt:     start,
		},
		{
			ID:            "def",
			UserID:        "u1",
			Date:          "2024-03-01",
			IntervalStart: start.Add(schema.IntervalWidth),
			IntervalEnd:   start.Add(2 * schema.IntervalWidth),
			TimeLabel:     "10:05 AM",
			DeviceSource:  "watch, wrist",
			CreatedAt:     start,
			UpdatedAt:     start,
		},
	}
	result, err := recordsToCsv(schema.HeartRate, records)
	require.NoError(t, err)

	rows := readCsv(t, result)
	require.Len(t, rows, 3)
	assert.Equal(t, "heartRateValue", rows[0][3])
	assert.Equal(t, []string{"2024-03-01T10:00:00Z", "2024-03-01T10:05:00Z", "10:00 AM", "72.5", "3", "health_connect", "u1", "2024-03-01", "abc", "2024-03-01T10:00:00Z", "2024-03-01T10:00:00Z"}, rows[1])
	assert.Equal(t, "0", rows[2][3])
	assert.Equal(t, "0", rows[2][4])
	assert.Equal(t, "watch, wrist", rows[2][5])
}
