package usecase

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"

	"github.com/mdblp/interval-sync/schema"
)

// csvHeaders the value column is named after the metric
func csvHeaders(def schema.MetricDefinition) []string {
	return []string{
		"intervalStart",
		"intervalEnd",
		"timeLabel",
		def.ValueField,
		"sampleCount",
		"deviceSource",
		"userId",
		"date",
		"id",
		"createdAt",
		"updatedAt",
	}
}

func csvRow(record schema.IntervalRecord) []string {
	return []string{
		record.IntervalStart.UTC().Format(time.RFC3339),
		record.IntervalEnd.UTC().Format(time.RFC3339),
		record.TimeLabel,
		strconv.FormatFloat(record.MetricValue, 'f', -1, 64),
		strconv.Itoa(record.SampleCount),
		record.DeviceSource,
		record.UserID,
		record.Date,
		record.ID,
		record.CreatedAt.UTC().Format(time.RFC3339Nano),
		record.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// recordsToCsv one header line then one line per record, in the given order
func recordsToCsv(def schema.MetricDefinition, records []schema.IntervalRecord) (*bytes.Buffer, error) {
	csvBuffer := &bytes.Buffer{}
	csvWriter := csv.NewWriter(csvBuffer)
	if err := csvWriter.Write(csvHeaders(def)); err != nil {
		return nil, err
	}
	for i := range records {
		if err := csvWriter.Write(csvRow(records[i])); err != nil {
			return nil, err
		}
	}
	csvWriter.Flush()
	return csvBuffer, csvWriter.Error()
}
