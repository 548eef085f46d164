package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mdblp/interval-sync/common"
	"github.com/mdblp/interval-sync/schema"
)

const exportTimeout = 2 * time.Minute

const (
	ExportJSON = "json"
	ExportCSV  = "csv"
)

type (
	ExportArgs struct {
		Metric  schema.MetricDefinition
		UserID  string
		TraceID string
		Date    string
		Format  string
	}

	// Exporter writes a day of records to the uploader, run in its own goroutine
	Exporter struct {
		logger       *log.Logger
		uploader     Uploader
		intervalData IntervalDataUseCase
	}
)

func NewExporter(logger *log.Logger, intervalData IntervalDataUseCase, uploader Uploader) Exporter {
	return Exporter{
		logger:       logger,
		uploader:     uploader,
		intervalData: intervalData,
	}
}

// ExportFilename userId/metric/date_exportTime.format
func ExportFilename(args ExportArgs, exportTime time.Time) string {
	startExportTime := strings.ReplaceAll(exportTime.UTC().Round(time.Second).Format(time.RFC3339), ":", "-")
	return fmt.Sprintf("%s/%s/%s_%s.%s", args.UserID, args.Metric.Name, args.Date, startExportTime, args.Format)
}

func (e Exporter) Export(args ExportArgs) {
	e.logger.Printf("{%s} launching %s export of %s for %s", args.TraceID, args.Metric.Name, args.Date, args.UserID)
	ctx, cancel := context.WithTimeout(common.TimeItContext(context.Background()), exportTimeout)
	defer cancel()

	summary, err := e.intervalData.GetByDate(ctx, args.Metric, args.UserID, args.Date)
	if err != nil {
		e.logger.Printf("{%s} get interval data failed: %v", args.TraceID, err)
		return
	}

	buffer, contentType, err := encodeExport(args, summary)
	if err != nil {
		e.logger.Printf("{%s} export encoding failed: %v", args.TraceID, err)
		return
	}
	filename := ExportFilename(args, time.Now())
	if err := e.uploader.Upload(ctx, filename, contentType, buffer); err != nil {
		e.logger.Printf("{%s} S3 upload failed: %v", args.TraceID, err)
		return
	}
	e.logger.Printf("{%s} upload of %s done with success", args.TraceID, filename)
}

func encodeExport(args ExportArgs, summary *schema.DaySummary) (*bytes.Buffer, string, error) {
	switch args.Format {
	case ExportCSV:
		buffer, err := recordsToCsv(args.Metric, summary.Records)
		return buffer, "text/csv", err
	default:
		document := map[string]interface{}{
			"date":   summary.Date,
			"userId": args.UserID,
			"data":   RecordsPayload(args.Metric, summary.Records),
		}
		document[args.Metric.AggregateField] = summary.Aggregate
		buffer := &bytes.Buffer{}
		err := json.NewEncoder(buffer).Encode(document)
		return buffer, "application/json", err
	}
}
