package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mdblp/interval-sync/schema"
)

const (
	defaultReadTimeout = 10 * time.Second
	permissionGranted  = "granted"
	accessTypeRead     = "read"
)

type (
	// TimeRangeFilter the [StartTime, EndTime] range of a records read
	TimeRangeFilter struct {
		StartTime time.Time
		EndTime   time.Time
	}

	PermissionRequest struct {
		AccessType string            `json:"accessType"`
		RecordType schema.RecordType `json:"recordType"`
	}

	PermissionResult struct {
		AccessType string            `json:"accessType"`
		RecordType schema.RecordType `json:"recordType"`
		Status     string            `json:"status"`
	}

	// DataSource is the device health data store
	DataSource interface {
		Initialize(ctx context.Context) (bool, error)
		RequestPermission(ctx context.Context, recordTypes []schema.RecordType) ([]PermissionResult, error)
		ReadRecords(ctx context.Context, recordType schema.RecordType, filter TimeRangeFilter) ([]schema.Sample, error)
	}
)

// Granted reports whether the permission was granted
func (p PermissionResult) Granted() bool {
	return p.Status == permissionGranted
}

type (
	stepsRecord struct {
		StartTime time.Time `json:"startTime"`
		EndTime   time.Time `json:"endTime"`
		Count     *float64  `json:"count"`
	}
	heartRateSample struct {
		Time           time.Time `json:"time"`
		BeatsPerMinute *float64  `json:"beatsPerMinute"`
	}
	heartRateRecord struct {
		Samples []heartRateSample `json:"samples"`
	}
	hrvRecord struct {
		Time                       time.Time `json:"time"`
		HeartRateVariabilityMillis *float64  `json:"heartRateVariabilityMillis"`
	}
	recordsResponse struct {
		Records json.RawMessage `json:"records"`
	}
)

// HTTPDataSource reads the health records through a device bridge http api
type HTTPDataSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPDataSource timeout applies to every bridge request, 0 means 10s
func NewHTTPDataSource(baseURL string, timeout time.Duration) *HTTPDataSource {
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	return &HTTPDataSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPDataSource) do(ctx context.Context, method string, path string, body interface{}, result interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %s", ErrSourceUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s failed with status %d", ErrSourceUnavailable, method, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: invalid response to %s %s: %s", ErrSourceUnavailable, method, path, err)
	}
	return nil
}

func (s *HTTPDataSource) Initialize(ctx context.Context) (bool, error) {
	var result struct {
		Initialized bool `json:"initialized"`
	}
	if err := s.do(ctx, http.MethodPost, "/initialize", nil, &result); err != nil {
		return false, err
	}
	return result.Initialized, nil
}

func (s *HTTPDataSource) RequestPermission(ctx context.Context, recordTypes []schema.RecordType) ([]PermissionResult, error) {
	request := make([]PermissionRequest, 0, len(recordTypes))
	for _, recordType := range recordTypes {
		request = append(request, PermissionRequest{AccessType: accessTypeRead, RecordType: recordType})
	}
	var results []PermissionResult
	if err := s.do(ctx, http.MethodPost, "/permissions", request, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// ReadRecords reads the records of a type and flattens them into samples
func (s *HTTPDataSource) ReadRecords(ctx context.Context, recordType schema.RecordType, filter TimeRangeFilter) ([]schema.Sample, error) {
	query := url.Values{}
	query.Set("startTime", filter.StartTime.UTC().Format(time.RFC3339))
	query.Set("endTime", filter.EndTime.UTC().Format(time.RFC3339))
	path := "/records/" + url.PathEscape(string(recordType)) + "?" + query.Encode()

	var response recordsResponse
	if err := s.do(ctx, http.MethodGet, path, nil, &response); err != nil {
		return nil, err
	}
	samples, err := decodeSamples(recordType, response.Records)
	if err != nil {
		return nil, fmt.Errorf("%w: %s records: %s", ErrSourceUnavailable, recordType, err)
	}
	return samples, nil
}

func decodeSamples(recordType schema.RecordType, raw json.RawMessage) ([]schema.Sample, error) {
	samples := make([]schema.Sample, 0)
	if len(raw) == 0 {
		return samples, nil
	}
	switch recordType {
	case schema.RecordTypeSteps:
		var records []stepsRecord
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, err
		}
		for _, r := range records {
			samples = append(samples, schema.Sample{Timestamp: r.StartTime, Value: r.Count})
		}
	case schema.RecordTypeHeartRate:
		var records []heartRateRecord
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, err
		}
		for _, r := range records {
			for _, sample := range r.Samples {
				samples = append(samples, schema.Sample{Timestamp: sample.Time, Value: sample.BeatsPerMinute})
			}
		}
	case schema.RecordTypeHrv:
		var records []hrvRecord
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, err
		}
		for _, r := range records {
			samples = append(samples, schema.Sample{Timestamp: r.Time, Value: r.HeartRateVariabilityMillis})
		}
	default:
		return nil, fmt.Errorf("unsupported record type %q", recordType)
	}
	return samples, nil
}
