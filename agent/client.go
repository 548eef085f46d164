package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mdblp/interval-sync/schema"
)

const defaultSubmitTimeout = 10 * time.Second

type (
	// SubmitResult is the service answer to a submission
	SubmitResult struct {
		StatusCode int             `json:"-"`
		Success    bool            `json:"success"`
		Message    string          `json:"message"`
		Stored     int             `json:"-"`
		Failures   []SubmitFailure `json:"failures"`
	}

	SubmitFailure struct {
		Index         int    `json:"index"`
		IntervalStart string `json:"intervalStart"`
		Error         string `json:"error"`
	}

	// Submission the intervals of one metric for one day
	Submission struct {
		Metric       schema.MetricDefinition
		UserID       string
		Date         string
		DeviceSource string
		Candidates   []schema.IntervalCandidate
	}

	// Submitter posts the aggregated intervals to the service
	Submitter struct {
		client  *http.Client
		timeout time.Duration
	}
)

// NewSubmitter timeout of a whole submission, 0 means 10s
func NewSubmitter(timeout time.Duration) *Submitter {
	if timeout <= 0 {
		timeout = defaultSubmitTimeout
	}
	return &Submitter{
		client:  &http.Client{},
		timeout: timeout,
	}
}

// Body builds the POST /{metric} json body
func (s Submission) Body() map[string]interface{} {
	intervals := make([]map[string]interface{}, 0, len(s.Candidates))
	for _, c := range s.Candidates {
		interval := map[string]interface{}{
			"intervalStart": c.Start.UTC().Format(time.RFC3339),
			"intervalEnd":   c.End.UTC().Format(time.RFC3339),
			"timeLabel":     c.Label,
			"sampleCount":   c.SampleCount,
			"deviceSource":  s.DeviceSource,
		}
		interval[s.Metric.ValueField] = c.Value
		intervals = append(intervals, interval)
	}
	body := map[string]interface{}{
		"date": s.Date,
	}
	body[s.Metric.IntervalsField] = intervals
	if s.UserID != "" {
		body["userId"] = s.UserID
	}
	return body
}

// Submit posts the submission to the endpoint.
// A 207 answer returns the result with ErrPartialFailure, any other non 2xx is ErrNetwork.
func (s *Submitter) Submit(ctx context.Context, endpoint Endpoint, submission Submission) (*SubmitResult, error) {
	jsonData, err := json.Marshal(submission.Body())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal intervals: %w", err)
	}

	submitCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(submitCtx, http.MethodPost, endpoint.URL(submission.Metric.Name), bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %s", ErrNetwork, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to send request: %s", ErrNetwork, err)
	}
	defer resp.Body.Close()

	var result struct {
		SubmitResult
		Data []json.RawMessage `json:"data"`
	}
	// the body of a failed request may not be json
	_ = json.NewDecoder(resp.Body).Decode(&result)
	submitResult := result.SubmitResult
	submitResult.StatusCode = resp.StatusCode
	submitResult.Stored = len(result.Data)

	switch {
	case resp.StatusCode == http.StatusMultiStatus:
		return &submitResult, fmt.Errorf("%w: %d of %d intervals failed", ErrPartialFailure, len(submitResult.Failures), len(submission.Candidates))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &submitResult, fmt.Errorf("%w: request failed with status %d: %s", ErrNetwork, resp.StatusCode, submitResult.Message)
	}
	return &submitResult, nil
}
