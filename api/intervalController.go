package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mdblp/interval-sync/common"
	"github.com/mdblp/interval-sync/schema"
	"github.com/mdblp/interval-sync/usecase"
)

type (
	// intervalPayload one interval of a POST body, the value field name depends on the metric
	intervalPayload struct {
		IntervalStart string   `json:"intervalStart"`
		IntervalEnd   string   `json:"intervalEnd"`
		TimeLabel     string   `json:"timeLabel"`
		Value         *float64 `json:"-"`
		SampleCount   *int     `json:"sampleCount"`
		DeviceSource  string   `json:"deviceSource"`
	}

	failurePayload struct {
		Index         int    `json:"index"`
		IntervalStart string `json:"intervalStart"`
		Error         string `json:"error"`
	}

	storeResponse struct {
		Success  bool                     `json:"success"`
		Message  string                   `json:"message"`
		Data     []map[string]interface{} `json:"data"`
		Error    string                   `json:"error,omitempty"`
		Failures []failurePayload         `json:"failures,omitempty"`
	}
)

// decodeIntervals reads the intervals array of the metric and converts each entry.
// Any entry which cannot be read fails the whole batch.
func decodeIntervals(def schema.MetricDefinition, raw json.RawMessage) ([]schema.IntervalFields, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.New("not an array")
	}
	var payloads []intervalPayload
	if err := json.Unmarshal(trimmed, &payloads); err != nil {
		return nil, err
	}
	// second pass for the value, its name depends on the metric
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, err
	}

	fields := make([]schema.IntervalFields, 0, len(payloads))
	for i, payload := range payloads {
		if rawValue, found := items[i][def.ValueField]; found {
			if err := json.Unmarshal(rawValue, &payload.Value); err != nil {
				return nil, fmt.Errorf("interval %d: invalid %s: %w", i, def.ValueField, err)
			}
		}
		start, err := time.Parse(time.RFC3339Nano, payload.IntervalStart)
		if err != nil {
			return nil, fmt.Errorf("interval %d: invalid intervalStart: %w", i, err)
		}
		end, err := time.Parse(time.RFC3339Nano, payload.IntervalEnd)
		if err != nil {
			return nil, fmt.Errorf("interval %d: invalid intervalEnd: %w", i, err)
		}
		var value float64
		if payload.Value != nil {
			value = *payload.Value
		}
		sampleCount := 0
		switch {
		case payload.SampleCount != nil:
			sampleCount = *payload.SampleCount
		case value != 0:
			// a value sent without count comes from at least one sample
			sampleCount = 1
		}
		fields = append(fields, schema.IntervalFields{
			IntervalStart: start.UTC(),
			IntervalEnd:   end.UTC(),
			TimeLabel:     payload.TimeLabel,
			MetricValue:   value,
			SampleCount:   sampleCount,
			DeviceSource:  payload.DeviceSource,
		})
	}
	return fields, nil
}

// rawString returns the string at key, empty if absent or null
func rawString(body map[string]json.RawMessage, key string) (string, error) {
	raw, found := body[key]
	if !found {
		return "", nil
	}
	var value *string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", err
	}
	if value == nil {
		return "", nil
	}
	return *value, nil
}

// userID returns the requested user, or the default one
func (a *API) userID(requested string) (string, *common.DetailedError) {
	if requested != "" {
		return requested, nil
	}
	if a.defaultUserID != "" {
		return a.defaultUserID, nil
	}
	detailedErr := common.ErrorMissingUser
	return "", &detailedErr
}

// @Summary Store the intervals of a metric
// @Description Idempotent upsert of each interval keyed by (userId, date, intervalStart).
// Returns 207 when only a part of the intervals were stored.
// @ID interval-sync-api-post-intervals
// @Accept json
// @Produce json
// @Success 200 {object} storeResponse
// @Success 207 {object} storeResponse
// @Failure 400 {object} common.DetailedError
// @Failure 500 {object} storeResponse
// @Router /api/{metric} [post]
func (a *API) postIntervals(def schema.MetricDefinition) HandlerLoggerFunc {
	return func(ctx context.Context, res *common.HttpResponseWriter) error {
		var body map[string]json.RawMessage
		if err := json.Unmarshal(res.Body, &body); err != nil || body == nil {
			detailedErr := common.ErrorInvalidBody
			if err != nil {
				detailedErr = detailedErr.SetInternalMessage(err)
			}
			return res.WriteError(&detailedErr)
		}

		rawIntervals, found := body[def.IntervalsField]
		if !found {
			detailedErr := common.ErrorMissingIntervals.WithMessage(def.IntervalsField + " array is required")
			return res.WriteError(&detailedErr)
		}
		fields, err := decodeIntervals(def, rawIntervals)
		if err != nil {
			detailedErr := common.ErrorMissingIntervals.WithMessage(def.IntervalsField + " must be an array of valid intervals").SetDetail(err)
			return res.WriteError(&detailedErr)
		}

		requestedUser, err := rawString(body, "userId")
		if err != nil {
			detailedErr := common.ErrorInvalidParameters.SetDetail(err)
			return res.WriteError(&detailedErr)
		}
		userID, detailedErr := a.userID(requestedUser)
		if detailedErr != nil {
			return res.WriteError(detailedErr)
		}

		date, err := rawString(body, "date")
		if err != nil {
			detailedErr := common.ErrorInvalidDate.SetInternalMessage(err)
			return res.WriteError(&detailedErr)
		}
		if date == "" {
			date = a.intervalData.Today()
		} else if _, err := schema.ParseDay(date); err != nil {
			detailedErr := common.ErrorInvalidDate.SetInternalMessage(err)
			return res.WriteError(&detailedErr)
		}

		common.TimeIt(ctx, "store")
		result := a.intervalData.StoreIntervals(ctx, def, userID, date, fields)
		common.TimeEnd(ctx, "store")

		response := storeResponse{
			Success: len(result.Failures) == 0,
			Data:    usecase.RecordsPayload(def, result.Stored),
		}
		for _, failure := range result.Failures {
			response.Failures = append(response.Failures, failurePayload{
				Index:         failure.Index,
				IntervalStart: failure.IntervalStart.UTC().Format(time.RFC3339),
				Error:         failure.Err.Error(),
			})
		}

		statusCode := http.StatusOK
		switch {
		case result.AllFailed():
			statusCode = http.StatusInternalServerError
			response.Message = fmt.Sprintf("Failed to store %s data", def.Label)
			response.Error = result.Failures[0].Err.Error()
		case len(result.Failures) > 0:
			statusCode = http.StatusMultiStatus
			response.Message = fmt.Sprintf("Stored %d of %d %s intervals", len(result.Stored), len(fields), def.Label)
		default:
			response.Message = fmt.Sprintf("Stored %d %s intervals", len(result.Stored), def.Label)
		}
		return res.WriteJSON(statusCode, response)
	}
}

func (a *API) writeSummary(def schema.MetricDefinition, res *common.HttpResponseWriter, summary *schema.DaySummary) error {
	response := map[string]interface{}{
		"success": true,
		"date":    summary.Date,
		"data":    usecase.RecordsPayload(def, summary.Records),
	}
	response[def.AggregateField] = summary.Aggregate
	return res.WriteJSON(http.StatusOK, response)
}

// @Summary Get the intervals of the current day
// @ID interval-sync-api-get-today
// @Produce json
// @Param userId query string false "The user, the service default user when omitted"
// @Router /api/{metric}/today [get]
func (a *API) getToday(def schema.MetricDefinition) HandlerLoggerFunc {
	return func(ctx context.Context, res *common.HttpResponseWriter) error {
		userID, detailedErr := a.userID(res.Query("userId"))
		if detailedErr != nil {
			return res.WriteError(detailedErr)
		}
		summary, err := a.intervalData.GetToday(ctx, def, userID)
		if err != nil {
			detailedErr := common.ErrorRunningQuery.SetInternalMessage(err)
			return res.WriteError(&detailedErr)
		}
		return a.writeSummary(def, res, summary)
	}
}

// @Summary Get the intervals of a day
// @ID interval-sync-api-get-date
// @Produce json
// @Param date path string true "YYYY-MM-DD"
// @Param userId query string false "The user, the service default user when omitted"
// @Failure 400 {object} common.DetailedError
// @Router /api/{metric}/{date} [get]
func (a *API) getByDate(def schema.MetricDefinition) HandlerLoggerFunc {
	return func(ctx context.Context, res *common.HttpResponseWriter) error {
		date := res.VARS["date"]
		if _, err := schema.ParseDay(date); err != nil {
			detailedErr := common.ErrorInvalidDate.SetInternalMessage(err)
			return res.WriteError(&detailedErr)
		}
		userID, detailedErr := a.userID(res.Query("userId"))
		if detailedErr != nil {
			return res.WriteError(detailedErr)
		}
		summary, err := a.intervalData.GetByDate(ctx, def, userID, date)
		if err != nil {
			detailedErr := common.ErrorRunningQuery.SetInternalMessage(err)
			return res.WriteError(&detailedErr)
		}
		return a.writeSummary(def, res, summary)
	}
}
