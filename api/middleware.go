package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/mdblp/interval-sync/common"
)

const maxBodySize = 4 << 20

// HandlerLoggerFunc expose our httpResponseWriter API
type HandlerLoggerFunc func(context.Context, *common.HttpResponseWriter) error

// middleware reads the request, calls fn and logs the result
func (a *API) middleware(fn HandlerLoggerFunc, params ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		start := time.Now().UTC()

		// Get the request information before writing
		logErrors := make([]string, 0, 5)
		logRequest := fmt.Sprintf("%s - %s %s HTTP/%d.%d", r.RemoteAddr, r.Method, r.URL.String(), r.ProtoMajor, r.ProtoMinor)

		traceID := r.Header.Get("x-tidepool-trace-session")
		if !common.IsValidUUID(traceID) {
			logErrors = append(logErrors, fmt.Sprintf("no-trace:\"%s\"", traceID))
			traceID = uuid.New().String()
		}

		ctx := common.TimeItContext(r.Context())

		res := common.HttpResponseWriter{
			Header:     r.Header.Clone(),
			URL:        r.URL,
			VARS:       nil,
			TraceID:    traceID,
			StatusCode: http.StatusOK,
			Err:        nil,
		}

		if len(params) > 0 {
			res.VARS = mux.Vars(r)
		}

		if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut) {
			res.Body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
			if err != nil {
				res.WriteError(&common.DetailedError{
					Status:          http.StatusBadRequest,
					Code:            "invalid_body",
					Message:         "unable to read the request body",
					InternalMessage: err.Error(),
				})
			}
		}

		// Maintainers: No read from the request below this point!

		if res.Err == nil {
			err = fn(ctx, &res)
			if err != nil {
				logErrors = append(logErrors, fmt.Sprintf("efn:\"%s\"", err))
			}
		}

		w.Header().Add("Content-Type", "application/json")
		w.WriteHeader(res.StatusCode)
		_, err = w.Write([]byte(res.WriteBuffer.String()))
		if err != nil {
			logErrors = append(logErrors, fmt.Sprintf("eww:\"%s\"", err))
		}

		if res.Err != nil {
			if res.Err.Code != "" {
				logErrors = append(logErrors, fmt.Sprintf("code:\"%s\"", res.Err.Code))
			}
			if res.Err.InternalMessage != "" {
				logErrors = append(logErrors, fmt.Sprintf("err:\"%s\"", res.Err.InternalMessage))
			}
		}

		dur := time.Now().UTC().Sub(start).Milliseconds()
		var logError string
		if len(logErrors) > 0 {
			logError = fmt.Sprintf("{%s} - ", strings.Join(logErrors, ","))
		}

		timerResults := common.TimeResults(ctx)
		if len(timerResults) > 0 {
			timerResults = fmt.Sprintf("{%s} %d ms", timerResults, dur)
		} else {
			timerResults = fmt.Sprintf("%d ms", dur)
		}
		a.logger.Printf("{%s} %s %d - %s%s - %d bytes", traceID, logRequest, res.StatusCode, logError, timerResults, res.Size)
	}
}
