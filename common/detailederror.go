package common

import "net/http"

// DetailedError is the error body returned by the api
type DetailedError struct {
	Status          int    `json:"-"`               // Http status code
	Success         bool   `json:"success"`         // Always false, kept for the clients which test it
	ID              string `json:"id"`              // provided to user so that we can better track down issues
	Code            string `json:"code"`            // Code which may be used to translate the message to the final user
	Message         string `json:"message"`         // Understandable message sent to the client
	Detail          string `json:"error,omitempty"` // Reason of the failure, when it can be disclosed
	InternalMessage string `json:"-"`               // used only for logging so we don't want to serialize it out
}

// set the internal message that we will use for logging
func (d DetailedError) SetInternalMessage(internal error) DetailedError {
	d.InternalMessage = internal.Error()
	return d
}

// SetDetail set both the disclosed reason and the internal message
func (d DetailedError) SetDetail(err error) DetailedError {
	d.Detail = err.Error()
	d.InternalMessage = err.Error()
	return d
}

// WithMessage returns a copy with another user message
func (d DetailedError) WithMessage(message string) DetailedError {
	d.Message = message
	return d
}

func (d DetailedError) Error() string {
	if d.InternalMessage != "" {
		return d.Code + ": " + d.InternalMessage
	}
	return d.Code + ": " + d.Message
}

var (
	ErrorInvalidParameters = DetailedError{Status: http.StatusBadRequest, Code: "invalid_parameters", Message: "one or more parameters are invalid"}
	ErrorInvalidBody       = DetailedError{Status: http.StatusBadRequest, Code: "invalid_body", Message: "request body is not a valid json object"}
	ErrorMissingIntervals  = DetailedError{Status: http.StatusBadRequest, Code: "missing_intervals", Message: "intervals array is required"}
	ErrorInvalidDate       = DetailedError{Status: http.StatusBadRequest, Code: "invalid_date", Message: "date must use the YYYY-MM-DD format"}
	ErrorMissingUser       = DetailedError{Status: http.StatusBadRequest, Code: "missing_user", Message: "userId is required"}
	ErrorRunningQuery      = DetailedError{Status: http.StatusInternalServerError, Code: "data_store_error", Message: "internal server error"}
	ErrorJSONMarshal       = DetailedError{Status: http.StatusInternalServerError, Code: "json_marshal_error", Message: "internal server error"}
)
