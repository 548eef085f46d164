package agent

import "errors"

var (
	// ErrSourceUnavailable the device data source cannot be initialized, denied a permission or failed a read
	ErrSourceUnavailable = errors.New("data source unavailable")
	// ErrNetwork no reachable endpoint, transport failure or non 2xx response
	ErrNetwork = errors.New("network error")
	// ErrPartialFailure the service stored only a part of the submitted intervals
	ErrPartialFailure = errors.New("some intervals were not stored")
	// ErrCycleInProgress a trigger arrived while a sync cycle was running, it was dropped
	ErrCycleInProgress = errors.New("sync cycle already in progress")
	// ErrNotReady the scheduler is not initialized, failed or stopped
	ErrNotReady = errors.New("scheduler not ready")
)
