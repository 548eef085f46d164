package common

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type timeItKey int

// timings collects named durations of a request, reported in the access log
type timings struct {
	mu      sync.Mutex
	started map[string]time.Time
	results []string
}

// IsValidUUID check if the uuid is valid
func IsValidUUID(u string) bool {
	_, err := uuid.Parse(u)
	return err == nil
}

// TimeItContext returns a context able to record timers with TimeIt / TimeEnd
func TimeItContext(ctx context.Context) context.Context {
	value := &timings{started: make(map[string]time.Time)}
	return context.WithValue(ctx, timeItKey(0), value)
}

func timingsFrom(ctx context.Context) *timings {
	value, ok := ctx.Value(timeItKey(0)).(*timings)
	if !ok {
		return nil
	}
	return value
}

// TimeIt starts the timer name. Noop if the context was not made by TimeItContext
func TimeIt(ctx context.Context, name string) {
	t := timingsFrom(ctx)
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, present := t.started[name]; present {
		return
	}
	t.started[name] = time.Now()
}

// TimeEnd stops the timer name and returns its duration in ms
func TimeEnd(ctx context.Context, name string) int64 {
	t := timingsFrom(ctx)
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	start, present := t.started[name]
	if !present {
		return 0
	}
	delete(t.started, name)
	dur := time.Since(start).Milliseconds()
	t.results = append(t.results, fmt.Sprintf("%s:%dms", name, dur))
	return dur
}

// TimeResults returns "name:12ms name2:3ms" for the ended timers
func TimeResults(ctx context.Context) string {
	t := timingsFrom(ctx)
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.results, " ")
}
