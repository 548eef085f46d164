package agent

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mdblp/interval-sync/schema"
)

const (
	defaultSyncInterval    = 5 * time.Minute
	defaultResumeThreshold = 4 * time.Minute
)

var cycleCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name:      "agent_cycles_total",
	Help:      "The number of sync cycles, by trigger and result",
	Subsystem: "intervalsync",
	Namespace: "dblp",
}, []string{"trigger", "result"})

// State of the scheduler
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateReady
	StateSyncing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateSyncing:
		return "syncing"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

type (
	// CycleRunner runs a whole sync cycle
	CycleRunner interface {
		SyncAll(ctx context.Context) error
	}

	SchedulerConfig struct {
		// Interval between two periodic cycles, default 5m
		Interval time.Duration
		// ResumeThreshold a resume triggers a cycle only when the last success is older, default 4m
		ResumeThreshold time.Duration
		RecordTypes     []schema.RecordType
	}

	// Status is a snapshot of the scheduler
	Status struct {
		State           State
		LastSuccess     time.Time
		LastCompletion  time.Time
		LastError       error
		Cycles          int
		DroppedTriggers int
	}

	// Scheduler triggers the sync cycles: periodically, on resume and on demand.
	// At most one cycle runs at a time, the triggers arriving meanwhile are dropped.
	Scheduler struct {
		source DataSource
		runner CycleRunner
		config SchedulerConfig
		logger *log.Logger
		now    func() time.Time

		syncing atomic.Bool
		cycles  sync.WaitGroup

		mu             sync.Mutex
		state          State
		lastSuccess    time.Time
		lastCompletion time.Time
		lastError      error
		cycleCount     int
		dropped        int
		stopped        bool
		stop           chan struct{}
		done           chan struct{}
	}
)

func NewScheduler(source DataSource, runner CycleRunner, config SchedulerConfig, logger *log.Logger) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = defaultSyncInterval
	}
	if config.ResumeThreshold <= 0 {
		config.ResumeThreshold = defaultResumeThreshold
	}
	return &Scheduler{
		source: source,
		runner: runner,
		config: config,
		logger: logger,
		now:    time.Now,
		state:  StateIdle,
	}
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Scheduler) fail(err error) error {
	s.mu.Lock()
	s.state = StateFailed
	s.lastError = err
	s.mu.Unlock()
	s.logger.Printf("Initialization failed: %s", err)
	return err
}

// Initialize initializes the data source and requests the read permissions.
// A failure leaves the scheduler Failed, it is not retried.
// On success the scheduler is Ready and accepts manual triggers.
func (s *Scheduler) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle || s.stopped {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot initialize from state %s", ErrNotReady, state)
	}
	s.state = StateInitializing
	s.mu.Unlock()

	initialized, err := s.source.Initialize(ctx)
	if err != nil {
		return s.fail(fmt.Errorf("%w: initialize: %s", ErrSourceUnavailable, err))
	}
	if !initialized {
		return s.fail(fmt.Errorf("%w: data source not initialized", ErrSourceUnavailable))
	}
	permissions, err := s.source.RequestPermission(ctx, s.config.RecordTypes)
	if err != nil {
		return s.fail(fmt.Errorf("%w: request permission: %s", ErrSourceUnavailable, err))
	}
	for _, recordType := range s.config.RecordTypes {
		if !isGranted(permissions, recordType) {
			return s.fail(fmt.Errorf("%w: read permission denied for %s", ErrSourceUnavailable, recordType))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrNotReady
	}
	s.state = StateReady
	return nil
}

// Start initializes the scheduler, then runs a first cycle and starts the periodic timer
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Initialize(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrNotReady
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.logger.Printf("Scheduler ready, syncing every %s", s.config.Interval)
	go s.loop(ctx)
	return nil
}

func isGranted(permissions []PermissionResult, recordType schema.RecordType) bool {
	for _, p := range permissions {
		if p.RecordType == recordType && p.Granted() {
			return true
		}
	}
	return false
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.runCycle(ctx, "initial")
	for {
		select {
		case <-ticker.C:
			s.runCycle(ctx, "timer")
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// TriggerNow runs a cycle in the calling goroutine.
// Returns ErrCycleInProgress when a cycle is already running.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	_, err := s.runCycle(ctx, "manual")
	return err
}

// Resume starts a cycle in background when the last success is older than the resume threshold.
// Returns true if a cycle was started.
func (s *Scheduler) Resume(ctx context.Context) bool {
	s.mu.Lock()
	elapsed := s.now().Sub(s.lastSuccess)
	if s.state != StateReady || s.stopped || elapsed <= s.config.ResumeThreshold {
		s.mu.Unlock()
		return false
	}
	s.cycles.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.cycles.Done()
		s.runCycle(ctx, "resume")
	}()
	return true
}

// runCycle returns false when the trigger was dropped
func (s *Scheduler) runCycle(ctx context.Context, trigger string) (bool, error) {
	s.mu.Lock()
	if s.stopped || (s.state != StateReady && s.state != StateSyncing) {
		state := s.state
		s.mu.Unlock()
		return false, fmt.Errorf("%w: state %s", ErrNotReady, state)
	}
	s.cycles.Add(1)
	s.mu.Unlock()
	defer s.cycles.Done()

	if !s.syncing.CompareAndSwap(false, true) {
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		cycleCounter.WithLabelValues(trigger, "dropped").Inc()
		s.logger.Printf("Sync already in progress, %s trigger dropped", trigger)
		return false, ErrCycleInProgress
	}
	defer s.syncing.Store(false)

	s.setState(StateSyncing)
	start := time.Now()
	err := s.runner.SyncAll(ctx)

	s.mu.Lock()
	s.state = StateReady
	s.cycleCount++
	s.lastCompletion = s.now()
	s.lastError = err
	if err == nil {
		s.lastSuccess = s.lastCompletion
	}
	s.mu.Unlock()

	if err != nil {
		cycleCounter.WithLabelValues(trigger, "error").Inc()
		s.logger.Printf("Sync cycle (%s) failed after %v: %s", trigger, time.Since(start).Round(time.Millisecond), err)
		return true, err
	}
	cycleCounter.WithLabelValues(trigger, "ok").Inc()
	s.logger.Printf("Sync cycle (%s) completed in %v", trigger, time.Since(start).Round(time.Millisecond))
	return true, nil
}

// Stop stops the timer and waits for the running cycle, no cycle starts once Stop returned
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	stop, done := s.stop, s.done
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	s.cycles.Wait()
	s.setState(StateIdle)
	s.logger.Println("Scheduler stopped")
}

// Status returns a snapshot of the scheduler state
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:           s.state,
		LastSuccess:     s.lastSuccess,
		LastCompletion:  s.lastCompletion,
		LastError:       s.lastError,
		Cycles:          s.cycleCount,
		DroppedTriggers: s.dropped,
	}
}
