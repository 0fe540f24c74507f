package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/logger"
)

// Result is the outcome of one unit of work.
type Result int

const (
	// Idle means nothing was claimable.
	Idle Result = iota
	// Done means a unit of work was committed.
	Done
	// Failed means a unit of work was attempted and rolled back or
	// rescheduled.
	Failed
)

func (r Result) String() string {
	switch r {
	case Idle:
		return "idle"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// StepFunc runs one unit of work. A non-nil error is logged and treated
// as Failed.
type StepFunc func(ctx context.Context) (Result, error)

// LoopConfig configures a polling loop.
type LoopConfig struct {
	// Name is used for logging
	Name string
	// Poll is the backoff applied after empty polls. Poll.Base is also the
	// pause while processing is disabled.
	Poll Backoff
	// FailureDelay is slept after a Failed step. Zero retries immediately.
	FailureDelay time.Duration
}

// SleepFunc waits for d. It returns false if the loop should exit.
type SleepFunc func(ctx context.Context, stop <-chan struct{}, d time.Duration) bool

// Loop repeatedly runs a StepFunc with backoff between empty polls.
// Stop and the shared RunStatus are honoured between steps, never during one.
type Loop struct {
	config    LoopConfig
	status    *RunStatus
	log       *slog.Logger
	step      StepFunc
	sleep     SleepFunc
	backoff   *PollBackoff
	stopCh    chan struct{}
	stoppedCh chan struct{}
	running   bool
	mu        sync.Mutex

	metricsMu sync.RWMutex
	metrics   LoopMetrics
}

// LoopMetrics counts step outcomes since start.
type LoopMetrics struct {
	Polls     int64         `json:"polls"`
	Succeeded int64         `json:"succeeded"`
	Failed    int64         `json:"failed"`
	PollDelay time.Duration `json:"pollDelay"`
}

// NewLoop creates a loop. status may be shared by several loops.
func NewLoop(config LoopConfig, status *RunStatus, log *slog.Logger, step StepFunc) *Loop {
	if config.Poll.Base <= 0 {
		config.Poll.Base = time.Second
	}
	if config.Poll.Growth < 1 {
		config.Poll.Growth = 1
	}
	if config.Poll.Max < config.Poll.Base {
		config.Poll.Max = config.Poll.Base
	}
	return &Loop{
		config:    config,
		status:    status,
		log:       log.With(logger.Scope("jobs"), slog.String("loop", config.Name)),
		step:      step,
		sleep:     sleepOrStop,
		backoff:   NewPollBackoff(config.Poll),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// WithSleep replaces the sleep function. Used by tests.
func (l *Loop) WithSleep(fn SleepFunc) *Loop {
	l.sleep = fn
	return l
}

// Start runs the loop in a goroutine until Stop is called or ctx is done.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.stoppedCh = make(chan struct{})
	l.mu.Unlock()

	l.log.Info("loop starting",
		slog.Duration("poll_base", l.config.Poll.Base),
		slog.Duration("poll_max", l.config.Poll.Max),
		slog.Duration("failure_delay", l.config.FailureDelay))

	go func() {
		defer close(l.stoppedCh)
		l.Run(ctx)
	}()
	return nil
}

// Stop signals the loop and waits for the current step to finish.
func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = false
	close(l.stopCh)
	stopped := l.stoppedCh
	l.mu.Unlock()

	select {
	case <-stopped:
		l.log.Info("loop stopped gracefully")
	case <-ctx.Done():
		l.log.Warn("loop stop timeout, in-flight unit continues")
	}
	return nil
}

// Run executes the loop on the calling goroutine.
func (l *Loop) Run(ctx context.Context) {
	l.mu.Lock()
	stop := l.stopCh
	l.mu.Unlock()

	for {
		if !l.status.Alive() || ctx.Err() != nil || isClosed(stop) {
			return
		}

		if l.status.Disabled() {
			if !l.sleep(ctx, stop, l.config.Poll.Base) {
				return
			}
			continue
		}

		result, err := l.runStep(ctx)

		var wait time.Duration
		switch result {
		case Done:
			l.backoff.Reset()
		case Failed:
			if err != nil {
				l.log.Warn("unit of work failed", logger.Error(err))
			}
			wait = l.config.FailureDelay
		default:
			wait = l.backoff.Next()
		}
		l.record(result)

		if wait > 0 && !l.sleep(ctx, stop, wait) {
			return
		}
	}
}

func (l *Loop) runStep(ctx context.Context) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("unit of work panicked", slog.Any("panic", r))
			result = Failed
		}
	}()

	result, err = l.step(ctx)
	if err != nil {
		result = Failed
	}
	return result, err
}

func (l *Loop) record(result Result) {
	l.metricsMu.Lock()
	defer l.metricsMu.Unlock()

	l.metrics.Polls++
	switch result {
	case Done:
		l.metrics.Succeeded++
	case Failed:
		l.metrics.Failed++
	}
	l.metrics.PollDelay = l.backoff.Current()
}

// Metrics returns outcome counters.
func (l *Loop) Metrics() LoopMetrics {
	l.metricsMu.RLock()
	defer l.metricsMu.RUnlock()
	return l.metrics
}

// IsRunning returns whether the loop has been started and not stopped.
func (l *Loop) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func sleepOrStop(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	}
}
