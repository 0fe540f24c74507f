package notifications

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/audit"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/reports"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/config"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/database"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/jobs"
)

// Module provides notification registration, delivery and the delivery loop.
var Module = fx.Module("notifications",
	fx.Provide(
		NewStore,
		NewHTTPDispatcher,
		NewScheduler,
		NewWorker,
	),
	fx.Invoke(RegisterWorkerLifecycle),
)

// SchedulerParams are the fx dependencies of NewScheduler.
type SchedulerParams struct {
	fx.In
	Requests   *Store
	Reports    *reports.Store
	Audit      *audit.Log
	Dispatcher *HTTPDispatcher
	Tx         database.Transactor
	Cfg        *config.Config
	Log        *slog.Logger
}

// NewScheduler creates the delivery scheduler from configuration.
func NewScheduler(p SchedulerParams) (*Scheduler, error) {
	targets, err := p.Cfg.Notifier.Targets()
	if err != nil {
		return nil, err
	}
	primary := ""
	if len(targets) > 0 {
		primary = targets[0].Name
	}
	n := p.Cfg.Notifier
	return newScheduler(p.Requests, p.Reports, p.Audit, p.Dispatcher, p.Tx, SchedulerOptions{
		Policy: jobs.RetryPolicy{
			Base:      n.BaseDelay,
			Growth:    n.Growth,
			Max:       n.MaxDelay,
			MaxJitter: n.MaxJitter,
		},
		Primary: primary,
	}, p.Log), nil
}

// Worker is the polling loop driving the scheduler.
type Worker struct {
	*jobs.Loop
}

// NewWorker wraps the scheduler in a loop. Empty polls back off
// exponentially; failed deliveries wait NOTIFIER_RETRY_POLL_DELAY.
func NewWorker(s *Scheduler, status *jobs.RunStatus, cfg *config.Config, log *slog.Logger) *Worker {
	n := cfg.Notifier
	return &Worker{Loop: jobs.NewLoop(jobs.LoopConfig{
		Name: "notifications",
		Poll: jobs.Backoff{
			Base:   n.PollBaseDelay,
			Growth: n.PollGrowth,
			Max:    n.PollMaxDelay,
		},
		FailureDelay: n.RetryPause,
	}, status, log, s.ProcessNext)}
}

// RegisterWorkerLifecycle starts the delivery loop with the application.
func RegisterWorkerLifecycle(lc fx.Lifecycle, w *Worker, cfg *config.Config) {
	if !cfg.Notifier.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return w.Start(context.Background())
		},
		OnStop: func(ctx context.Context) error {
			return w.Stop(ctx)
		},
	})
}
