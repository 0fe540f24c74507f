package processor

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/audit"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/notifications"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/orders"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/reports"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/settlement"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/config"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/database"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/jobs"
)

var Module = fx.Module("processor",
	fx.Provide(
		settlement.NewRegistry,
		NewProcessor,
		NewWorker,
	),
	fx.Invoke(RegisterWorkerLifecycle),
)

type Params struct {
	fx.In
	Orders        *orders.Store
	Reports       *reports.Store
	Registry      *settlement.Registry
	Generator     *reports.Generator
	Audit         *audit.Log
	Notifications *notifications.Store
	Tx            database.Transactor
	Log           *slog.Logger
}

func NewProcessor(p Params) *Processor {
	return newProcessor(p.Orders, p.Reports, p.Registry, p.Generator, p.Audit, p.Notifications, p.Tx, p.Log)
}

// Worker is the order processing loop.
type Worker struct {
	*jobs.Loop
}

func NewWorker(p *Processor, status *jobs.RunStatus, cfg *config.Config, log *slog.Logger) *Worker {
	c := cfg.Processor
	return &Worker{Loop: jobs.NewLoop(jobs.LoopConfig{
		Name: "processor",
		Poll: jobs.Backoff{
			Base:   c.BaseDelay,
			Growth: c.Growth,
			Max:    c.MaxDelay,
		},
		FailureDelay: c.FailureDelay,
	}, status, log, p.ProcessNext)}
}

func RegisterWorkerLifecycle(lc fx.Lifecycle, w *Worker, cfg *config.Config) {
	if !cfg.Processor.Enabled {
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
