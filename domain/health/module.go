package health

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/notifications"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/orders"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/processor"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/jobs"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/scheduler"
)

var Module = fx.Module("health",
	fx.Provide(
		func(pool *pgxpool.Pool) *Handler { return NewHandler(pool) },
		NewOpsHandler,
	),
	fx.Invoke(RegisterRoutes),
)

// OpsParams are the fx dependencies of NewOpsHandler.
type OpsParams struct {
	fx.In
	Status        *jobs.RunStatus
	DB            *bun.DB
	Orders        *orders.Store
	Notifications *notifications.Store
	Scheduler     *scheduler.Scheduler
	Processor     *processor.Worker
	Notifier      *notifications.Worker
	Log           *slog.Logger
}

func NewOpsHandler(p OpsParams) *OpsHandler {
	loops := map[string]Loop{
		"processor":     p.Processor,
		"notifications": p.Notifier,
	}
	return newOpsHandler(p.Status, p.DB, p.Orders, p.Notifications, p.Scheduler, loops, p.Log)
}
