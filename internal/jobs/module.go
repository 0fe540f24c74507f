package jobs

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/logger"
)

// Module provides the RunStatus shared by the processing loops. Domain
// modules build their own Loop around a StepFunc and register it with the
// fx lifecycle.
var Module = fx.Module("jobs",
	fx.Provide(NewRunStatus),
)

// RegisterShutdown marks the RunStatus as stopping when the app stops.
// fx runs stop hooks in reverse order, so it must be invoked after every
// module that registers a loop for the flag to flip before the loops are
// stopped.
func RegisterShutdown(lc fx.Lifecycle, status *RunStatus, log *slog.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			log.With(logger.Scope("jobs")).Info("stopping background loops")
			status.Shutdown()
			return nil
		},
	})
}
