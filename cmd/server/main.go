// Package main runs the settlement report pipeline: queue intake, order
// processing, notification delivery, archival and the ops HTTP surface.
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/archive"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/audit"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/health"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/intake"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/notifications"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/orders"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/processor"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/reports"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/config"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/database"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/jobs"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/server"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/storage"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/telemetry"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/logger"
)

func main() {
	// .env.local takes precedence over .env; neither overrides the real environment
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	fx.New(
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure
		logger.Module,
		config.Module,
		telemetry.Module,
		database.Module,
		jobs.Module,
		storage.Module,
		server.Module,

		// Pipeline
		orders.Module,
		audit.Module,
		reports.Module,
		notifications.Module,
		processor.Module,
		intake.Module,
		archive.Module,

		health.Module,

		// Last, so its stop hook runs before the loops are stopped
		fx.Invoke(jobs.RegisterShutdown),
	).Run()
}
