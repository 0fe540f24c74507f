package archive

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/fx"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/audit"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/notifications"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/reports"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/config"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/database"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/scheduler"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/storage"
)

// TaskName is the scheduler entry of the archival run.
const TaskName = "report_archive"

// Module provides the archiver and runs it on ARCHIVE_SCHEDULE.
var Module = fx.Module("archive",
	fx.Provide(
		NewArchiver,
		NewScheduler,
	),
	fx.Invoke(
		RegisterTasks,
		RegisterSchedulerLifecycle,
	),
)

type Params struct {
	fx.In
	Reports       *reports.Store
	Storage       *storage.Service
	Audit         *audit.Log
	Notifications *notifications.Store
	Tx            database.Transactor
	Cfg           *config.Config
	Log           *slog.Logger
}

func NewArchiver(p Params) *Archiver {
	return newArchiver(p.Reports, p.Storage, p.Audit, p.Notifications, p.Tx,
		p.Cfg.Archive.After, p.Cfg.Archive.Batch, p.Log)
}

func NewScheduler(log *slog.Logger) *scheduler.Scheduler {
	return scheduler.NewScheduler(30*time.Minute, log)
}

// RegisterTasks registers all scheduled tasks
func RegisterTasks(s *scheduler.Scheduler, a *Archiver, cfg *config.Config, log *slog.Logger) error {
	if !cfg.Archive.Enabled {
		log.Info("archival disabled, skipping task registration")
		return nil
	}
	return s.AddCronTask(TaskName, cfg.Archive.Schedule, a.Run)
}

// RegisterSchedulerLifecycle registers the scheduler with fx lifecycle
func RegisterSchedulerLifecycle(lc fx.Lifecycle, s *scheduler.Scheduler, cfg *config.Config) {
	if !cfg.Archive.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return s.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return s.Stop(ctx)
		},
	})
}
