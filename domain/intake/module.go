package intake

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/fx"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/orders"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/config"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/database"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/jobs"
)

var Module = fx.Module("intake",
	fx.Provide(
		NewConsumer,
		NewService,
	),
	fx.Invoke(RegisterServiceLifecycle),
)

// NewConsumer selects the queue implementation from QUEUE_DRIVER.
func NewConsumer(cfg *config.Config, log *slog.Logger) (Consumer, error) {
	switch cfg.Queue.Driver {
	case "redis":
		return NewRedisConsumer(cfg.Queue, log), nil
	case "memory":
		return NewMemoryConsumer(cfg.Queue.ReceiveTimeout, cfg.Queue.Source), nil
	default:
		return nil, fmt.Errorf("unknown QUEUE_DRIVER %q", cfg.Queue.Driver)
	}
}

func NewService(consumer Consumer, orders *orders.Store, tx database.Transactor, status *jobs.RunStatus, cfg *config.Config, log *slog.Logger) *Service {
	return newService(consumer, orders, tx, status, cfg.Queue.RetryPause, log)
}

func RegisterServiceLifecycle(lc fx.Lifecycle, s *Service, cfg *config.Config) {
	if !cfg.Queue.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return s.Stop(ctx)
		},
	})
}
