package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"go.uber.org/fx"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/config"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/logger"
)

var Module = fx.Module("database",
	fx.Provide(
		NewPgxPool,
		NewBunDB,
		// Stores and loops depend on bun.IDB so tests can pass a tx
		fx.Annotate(
			func(db *bun.DB) bun.IDB { return db },
			fx.As(new(bun.IDB)),
		),
		NewTransactor,
	),
)

// BackgroundConns is the number of connections held at once by the
// intake, processor, notifier and archive loops, each inside its own
// transaction.
const BackgroundConns = 4

// PoolConfig builds the pgx pool settings from the database section. It
// rejects a pool too small to run every background loop next to one
// ops request.
func PoolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	if cfg.MaxConns < BackgroundConns+1 {
		return nil, fmt.Errorf("DB_MAX_CONNS=%d is below the %d connections the background loops need",
			cfg.MaxConns, BackgroundConns+1)
	}
	if cfg.MinConns > cfg.MaxConns {
		return nil, fmt.Errorf("DB_MIN_CONNS=%d exceeds DB_MAX_CONNS=%d", cfg.MinConns, cfg.MaxConns)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	params := poolConfig.ConnConfig.RuntimeParams
	if cfg.ApplicationName != "" {
		params["application_name"] = cfg.ApplicationName
	}
	if cfg.StatementTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}

	return poolConfig, nil
}

// NewPgxPool opens the pool and fails startup when the database is not
// reachable within the connect timeout.
func NewPgxPool(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) (*pgxpool.Pool, error) {
	log = log.With(logger.Scope("database"))

	poolConfig, err := PoolConfig(cfg.Database)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("database pool created",
		slog.String("host", cfg.Database.Host),
		slog.String("database", cfg.Database.Database),
		slog.Int("max_conns", cfg.Database.MaxConns),
		slog.Duration("statement_timeout", cfg.Database.StatementTimeout),
	)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("closing database pool")
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

// NewBunDB wraps the pool in bun. Queries are logged when DB_QUERY_DEBUG is
// set; slow ones are always logged.
func NewBunDB(lc fx.Lifecycle, pool *pgxpool.Pool, cfg *config.Config, log *slog.Logger) (*bun.DB, error) {
	log = log.With(logger.Scope("bun"))

	db := Open(pool)
	db.AddQueryHook(&queryLogHook{
		log:   log,
		debug: cfg.Database.QueryDebug,
		slow:  cfg.Database.SlowQuery,
	})

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return db.Close()
		},
	})

	return db, nil
}

// Open wraps a pgx pool in a bun.DB using the postgres dialect.
func Open(pool *pgxpool.Pool) *bun.DB {
	return bun.NewDB(stdlib.OpenDBFromPool(pool), pgdialect.New())
}

type queryLogHook struct {
	log   *slog.Logger
	debug bool
	slow  time.Duration
}

func (h *queryLogHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *queryLogHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	duration := time.Since(event.StartTime)

	switch {
	case event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows):
		if h.debug {
			h.log.Error("query error",
				slog.String("query", event.Query),
				slog.Duration("duration", duration),
				logger.Error(event.Err),
			)
		}
	case h.slow > 0 && duration > h.slow:
		h.log.Warn("slow query",
			slog.String("operation", event.Operation()),
			slog.String("query", event.Query),
			slog.Duration("duration", duration),
		)
	case h.debug:
		h.log.Debug("query",
			slog.String("query", event.Query),
			slog.Duration("duration", duration),
		)
	}
}
