package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/config"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/migrate"
)

func main() {
	_ = godotenv.Load()

	command := flag.String("c", "up", "Command: up, down, status, version")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall timeout")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.NewConfigFromEnv()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN())))
	defer sqldb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	m := migrate.NewMigrator(sqldb, logger)

	switch *command {
	case "up":
		err = m.Up(ctx)
	case "down":
		err = m.Down(ctx)
	case "status":
		err = m.Status(ctx)
	case "version":
		_, err = m.Version(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", *command)
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal("migration failed", zap.String("command", *command), zap.Error(err))
	}
}
