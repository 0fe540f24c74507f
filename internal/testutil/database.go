package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"
	"github.com/uptrace/bun"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/database"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/migrate"
)

// TestDB holds a migrated database in a fresh container.
type TestDB struct {
	Pool *pgxpool.Pool
	DB   *bun.DB
}

// SetupTestDB starts Postgres, applies the embedded migrations and returns
// connections to it. Everything is closed when the test ends.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	dsn := StartPostgres(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	poolConfig.MaxConns = 10

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	db := database.Open(pool)
	t.Cleanup(func() { _ = db.Close() })

	if err := migrate.RunWithDB(ctx, db.DB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return &TestDB{Pool: pool, DB: db}
}

// Truncate empties every table.
func (t *TestDB) Truncate(ctx context.Context) error {
	_, err := t.DB.ExecContext(ctx,
		"TRUNCATE audit_log, notification_requests, variants, reports, orders CASCADE")
	return err
}

// DBSuite shares one database across a suite and empties it before each
// test.
//
// Usage:
//
//	type StoreSuite struct {
//	    testutil.DBSuite
//	}
//
//	func TestStoreSuite(t *testing.T) {
//	    suite.Run(t, new(StoreSuite))
//	}
type DBSuite struct {
	suite.Suite
	TestDB *TestDB
	Ctx    context.Context
}

func (s *DBSuite) SetupSuite() {
	s.Ctx = context.Background()
	s.TestDB = SetupTestDB(s.T())
}

func (s *DBSuite) SetupTest() {
	s.Require().NoError(s.TestDB.Truncate(s.Ctx))
}

// DB returns the shared database.
func (s *DBSuite) DB() *bun.DB {
	return s.TestDB.DB
}
