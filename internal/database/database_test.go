package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/config"
)

func testDatabaseConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Host:             "db.internal",
		Port:             5432,
		User:             "oppgjor",
		Password:         "secret",
		Database:         "oppgjorsrapporter",
		SSLMode:          "disable",
		MaxConns:         10,
		MinConns:         2,
		MaxConnIdleTime:  5 * time.Minute,
		MaxConnLifetime:  30 * time.Minute,
		ConnectTimeout:   7 * time.Second,
		StatementTimeout: 30 * time.Second,
		ApplicationName:  "sokos-oppgjorsrapporter",
	}
}

func TestPoolConfig(t *testing.T) {
	pc, err := PoolConfig(testDatabaseConfig())
	require.NoError(t, err)

	assert.Equal(t, int32(10), pc.MaxConns)
	assert.Equal(t, int32(2), pc.MinConns)
	assert.Equal(t, 5*time.Minute, pc.MaxConnIdleTime)
	assert.Equal(t, 30*time.Minute, pc.MaxConnLifetime)
	assert.Equal(t, 7*time.Second, pc.ConnConfig.ConnectTimeout)
	assert.Equal(t, "db.internal", pc.ConnConfig.Host)
	assert.Equal(t, "30000", pc.ConnConfig.RuntimeParams["statement_timeout"])
	assert.Equal(t, "sokos-oppgjorsrapporter", pc.ConnConfig.RuntimeParams["application_name"])
}

func TestPoolConfig_NoStatementTimeout(t *testing.T) {
	cfg := testDatabaseConfig()
	cfg.StatementTimeout = 0

	pc, err := PoolConfig(cfg)
	require.NoError(t, err)
	_, ok := pc.ConnConfig.RuntimeParams["statement_timeout"]
	assert.False(t, ok)
}

func TestPoolConfig_RejectsSmallPool(t *testing.T) {
	tests := []struct {
		name     string
		maxConns int
		minConns int
	}{
		{name: "below background loops", maxConns: BackgroundConns, minConns: 0},
		{name: "min above max", maxConns: 6, minConns: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testDatabaseConfig()
			cfg.MaxConns = tt.maxConns
			cfg.MinConns = tt.minConns

			_, err := PoolConfig(cfg)
			assert.Error(t, err)
		})
	}
}
