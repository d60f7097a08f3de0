package database

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optimizee/pkg/logging"
	"optimizee/pkg/metrics"
)

func testConfig() *Config {
	return &Config{
		Host:         "db.internal",
		Port:         5433,
		User:         "optimizee",
		Password:     "secret",
		Database:     "energy",
		SSLMode:      "require",
		MaxOpenConns: 4,
	}
}

func TestConfigDSN(t *testing.T) {
	assert.Equal(t,
		"host=db.internal port=5433 user=optimizee password=secret dbname=energy sslmode=require",
		testConfig().DSN(),
	)
}

// sqlx.Open validates the driver name only; no connection is made.
func openUnconnected(t *testing.T, cfg *Config) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("postgres", cfg.DSN())
	require.NoError(t, err)
	return db
}

func TestPostgresDB_CloseStopsMonitor(t *testing.T) {
	cfg := testConfig()
	collector := metrics.NewCollector("test", prometheus.NewRegistry())
	pg := newPostgresDB(openUnconnected(t, cfg), cfg, logging.NewNopLogger(), collector, time.Millisecond)

	// let the monitor publish pool gauges at least once
	require.Eventually(t, func() bool {
		return testutil.CollectAndCount(collector.DBConnectionPool) == 3
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, pg.Close())

	select {
	case <-pg.stopped:
	default:
		t.Fatal("pool monitor still running after Close")
	}
}

func TestPostgresDB_HealthCheckAfterClose(t *testing.T) {
	cfg := testConfig()
	pg := newPostgresDB(openUnconnected(t, cfg), cfg, logging.NewNopLogger(), metrics.NewNopCollector(), time.Hour)
	require.NoError(t, pg.Close())

	err := pg.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database health check failed")
}
