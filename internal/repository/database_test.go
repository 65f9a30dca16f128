package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests for database operations. They run against the database
// named by TEST_DATABASE_URL and are skipped when it is unset.

func setupTestDB(t *testing.T) (*Database, context.Context) {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()

	db, err := NewDatabase(ctx, Config{
		DSN:         dsn,
		LockTimeout: 3 * time.Second,
	})
	require.NoError(t, err, "Failed to connect to test database")

	t.Cleanup(db.Close)
	return db, ctx
}

func TestDatabaseConnection(t *testing.T) {
	db, ctx := setupTestDB(t)

	err := db.Health(ctx)
	assert.NoError(t, err, "Database health check should pass")

	stats := db.PoolStats()
	assert.NotNil(t, stats, "Should return connection pool stats")
	assert.GreaterOrEqual(t, stats["max_conns"].(int32), int32(1), "Should have at least 1 max connection")
}

func TestSessionTimeouts(t *testing.T) {
	db, ctx := setupTestDB(t)

	var lockTimeout, stmtTimeout string
	err := db.Pool.QueryRow(ctx, "SHOW lock_timeout").Scan(&lockTimeout)
	require.NoError(t, err)
	assert.Equal(t, "3s", lockTimeout, "Lock waits must be bounded")

	err = db.Pool.QueryRow(ctx, "SHOW statement_timeout").Scan(&stmtTimeout)
	require.NoError(t, err)
	assert.Equal(t, "0", stmtTimeout, "Statements must be unbounded")
}
