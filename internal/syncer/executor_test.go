package syncer

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"nflpred/pipeline/internal/repository"
	"nflpred/pipeline/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests against TEST_DATABASE_URL; skipped when unset. Each test
// provisions its own scratch namespaces so a blank database is enough.

const (
	testStage = "stage_synctest"
	testProd  = "prod_synctest"
)

func setupSyncTestDB(t *testing.T) (*repository.Database, context.Context) {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	db, err := repository.NewDatabase(ctx, repository.Config{DSN: dsn, LockTimeout: 3 * time.Second})
	require.NoError(t, err, "Failed to connect to test database")
	t.Cleanup(db.Close)

	for _, s := range []string{testStage, testProd} {
		_, err := db.Pool.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", s))
		require.NoError(t, err)
		_, err = db.Pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", s))
		require.NoError(t, err)
	}

	return db, ctx
}

func mustExec(t *testing.T, ctx context.Context, db *repository.Database, sql string, args ...any) {
	t.Helper()
	_, err := db.Pool.Exec(ctx, sql, args...)
	require.NoError(t, err)
}

func buildTestPlan(t *testing.T, ctx context.Context, db *repository.Database, table string, key []string) *Plan {
	t.Helper()

	ts, err := schema.NewIntrospector(db.Pool).TableSchema(ctx, testProd, table)
	require.NoError(t, err)

	plan, err := BuildPlan(ts, key, testStage, testProd, "")
	require.NoError(t, err)
	return plan
}

func TestExecutor_MergeIsIdempotent(t *testing.T) {
	db, ctx := setupSyncTestDB(t)

	for _, s := range []string{testStage, testProd} {
		mustExec(t, ctx, db, fmt.Sprintf(
			"CREATE TABLE %s.ratings (season int, week int, team text, rating float8)", s))
	}
	mustExec(t, ctx, db,
		fmt.Sprintf("CREATE UNIQUE INDEX ON %s.ratings (season, week, team)", testProd))

	mustExec(t, ctx, db, fmt.Sprintf(
		"INSERT INTO %s.ratings VALUES (2024, 1, 'KC', 10.5), (2024, 1, 'DEN', 8.0)", testStage))

	plan := buildTestPlan(t, ctx, db, "ratings", []string{"season", "week", "team"})
	require.Equal(t, StrategyMerge, plan.Strategy)

	executor := NewExecutor(db)

	first, err := executor.Run(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.StagedRows)
	assert.Equal(t, int64(2), first.Written)

	// Unchanged staged input: the change-guard must produce zero churn
	second, err := executor.Run(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.Written, "Re-running with unchanged input must touch no rows")

	// Change one staged value: exactly that row updates
	mustExec(t, ctx, db, fmt.Sprintf(
		"UPDATE %s.ratings SET rating = 11.0 WHERE team = 'KC'", testStage))
	third, err := executor.Run(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, int64(1), third.Written)

	var rating float64
	err = db.Pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT rating FROM %s.ratings WHERE team = 'KC'", testProd)).Scan(&rating)
	require.NoError(t, err)
	assert.Equal(t, 11.0, rating)
}

func TestExecutor_DeleteInsertSelectedWithoutUniqueIndex(t *testing.T) {
	db, ctx := setupSyncTestDB(t)

	for _, s := range []string{testStage, testProd} {
		mustExec(t, ctx, db, fmt.Sprintf(
			"CREATE TABLE %s.stability (season int, week int, team text, score float8)", s))
	}

	mustExec(t, ctx, db, fmt.Sprintf(
		"INSERT INTO %s.stability VALUES (2024, 1, 'KC', 0.9)", testStage))
	mustExec(t, ctx, db, fmt.Sprintf(
		"INSERT INTO %s.stability VALUES (2024, 1, 'KC', 0.1), (2023, 18, 'KC', 0.5)", testProd))

	plan := buildTestPlan(t, ctx, db, "stability", []string{"season", "week", "team"})
	require.Equal(t, StrategyDeleteInsert, plan.Strategy,
		"No unique index on the key must force the transactional replace")

	report, err := NewExecutor(db).Run(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Deleted, "Only the matching key tuple is replaced")
	assert.Equal(t, int64(1), report.Written)

	var count int
	require.NoError(t, db.Pool.QueryRow(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s.stability", testProd)).Scan(&count))
	assert.Equal(t, 2, count, "Non-matching production rows must survive")

	var score float64
	require.NoError(t, db.Pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT score FROM %s.stability WHERE season = 2024", testProd)).Scan(&score))
	assert.Equal(t, 0.9, score)
}

func TestExecutor_DeleteInsertRollsBackAtomically(t *testing.T) {
	db, ctx := setupSyncTestDB(t)

	mustExec(t, ctx, db, fmt.Sprintf(
		"CREATE TABLE %s.stability (season int, week int, team text, score float8)", testStage))
	// The destination rejects negative scores, so the staged batch below
	// fails on insert after the delete has already run
	mustExec(t, ctx, db, fmt.Sprintf(
		"CREATE TABLE %s.stability (season int, week int, team text, score float8 CHECK (score >= 0))", testProd))

	mustExec(t, ctx, db, fmt.Sprintf(
		"INSERT INTO %s.stability VALUES (2024, 1, 'KC', -1.0)", testStage))
	mustExec(t, ctx, db, fmt.Sprintf(
		"INSERT INTO %s.stability VALUES (2024, 1, 'KC', 0.5)", testProd))

	plan := buildTestPlan(t, ctx, db, "stability", []string{"season", "week", "team"})
	require.Equal(t, StrategyDeleteInsert, plan.Strategy)

	_, err := NewExecutor(db).Run(ctx, plan)
	require.Error(t, err, "Constraint violation must fail the sync")

	// The delete must have rolled back with the failed insert
	var score float64
	require.NoError(t, db.Pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT score FROM %s.stability WHERE season = 2024", testProd)).Scan(&score))
	assert.Equal(t, 0.5, score, "A partial replace must never be observable")
}

func TestExecutor_InsertOnlyForPureKeyTable(t *testing.T) {
	db, ctx := setupSyncTestDB(t)

	mustExec(t, ctx, db, fmt.Sprintf("CREATE TABLE %s.teams (team text)", testStage))
	mustExec(t, ctx, db, fmt.Sprintf("CREATE TABLE %s.teams (team text PRIMARY KEY)", testProd))

	mustExec(t, ctx, db, fmt.Sprintf("INSERT INTO %s.teams VALUES ('KC'), ('DEN')", testStage))
	mustExec(t, ctx, db, fmt.Sprintf("INSERT INTO %s.teams VALUES ('KC')", testProd))

	plan := buildTestPlan(t, ctx, db, "teams", []string{"team"})
	require.Equal(t, StrategyInsertOnly, plan.Strategy)

	report, err := NewExecutor(db).Run(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Written, "Existing keys are left alone")
}

func TestIntrospector_ExpressionIndexIsNotAKey(t *testing.T) {
	db, ctx := setupSyncTestDB(t)

	for _, s := range []string{testStage, testProd} {
		mustExec(t, ctx, db, fmt.Sprintf(
			"CREATE TABLE %s.aliases (season int, team text, alias text)", s))
	}
	// Uniqueness over an expression is not a plain-column key; the planner
	// must not be told (season) or (season, team) is unique
	mustExec(t, ctx, db, fmt.Sprintf(
		"CREATE UNIQUE INDEX ON %s.aliases (season, lower(team))", testProd))

	ts, err := schema.NewIntrospector(db.Pool).TableSchema(ctx, testProd, "aliases")
	require.NoError(t, err)
	assert.Empty(t, ts.UniqueKeys)

	plan, err := BuildPlan(ts, []string{"season", "team"}, testStage, testProd, "")
	require.NoError(t, err)
	assert.Equal(t, StrategyDeleteInsert, plan.Strategy)
}

func TestIntrospector_MissingTable(t *testing.T) {
	db, ctx := setupSyncTestDB(t)

	_, err := schema.NewIntrospector(db.Pool).TableSchema(ctx, testProd, "no_such_table")
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrSchemaNotFound)
}
