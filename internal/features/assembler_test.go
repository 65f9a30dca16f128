package features

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"nflpred/pipeline/internal/config"
	"nflpred/pipeline/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const featureTestSchema = "prod_featuretest"

func setupFeatureTestDB(t *testing.T) (*repository.Database, context.Context) {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	db, err := repository.NewDatabase(ctx, repository.Config{DSN: dsn, LockTimeout: 3 * time.Second})
	require.NoError(t, err, "Failed to connect to test database")
	t.Cleanup(db.Close)

	_, err = db.Pool.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", featureTestSchema))
	require.NoError(t, err)
	_, err = db.Pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", featureTestSchema))
	require.NoError(t, err)

	for _, ddl := range []string{
		`CREATE TABLE %s.games (
			game_id text PRIMARY KEY,
			season int, week int, season_type text,
			home_team text, away_team text, kickoff timestamptz,
			home_score int, away_score int, spread_line float8
		)`,
		`CREATE TABLE %s.team_game_stats (season int, week int, team text, turnovers int)`,
		`CREATE TABLE %s.team_strength (season int, week int, team text, rating float8)`,
	} {
		_, err := db.Pool.Exec(ctx, fmt.Sprintf(ddl, featureTestSchema))
		require.NoError(t, err)
	}

	return db, ctx
}

func featureTestConfig() *config.Config {
	return &config.Config{
		ProdSchema:  featureTestSchema,
		FirstSeason: 2016,
		PushCovers:  true,
	}
}

func featureTestSyncMap() *config.SyncConfig {
	return &config.SyncConfig{
		Facts: []config.FactMapping{{
			Name:       "strength",
			Table:      "team_strength",
			TeamColumn: "team",
			Metrics:    []config.MetricMapping{{Column: "rating", Default: 0}},
		}},
		ModelingTable: "modeling_games",
	}
}

func TestAssembler_WritesModelingTable(t *testing.T) {
	db, ctx := setupFeatureTestDB(t)

	// Raw spread uses the home-negative-favored convention, so sign
	// detection must flip it
	_, err := db.Pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s.games VALUES
			('2024-01-KC-DEN', 2024, 1, 'REG', 'KC', 'DEN', '2024-09-08T17:00:00Z', 27, 20, -3),
			('2024-02-DEN-KC', 2024, 2, 'REG', 'DEN', 'KC', '2024-09-15T17:00:00Z', 20, 24, 3),
			('2024-03-KC-LV',  2024, 3, 'REG', 'KC', 'LV', '2024-09-22T17:00:00Z', 30, 10, NULL)
	`, featureTestSchema))
	require.NoError(t, err)
	_, err = db.Pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s.team_strength VALUES
			(2024, 1, 'KC', 10), (2024, 1, 'DEN', 4),
			(2024, 2, 'KC', 12), (2024, 2, 'DEN', 5)
	`, featureTestSchema))
	require.NoError(t, err)

	assembler := NewAssembler(db, featureTestConfig(), featureTestSyncMap())

	written, err := assembler.Assemble(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, written)

	table := featureTestSchema + ".modeling_games"

	var rowCount, idCount int
	require.NoError(t, db.Pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT COUNT(*), COUNT(DISTINCT game_id) FROM %s", table)).Scan(&rowCount, &idCount))
	assert.Equal(t, 3, rowCount)
	assert.Equal(t, rowCount, idCount, "Exactly one row per game")

	// Week 2: DEN hosts KC; the admissible ratings are the week 1 rows
	var diff, spreadHome float64
	var covered, homeWin int16
	var margin int
	require.NoError(t, db.Pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT diff_strength_rating, spread_home, spread_covered, home_win, margin FROM %s WHERE game_id = '2024-02-DEN-KC'",
		table)).Scan(&diff, &spreadHome, &covered, &homeWin, &margin))
	assert.InDelta(t, 4.0-10.0, diff, 1e-9)
	assert.InDelta(t, -3.0, spreadHome, 1e-9, "Sign convention flipped to home-positive")
	assert.EqualValues(t, 0, covered, "Lost by 4 against a 3-point dog line")
	assert.EqualValues(t, 0, homeWin)
	assert.Equal(t, -4, margin)

	// Week 3: LV has no strength rows at all, so its value is the fenced
	// global median over weeks 1 and 2
	var awayRating float64
	var awayPrior int16
	var spreadNull sql.NullFloat64
	var coveredNull sql.NullInt32
	require.NoError(t, db.Pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT away_strength_rating, away_strength_used_prior, spread_home, spread_covered FROM %s WHERE game_id = '2024-03-KC-LV'",
		table)).Scan(&awayRating, &awayPrior, &spreadNull, &coveredNull))
	assert.InDelta(t, 7.5, awayRating, 1e-9)
	assert.EqualValues(t, 1, awayPrior)
	assert.False(t, spreadNull.Valid, "No published line stays null")
	assert.False(t, coveredNull.Valid)
}

func TestAssembler_ColumnGrouping(t *testing.T) {
	db, ctx := setupFeatureTestDB(t)

	_, err := db.Pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s.games VALUES
			('2024-01-KC-DEN', 2024, 1, 'REG', 'KC', 'DEN', '2024-09-08T17:00:00Z', 27, 20, -3)
	`, featureTestSchema))
	require.NoError(t, err)

	assembler := NewAssembler(db, featureTestConfig(), featureTestSyncMap())
	_, err = assembler.Assemble(ctx, []int{2024})
	require.NoError(t, err)

	rows, err := db.Pool.Query(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = 'modeling_games'
		ORDER BY ordinal_position
	`, featureTestSchema)
	require.NoError(t, err)
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		require.NoError(t, rows.Scan(&c))
		cols = append(cols, c)
	}
	require.NoError(t, rows.Err())

	require.NotEmpty(t, cols)
	assert.Equal(t,
		[]string{"game_id", "season", "week", "season_type", "kickoff", "home_team", "away_team"},
		cols[:7])

	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		idx[c] = i
	}

	// Diff columns sit together after spread_home and before the four
	// terminal target columns
	assert.Less(t, idx["spread_home"], idx["diff_strength_rating"])
	assert.Less(t, idx["diff_strength_rating"], idx["diff_win_pct"])
	assert.Less(t, idx["diff_turnover_diff"], idx["home_win"])
	assert.Equal(t,
		[]string{"home_win", "margin", "spread_covered", "total_points"},
		cols[len(cols)-4:])
}

func TestBoundSeasons(t *testing.T) {
	assert.Equal(t, []int{2016, 2020}, boundSeasons([]int{2009, 2016, 2020}, 2016))
	assert.Equal(t, []int{2009, 2016}, boundSeasons([]int{2009, 2016}, 0), "Zero bound keeps everything")
	assert.Empty(t, boundSeasons([]int{2009}, 2016))
}
