package repository

import (
	"context"
	"fmt"

	"nflpred/pipeline/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// GameRepository reads game records from the production namespace
type GameRepository struct {
	db *Database
}

// ListSeasons retrieves all games for the given seasons, oldest first.
// Turnover counts are joined in from the per-team game stats table when
// present; games without stats rows simply carry null turnovers.
func (r *GameRepository) ListSeasons(ctx context.Context, schema string, seasons []int) ([]*models.Game, error) {
	query := fmt.Sprintf(`
		SELECT g.game_id, g.season, g.week, g.season_type,
		       g.home_team, g.away_team, g.kickoff,
		       g.home_score, g.away_score, g.spread_line,
		       hs.turnovers AS home_turnovers,
		       aws.turnovers AS away_turnovers
		FROM %[1]s.games g
		LEFT JOIN %[1]s.team_game_stats hs
		       ON hs.season = g.season AND hs.week = g.week AND hs.team = g.home_team
		LEFT JOIN %[1]s.team_game_stats aws
		       ON aws.season = g.season AND aws.week = g.week AND aws.team = g.away_team
		WHERE g.season = ANY($1)
		ORDER BY g.season, g.week, g.kickoff, g.game_id
	`, pgx.Identifier{schema}.Sanitize())

	rows, err := r.db.Pool.Query(ctx, query, seasons)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	var games []*models.Game
	for rows.Next() {
		var game models.Game
		err := rows.Scan(
			&game.GameID, &game.Season, &game.Week, &game.SeasonType,
			&game.HomeTeam, &game.AwayTeam, &game.Kickoff,
			&game.HomeScore, &game.AwayScore, &game.SpreadLine,
			&game.HomeTurnovers, &game.AwayTurnovers,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		games = append(games, &game)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating games: %w", err)
	}

	log.Debug().Int("count", len(games)).Ints("seasons", seasons).Msg("Retrieved games")
	return games, nil
}

// Seasons returns the distinct seasons present in the games table, ascending
func (r *GameRepository) Seasons(ctx context.Context, schema string) ([]int, error) {
	query := fmt.Sprintf(
		`SELECT DISTINCT season FROM %s.games ORDER BY season`,
		pgx.Identifier{schema}.Sanitize(),
	)

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list seasons: %w", err)
	}
	defer rows.Close()

	var seasons []int
	for rows.Next() {
		var s int
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan season: %w", err)
		}
		seasons = append(seasons, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating seasons: %w", err)
	}

	return seasons, nil
}

// Count returns the total number of games in the given namespace
func (r *GameRepository) Count(ctx context.Context, schema string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s.games`, pgx.Identifier{schema}.Sanitize())

	var count int
	if err := r.db.Pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count games: %w", err)
	}

	return count, nil
}
