package models

import (
	"database/sql"
	"time"
)

// Season types as they appear in the games table.
const (
	SeasonTypeRegular = "REG"
	SeasonTypePost    = "POST"
)

// Game represents one scheduled or completed NFL game
type Game struct {
	GameID     string    `db:"game_id"`
	Season     int       `db:"season"`
	Week       int       `db:"week"`
	SeasonType string    `db:"season_type"`
	HomeTeam   string    `db:"home_team"`
	AwayTeam   string    `db:"away_team"`
	Kickoff    time.Time `db:"kickoff"`

	// Final scores, absent until the game is played
	HomeScore sql.NullInt32 `db:"home_score"`
	AwayScore sql.NullInt32 `db:"away_score"`

	// Closing point spread as published by the book; sign convention
	// is normalized dataset-wide by the target finalizer
	SpreadLine sql.NullFloat64 `db:"spread_line"`

	// Giveaway/takeaway counts from the team game stats table
	HomeTurnovers sql.NullInt32 `db:"home_turnovers"`
	AwayTurnovers sql.NullInt32 `db:"away_turnovers"`
}

// IsFinal reports whether both final scores are present
func (g *Game) IsFinal() bool {
	return g.HomeScore.Valid && g.AwayScore.Valid
}

// IsPostseason reports whether the game is a playoff game
func (g *Game) IsPostseason() bool {
	return g.SeasonType == SeasonTypePost
}

// TeamFor returns the team code for the given side ("home" or "away")
func (g *Game) TeamFor(side string) string {
	if side == "home" {
		return g.HomeTeam
	}
	return g.AwayTeam
}
