package features

import (
	"database/sql"
	"math"

	"nflpred/pipeline/internal/models"

	"github.com/rs/zerolog/log"
)

// TargetPolicy holds domain conventions for outcome labels
type TargetPolicy struct {
	// PushCovers counts a push (margin exactly on the spread) as covered.
	// Both conventions exist in the wild; this stays configurable.
	PushCovers bool
}

// Row is one modeling row under construction: the game, its numeric feature
// columns, and the terminal targets once finalized.
type Row struct {
	Game     *models.Game
	Features map[string]float64

	// Normalized spread, positive = home favored. Null when the book
	// published no line for the game.
	SpreadHome sql.NullFloat64

	// Terminal targets
	HomeWin       int
	Margin        int
	TotalPoints   int
	SpreadCovered sql.NullInt32
}

// SpreadSign decides the dataset-global sign convention of the raw spread:
// +1 when the published value already means "positive = home favored", -1
// when it must be negated. Decided once from the correlation between raw
// spread and observed margin across all scored games, never per row.
func SpreadSign(games []*models.Game) float64 {
	var xs, ys []float64
	for _, g := range games {
		if !g.IsFinal() || !g.SpreadLine.Valid {
			continue
		}
		xs = append(xs, g.SpreadLine.Float64)
		ys = append(ys, float64(g.HomeScore.Int32-g.AwayScore.Int32))
	}

	r := correlation(xs, ys)
	sign := 1.0
	if r < 0 {
		sign = -1.0
	}

	log.Info().
		Float64("correlation", r).
		Float64("sign", sign).
		Int("scored_games", len(xs)).
		Msg("Spread sign convention resolved")
	return sign
}

// correlation is the Pearson coefficient; 0 when undefined (fewer than two
// points or zero variance), which resolves to the home-positive convention.
func correlation(xs, ys []float64) float64 {
	n := float64(len(xs))
	if n < 2 {
		return 0
	}

	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var cov, varX, varY float64
	for i := range xs {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}

// FinalizeTargets derives the outcome labels and drops rows without a final
// score. sign is the dataset-global spread convention from SpreadSign.
func FinalizeTargets(rows []*Row, sign float64, policy TargetPolicy) []*Row {
	out := make([]*Row, 0, len(rows))
	dropped := 0

	for _, row := range rows {
		g := row.Game
		if !g.IsFinal() {
			dropped++
			continue
		}

		row.Margin = int(g.HomeScore.Int32 - g.AwayScore.Int32)
		row.TotalPoints = int(g.HomeScore.Int32 + g.AwayScore.Int32)
		if row.Margin > 0 {
			row.HomeWin = 1
		}

		if g.SpreadLine.Valid {
			spreadHome := sign * g.SpreadLine.Float64
			row.SpreadHome = sql.NullFloat64{Float64: spreadHome, Valid: true}

			edge := float64(row.Margin) - spreadHome
			covered := edge > 0 || (edge == 0 && policy.PushCovers)
			row.SpreadCovered = sql.NullInt32{Valid: true}
			if covered {
				row.SpreadCovered.Int32 = 1
			}
		}

		out = append(out, row)
	}

	if dropped > 0 {
		log.Info().Int("dropped", dropped).Msg("Excluded unscored games from modeling table")
	}
	return out
}
