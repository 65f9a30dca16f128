package features

import "nflpred/pipeline/internal/models"

// TeamForm holds season-to-date aggregates computed directly from the game
// history, under the same fence as every other feature.
type TeamForm struct {
	Games         int
	WinPct        float64
	PointsFor     float64 // per game
	PointsAgainst float64 // per game
	PointDiff     float64 // cumulative
	TurnoverDiff  float64 // cumulative takeaways minus giveaways
	UsedPrior     bool
}

// formMetrics lists the TeamForm columns in output order
var formMetrics = []string{"win_pct", "points_for", "points_against", "point_diff", "turnover_diff"}

// metric returns the named aggregate value
func (f TeamForm) metric(name string) float64 {
	switch name {
	case "win_pct":
		return f.WinPct
	case "points_for":
		return f.PointsFor
	case "points_against":
		return f.PointsAgainst
	case "point_diff":
		return f.PointDiff
	case "turnover_diff":
		return f.TurnoverDiff
	}
	return 0
}

// SeasonToDate aggregates the team's completed games visible through the
// fence. A zero-game window yields a neutral form (0.5 win percentage,
// zeros elsewhere) with UsedPrior set; it never divides by zero.
func SeasonToDate(history []*models.Game, fence Fence, team string) TeamForm {
	var (
		games                    int
		wins, ties               int
		pointsFor, pointsAgainst int
		turnoverDiff             int
	)

	for _, g := range history {
		if !g.IsFinal() {
			continue
		}
		// Form is regular-season only. Postseason week numbering may
		// restart at 1, so a completed playoff game could otherwise
		// slip under a later playoff fence.
		if g.IsPostseason() {
			continue
		}
		if !fence.Admits(g.Season, g.Week) {
			continue
		}

		var pf, pa int32
		switch team {
		case g.HomeTeam:
			pf, pa = g.HomeScore.Int32, g.AwayScore.Int32
			if g.HomeTurnovers.Valid && g.AwayTurnovers.Valid {
				turnoverDiff += int(g.AwayTurnovers.Int32 - g.HomeTurnovers.Int32)
			}
		case g.AwayTeam:
			pf, pa = g.AwayScore.Int32, g.HomeScore.Int32
			if g.HomeTurnovers.Valid && g.AwayTurnovers.Valid {
				turnoverDiff += int(g.HomeTurnovers.Int32 - g.AwayTurnovers.Int32)
			}
		default:
			continue
		}

		games++
		pointsFor += int(pf)
		pointsAgainst += int(pa)
		switch {
		case pf > pa:
			wins++
		case pf == pa:
			ties++
		}
	}

	if games == 0 {
		return TeamForm{WinPct: 0.5, UsedPrior: true}
	}

	n := float64(games)
	return TeamForm{
		Games:         games,
		WinPct:        (float64(wins) + 0.5*float64(ties)) / n,
		PointsFor:     float64(pointsFor) / n,
		PointsAgainst: float64(pointsAgainst) / n,
		PointDiff:     float64(pointsFor - pointsAgainst),
		TurnoverDiff:  float64(turnoverDiff),
	}
}

// LastRegularWeeks returns, per season, the final regular-season week found
// in the schedule. Postseason fences are cut against this.
func LastRegularWeeks(games []*models.Game) map[int]int {
	out := make(map[int]int)
	for _, g := range games {
		if g.IsPostseason() {
			continue
		}
		if g.Week > out[g.Season] {
			out[g.Season] = g.Week
		}
	}
	return out
}
