package features

import (
	"sort"

	"nflpred/pipeline/internal/metrics"
	"nflpred/pipeline/internal/models"
)

// Fence is the admissibility cut for one game: which (season, week)
// observations were knowable before kickoff.
//
// Regular season: strictly earlier weeks of the same season. Postseason:
// every regular-season week of the same season, and nothing else.
// Postseason games never see other postseason weeks, so small-sample
// elimination-round signal cannot bleed across rounds.
type Fence struct {
	Season          int
	Week            int
	Postseason      bool
	LastRegularWeek int
}

// FenceFor builds the fence for a game. lastRegWeek is the season's final
// regular-season week, derived from the schedule.
func FenceFor(game *models.Game, lastRegWeek int) Fence {
	return Fence{
		Season:          game.Season,
		Week:            game.Week,
		Postseason:      game.IsPostseason(),
		LastRegularWeek: lastRegWeek,
	}
}

// Admits reports whether an observation from (season, week) is visible
// through the fence.
func (f Fence) Admits(season, week int) bool {
	if season != f.Season {
		return false
	}
	if f.Postseason {
		return week <= f.LastRegularWeek
	}
	return week < f.Week
}

// FeatureValue is one resolved as-of value. UsedPrior marks values filled
// from the fallback hierarchy rather than a real prior observation, so
// downstream consumers can audit prior-sensitivity.
type FeatureValue struct {
	Value     float64
	UsedPrior bool
}

// AsOf resolves, independently per dimension, the most recent admissible
// observation for the team, then extracts every declared metric. Metrics
// with no admissible observation coalesce through: team median over the
// admissible window, global median over the admissible window, declared
// constant.
//
// Returned map shape: dimension -> metric column -> value. Dimensionless
// facts use the "" dimension.
func (fs *FactSet) AsOf(fence Fence, team string) map[string]map[string]FeatureValue {
	out := make(map[string]map[string]FeatureValue, len(fs.dimensions()))

	for _, dim := range fs.dimensions() {
		latest := fs.latestAdmissible(fence, team, dim)

		vals := make(map[string]FeatureValue, len(fs.Mapping.Metrics))
		for _, m := range fs.Mapping.Metrics {
			if latest != nil {
				if v, ok := latest.Values[m.Column]; ok {
					vals[m.Column] = FeatureValue{Value: v}
					continue
				}
			}
			vals[m.Column] = FeatureValue{
				Value:     fs.fallback(fence, team, dim, m.Column, m.Default),
				UsedPrior: true,
			}
			metrics.FallbackValuesTotal.WithLabelValues(fs.Mapping.Name).Inc()
		}
		out[dim] = vals
	}

	return out
}

// latestAdmissible returns the admissible row with the maximum week for the
// team and dimension, or nil. Ties on week resolve to the earliest-loaded
// row; load order is fixed by the loader's ORDER BY, so selection is
// deterministic.
func (fs *FactSet) latestAdmissible(fence Fence, team, dim string) *FactRow {
	var best *FactRow
	for i := range fs.Rows {
		row := &fs.Rows[i]
		if row.Team != team || row.Dimension != dim {
			continue
		}
		if !fence.Admits(row.Season, row.Week) {
			continue
		}
		if best == nil || row.Week > best.Week {
			best = row
		}
	}
	return best
}

// fallback walks the coalescing hierarchy for one metric
func (fs *FactSet) fallback(fence Fence, team, dim, metric string, def float64) float64 {
	if v, ok := fs.admissibleMedian(fence, dim, metric, team); ok {
		return v
	}
	if v, ok := fs.admissibleMedian(fence, dim, metric, ""); ok {
		return v
	}
	return def
}

// admissibleMedian computes the median of a metric across admissible rows.
// With team set it is the side-specific historical median; with team empty
// it spans all teams. Medians only ever see fenced rows, so the fallback
// cannot leak future data either.
func (fs *FactSet) admissibleMedian(fence Fence, dim, metric, team string) (float64, bool) {
	var xs []float64
	for i := range fs.Rows {
		row := &fs.Rows[i]
		if row.Dimension != dim {
			continue
		}
		if team != "" && row.Team != team {
			continue
		}
		if !fence.Admits(row.Season, row.Week) {
			continue
		}
		if v, ok := row.Values[metric]; ok {
			xs = append(xs, v)
		}
	}
	if len(xs) == 0 {
		return 0, false
	}
	return median(xs), true
}

func median(xs []float64) float64 {
	sort.Float64s(xs)
	n := len(xs)
	if n%2 == 1 {
		return xs[n/2]
	}
	return (xs[n/2-1] + xs[n/2]) / 2
}
