// Package features assembles the one-row-per-game modeling table. All
// historical lookups go through a single as-of join engine so the time
// fencing that prevents leakage is applied in exactly one place.
package features

import (
	"context"
	"fmt"
	"strings"

	"nflpred/pipeline/internal/config"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// FactRow is one observation of a fact table: a measurement available from
// some point during (season, week). Metrics missing in the source row are
// absent from Values rather than zeroed.
type FactRow struct {
	Season    int
	Week      int
	Team      string
	Dimension string
	Values    map[string]float64
}

// FactSet holds all loaded rows of one declared fact table. Rows keep their
// load order, which the as-of engine relies on for deterministic tie-breaks.
type FactSet struct {
	Mapping config.FactMapping
	Rows    []FactRow
}

// LoadFactSet reads one fact table for the given seasons. Column names come
// from the sync config, resolved once at startup, never guessed per query.
func LoadFactSet(ctx context.Context, pool *pgxpool.Pool, schema string, fm config.FactMapping, seasons []int) (*FactSet, error) {
	cols := []string{"season", "week", pgx.Identifier{fm.TeamColumn}.Sanitize()}
	if fm.DimensionColumn != "" {
		cols = append(cols, pgx.Identifier{fm.DimensionColumn}.Sanitize())
	}
	for _, m := range fm.Metrics {
		cols = append(cols, pgx.Identifier{m.Column}.Sanitize())
	}

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE season = ANY($1) ORDER BY season, week, %s",
		strings.Join(cols, ", "),
		pgx.Identifier{schema, fm.Table}.Sanitize(),
		pgx.Identifier{fm.TeamColumn}.Sanitize(),
	)

	rows, err := pool.Query(ctx, query, seasons)
	if err != nil {
		return nil, fmt.Errorf("failed to load fact %s: %w", fm.Name, err)
	}
	defer rows.Close()

	fs := &FactSet{Mapping: fm}
	for rows.Next() {
		row := FactRow{Values: make(map[string]float64, len(fm.Metrics))}

		dest := []any{&row.Season, &row.Week, &row.Team}
		if fm.DimensionColumn != "" {
			dest = append(dest, &row.Dimension)
		}
		metricVals := make([]*float64, len(fm.Metrics))
		for i := range metricVals {
			dest = append(dest, &metricVals[i])
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan fact %s row: %w", fm.Name, err)
		}

		for i, m := range fm.Metrics {
			if metricVals[i] != nil {
				row.Values[m.Column] = *metricVals[i]
			}
		}
		fs.Rows = append(fs.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fact %s: %w", fm.Name, err)
	}

	log.Debug().
		Str("fact", fm.Name).
		Int("rows", len(fs.Rows)).
		Msg("Fact table loaded")

	return fs, nil
}

// dimensions returns the dimension values the fact produces columns for.
// A dimensionless fact has the single empty dimension.
func (fs *FactSet) dimensions() []string {
	if fs.Mapping.DimensionColumn == "" {
		return []string{""}
	}
	return fs.Mapping.Dimensions
}
