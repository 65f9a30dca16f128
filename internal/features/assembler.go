package features

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nflpred/pipeline/internal/config"
	"nflpred/pipeline/internal/metrics"
	"nflpred/pipeline/internal/models"
	"nflpred/pipeline/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// Assembler builds the one-row-per-game modeling table: one as-of join per
// (fact table, side), season-to-date form, home-minus-away differences, and
// the terminal targets.
type Assembler struct {
	db      *repository.Database
	cfg     *config.Config
	syncMap *config.SyncConfig
}

// NewAssembler creates an assembler
func NewAssembler(db *repository.Database, cfg *config.Config, syncMap *config.SyncConfig) *Assembler {
	return &Assembler{db: db, cfg: cfg, syncMap: syncMap}
}

var sides = []string{"home", "away"}

// Assemble rebuilds the modeling table for the given seasons (all seasons in
// the games table when empty). Returns the number of rows written.
func (a *Assembler) Assemble(ctx context.Context, seasons []int) (int, error) {
	start := time.Now()

	if len(seasons) == 0 {
		var err error
		seasons, err = a.db.Games.Seasons(ctx, a.cfg.ProdSchema)
		if err != nil {
			return 0, err
		}
		seasons = boundSeasons(seasons, a.cfg.FirstSeason)
	}
	if len(seasons) == 0 {
		return 0, fmt.Errorf("no seasons found in %s.games", a.cfg.ProdSchema)
	}

	games, err := a.db.Games.ListSeasons(ctx, a.cfg.ProdSchema, seasons)
	if err != nil {
		return 0, err
	}
	if len(games) == 0 {
		return 0, fmt.Errorf("no games found for seasons %v", seasons)
	}

	lastReg := LastRegularWeeks(games)

	factSets := make([]*FactSet, 0, len(a.syncMap.Facts))
	for _, fm := range a.syncMap.Facts {
		fs, err := LoadFactSet(ctx, a.db.Pool, a.cfg.ProdSchema, fm, seasons)
		if err != nil {
			return 0, err
		}
		factSets = append(factSets, fs)
	}

	bySeason := make(map[int][]*models.Game)
	for _, g := range games {
		bySeason[g.Season] = append(bySeason[g.Season], g)
	}

	rows := make([]*Row, 0, len(games))
	for _, g := range games {
		fence := FenceFor(g, lastReg[g.Season])
		row := &Row{Game: g, Features: make(map[string]float64)}

		for _, fs := range factSets {
			for _, side := range sides {
				resolved := fs.AsOf(fence, g.TeamFor(side))
				usedPrior := false
				for dim, vals := range resolved {
					for metric, fv := range vals {
						row.Features[side+"_"+featureBase(fs.Mapping, dim, metric)] = fv.Value
						if fv.UsedPrior {
							usedPrior = true
						}
					}
				}
				row.Features[side+"_"+fs.Mapping.Name+"_used_prior"] = boolToFloat(usedPrior)
			}
		}

		history := bySeason[g.Season]
		for _, side := range sides {
			form := SeasonToDate(history, fence, g.TeamFor(side))
			for _, m := range formMetrics {
				row.Features[side+"_"+m] = form.metric(m)
			}
			row.Features[side+"_form_used_prior"] = boolToFloat(form.UsedPrior)
		}

		rows = append(rows, row)
	}

	bases := a.pairedBases(factSets)
	applyDiffs(rows, bases)

	sign := SpreadSign(games)
	rows = FinalizeTargets(rows, sign, TargetPolicy{PushCovers: a.cfg.PushCovers})

	written, err := a.writeModelingTable(ctx, bases, a.flagBases(factSets), rows)
	if err != nil {
		return 0, err
	}

	metrics.AssembleDuration.Observe(time.Since(start).Seconds())
	metrics.AssembleGamesTotal.Add(float64(written))

	log.Info().
		Int("games", len(games)).
		Int("rows", written).
		Int("features", len(bases)).
		Dur("duration", time.Since(start)).
		Msg("Modeling table assembled")

	return written, nil
}

// boundSeasons drops seasons before the configured first season. Older
// seasons can exist in the games table with incomplete stat coverage and
// would poison the spread sign detection.
func boundSeasons(seasons []int, first int) []int {
	if first <= 0 {
		return seasons
	}
	out := make([]int, 0, len(seasons))
	for _, s := range seasons {
		if s >= first {
			out = append(out, s)
		}
	}
	return out
}

// applyDiffs adds diff_<base> = home_<base> - away_<base> for every paired
// metric base
func applyDiffs(rows []*Row, bases []string) {
	for _, row := range rows {
		for _, b := range bases {
			row.Features["diff_"+b] = row.Features["home_"+b] - row.Features["away_"+b]
		}
	}
}

// featureBase builds the metric's column base name: fact name, optional
// dimension, metric column.
func featureBase(fm config.FactMapping, dim, metric string) string {
	if dim == "" {
		return fm.Name + "_" + metric
	}
	return fm.Name + "_" + strings.ToLower(dim) + "_" + metric
}

// pairedBases lists every home/away-paired metric base in output order:
// fact metrics in config order, then the form aggregates.
func (a *Assembler) pairedBases(factSets []*FactSet) []string {
	var bases []string
	for _, fs := range factSets {
		for _, dim := range fs.dimensions() {
			for _, m := range fs.Mapping.Metrics {
				bases = append(bases, featureBase(fs.Mapping, dim, m.Column))
			}
		}
	}
	bases = append(bases, formMetrics...)
	return bases
}

// flagBases lists the used-prior flag bases, one per fact plus the form flag
func (a *Assembler) flagBases(factSets []*FactSet) []string {
	flags := make([]string, 0, len(factSets)+1)
	for _, fs := range factSets {
		flags = append(flags, fs.Mapping.Name+"_used_prior")
	}
	return append(flags, "form_used_prior")
}

// writeModelingTable rebuilds the destination table and bulk-loads the rows.
// Drop, create, and copy run in one transaction so readers only ever see a
// complete table. Diff columns are grouped before the four terminal targets.
func (a *Assembler) writeModelingTable(ctx context.Context, bases, flags []string, rows []*Row) (int, error) {
	type colDef struct {
		name string
		typ  string
	}

	cols := []colDef{
		{"game_id", "text PRIMARY KEY"},
		{"season", "integer NOT NULL"},
		{"week", "integer NOT NULL"},
		{"season_type", "text NOT NULL"},
		{"kickoff", "timestamptz NOT NULL"},
		{"home_team", "text NOT NULL"},
		{"away_team", "text NOT NULL"},
	}
	for _, b := range bases {
		cols = append(cols,
			colDef{"home_" + b, "double precision"},
			colDef{"away_" + b, "double precision"},
		)
	}
	for _, f := range flags {
		cols = append(cols,
			colDef{"home_" + f, "smallint"},
			colDef{"away_" + f, "smallint"},
		)
	}
	cols = append(cols, colDef{"spread_home", "double precision"})
	for _, b := range bases {
		cols = append(cols, colDef{"diff_" + b, "double precision"})
	}
	cols = append(cols,
		colDef{"home_win", "smallint NOT NULL"},
		colDef{"margin", "integer NOT NULL"},
		colDef{"spread_covered", "smallint"},
		colDef{"total_points", "integer NOT NULL"},
	)

	names := make([]string, len(cols))
	defs := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
		defs[i] = pgx.Identifier{c.name}.Sanitize() + " " + c.typ
	}

	table := pgx.Identifier{a.cfg.ProdSchema, a.syncMap.ModelingTable}.Sanitize()

	values := make([][]any, len(rows))
	for i, row := range rows {
		g := row.Game
		v := make([]any, 0, len(cols))
		v = append(v, g.GameID, g.Season, g.Week, g.SeasonType, g.Kickoff, g.HomeTeam, g.AwayTeam)
		for _, b := range bases {
			v = append(v, row.Features["home_"+b], row.Features["away_"+b])
		}
		for _, f := range flags {
			v = append(v, int16(row.Features["home_"+f]), int16(row.Features["away_"+f]))
		}
		v = append(v, row.SpreadHome)
		for _, b := range bases {
			v = append(v, row.Features["diff_"+b])
		}
		v = append(v, int16(row.HomeWin), row.Margin, row.SpreadCovered, row.TotalPoints)
		values[i] = v
	}

	tx, err := a.db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin modeling table transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return 0, fmt.Errorf("failed to drop modeling table: %w", err)
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", table, strings.Join(defs, ",\n\t"))
	if _, err := tx.Exec(ctx, ddl); err != nil {
		return 0, fmt.Errorf("failed to create modeling table: %w", err)
	}

	copied, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{a.cfg.ProdSchema, a.syncMap.ModelingTable},
		names,
		pgx.CopyFromRows(values),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to copy modeling rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit modeling table: %w", err)
	}

	return int(copied), nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
