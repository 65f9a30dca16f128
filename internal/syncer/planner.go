// Package syncer promotes staged rows into the production namespace. The
// planner inspects the destination schema and picks one of three strategies;
// the executor runs it; the orchestrator drives the full table map and then
// refreshes derived views.
package syncer

import (
	"errors"
	"fmt"
	"strings"

	"nflpred/pipeline/internal/schema"

	"github.com/jackc/pgx/v5"
)

// Strategy is how staged rows are merged into the destination table
type Strategy string

const (
	// StrategyMerge inserts staged rows and, on key collision, updates
	// non-key columns only when at least one of them actually changed
	StrategyMerge Strategy = "merge"

	// StrategyInsertOnly handles pure-key tables: insert, ignore collisions
	StrategyInsertOnly Strategy = "insert_only"

	// StrategyDeleteInsert replaces matching key tuples inside one
	// transaction, used when no unique index backs the declared key
	StrategyDeleteInsert Strategy = "delete_insert"
)

// ErrKeyColumnMissing indicates a declared key column is absent from the
// destination schema. Reported before any write.
var ErrKeyColumnMissing = errors.New("key column not in destination schema")

// Plan is a fully resolved promotion of one table
type Plan struct {
	Table      string
	KeyColumns []string
	Columns    []string // destination ordinal order
	NonKey     []string
	Strategy   Strategy

	src    string // staging namespace
	dst    string // production namespace
	filter string // optional predicate on staged rows
}

// BuildPlan validates the declared key against the destination schema and
// decides the execution strategy per the planner decision table.
func BuildPlan(ts *schema.TableSchema, keyColumns []string, src, dst, filter string) (*Plan, error) {
	for _, k := range keyColumns {
		if !ts.HasColumn(k) {
			return nil, fmt.Errorf("%w: %s.%s has no column %q", ErrKeyColumnMissing, dst, ts.Table, k)
		}
	}

	keySet := make(map[string]bool, len(keyColumns))
	for _, k := range keyColumns {
		keySet[k] = true
	}

	var nonKey []string
	for _, c := range ts.Columns {
		if !keySet[c] {
			nonKey = append(nonKey, c)
		}
	}

	strategy := StrategyDeleteInsert
	if ts.HasUniqueKey(keyColumns) {
		if len(nonKey) > 0 {
			strategy = StrategyMerge
		} else {
			strategy = StrategyInsertOnly
		}
	}

	return &Plan{
		Table:      ts.Table,
		KeyColumns: keyColumns,
		Columns:    ts.Columns,
		NonKey:     nonKey,
		Strategy:   strategy,
		src:        src,
		dst:        dst,
		filter:     filter,
	}, nil
}

func (p *Plan) srcTable() string {
	return pgx.Identifier{p.src, p.Table}.Sanitize()
}

func (p *Plan) dstTable() string {
	return pgx.Identifier{p.dst, p.Table}.Sanitize()
}

func quoteAll(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgx.Identifier{c}.Sanitize()
	}
	return out
}

func prefixAll(prefix string, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = prefix + "." + pgx.Identifier{c}.Sanitize()
	}
	return out
}

func (p *Plan) stagedSelect() string {
	sel := fmt.Sprintf(
		"SELECT %s FROM %s",
		strings.Join(quoteAll(p.Columns), ", "),
		p.srcTable(),
	)
	if p.filter != "" {
		sel += " WHERE " + p.filter
	}
	return sel
}

// MergeSQL builds the on-conflict upsert with the change-guard. The guard
// compares the full non-key tuple with IS DISTINCT FROM so re-running an
// unchanged staging load touches zero rows.
func (p *Plan) MergeSQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s AS d (%s)\n",
		p.dstTable(), strings.Join(quoteAll(p.Columns), ", "))
	b.WriteString(p.stagedSelect())
	fmt.Fprintf(&b, "\nON CONFLICT (%s) DO UPDATE SET\n",
		strings.Join(quoteAll(p.KeyColumns), ", "))

	sets := make([]string, len(p.NonKey))
	for i, c := range p.NonKey {
		q := pgx.Identifier{c}.Sanitize()
		sets[i] = fmt.Sprintf("\t%s = EXCLUDED.%s", q, q)
	}
	b.WriteString(strings.Join(sets, ",\n"))

	fmt.Fprintf(&b, "\nWHERE (%s) IS DISTINCT FROM (%s)",
		strings.Join(prefixAll("d", p.NonKey), ", "),
		strings.Join(prefixAll("EXCLUDED", p.NonKey), ", "))

	return b.String()
}

// InsertOnlySQL builds the pure-key-table insert
func (p *Plan) InsertOnlySQL() string {
	return fmt.Sprintf(
		"INSERT INTO %s (%s)\n%s\nON CONFLICT DO NOTHING",
		p.dstTable(),
		strings.Join(quoteAll(p.Columns), ", "),
		p.stagedSelect(),
	)
}

// DeleteSQL builds the delete of destination rows whose key tuple appears in
// the (filtered) staged set. Always paired with InsertSQL in one transaction.
func (p *Plan) DeleteSQL() string {
	keyList := strings.Join(quoteAll(p.KeyColumns), ", ")
	staged := fmt.Sprintf("SELECT DISTINCT %s FROM %s", keyList, p.srcTable())
	if p.filter != "" {
		staged += " WHERE " + p.filter
	}

	conds := make([]string, len(p.KeyColumns))
	for i, k := range p.KeyColumns {
		q := pgx.Identifier{k}.Sanitize()
		conds[i] = fmt.Sprintf("d.%s = s.%s", q, q)
	}

	return fmt.Sprintf(
		"DELETE FROM %s d USING (%s) s WHERE %s",
		p.dstTable(), staged, strings.Join(conds, " AND "),
	)
}

// InsertSQL builds the plain insert used by the delete+insert strategy
func (p *Plan) InsertSQL() string {
	return fmt.Sprintf(
		"INSERT INTO %s (%s)\n%s",
		p.dstTable(),
		strings.Join(quoteAll(p.Columns), ", "),
		p.stagedSelect(),
	)
}

// StagedCountSQL counts the staged rows the plan will consume
func (p *Plan) StagedCountSQL() string {
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s", p.srcTable())
	if p.filter != "" {
		q += " WHERE " + p.filter
	}
	return q
}

// AnalyzeSQL builds the advisory statistics refresh
func (p *Plan) AnalyzeSQL() string {
	return "ANALYZE " + p.dstTable()
}
