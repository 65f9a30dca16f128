// Package schema reads destination table metadata: column order and the
// column groups enforced unique by indexes. Strategy selection in the syncer
// is driven entirely by what this package reports.
package schema

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// ErrSchemaNotFound indicates the destination table does not exist.
// This is a configuration error, not a skippable condition.
var ErrSchemaNotFound = errors.New("schema not found")

// TableSchema describes one destination table
type TableSchema struct {
	Schema     string     `json:"schema"`
	Table      string     `json:"table"`
	Columns    []string   `json:"columns"`     // ordinal order
	UniqueKeys [][]string `json:"unique_keys"` // column sets covered by unique indexes
}

// HasColumn reports whether the table has the named column
func (t *TableSchema) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// HasUniqueKey reports whether any unique index covers exactly the given
// columns. Matching is order-insensitive: an index on (season, team) matches
// a declared key of (team, season).
func (t *TableSchema) HasUniqueKey(key []string) bool {
	want := sortedCopy(key)
	for _, uk := range t.UniqueKeys {
		if equalSets(sortedCopy(uk), want) {
			return true
		}
	}
	return false
}

func sortedCopy(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	sort.Strings(out)
	return out
}

func equalSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Introspector queries destination metadata
type Introspector struct {
	pool *pgxpool.Pool
}

// NewIntrospector creates an introspector bound to a connection pool
func NewIntrospector(pool *pgxpool.Pool) *Introspector {
	return &Introspector{pool: pool}
}

// TableSchema returns the columns (in ordinal order) and unique-key column
// sets of the given table. Returns ErrSchemaNotFound if the table does not
// exist in the schema.
func (i *Introspector) TableSchema(ctx context.Context, schema, table string) (*TableSchema, error) {
	columns, err := i.columns(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: %s.%s", ErrSchemaNotFound, schema, table)
	}

	uniqueKeys, err := i.uniqueKeys(ctx, schema, table)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("table", schema+"."+table).
		Int("columns", len(columns)).
		Int("unique_keys", len(uniqueKeys)).
		Msg("Introspected table")

	return &TableSchema{
		Schema:     schema,
		Table:      table,
		Columns:    columns,
		UniqueKeys: uniqueKeys,
	}, nil
}

func (i *Introspector) columns(ctx context.Context, schema, table string) ([]string, error) {
	query := `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`

	rows, err := i.pool.Query(ctx, query, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns for %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column name: %w", err)
		}
		columns = append(columns, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}

	return columns, nil
}

func (i *Introspector) uniqueKeys(ctx context.Context, schema, table string) ([][]string, error) {
	// Covers both unique constraints and plain unique indexes. Partial
	// indexes are excluded because they do not guarantee key uniqueness
	// across the whole table; invalid indexes enforce nothing; expression
	// indexes (attnum 0 entries in indkey) are no plain-column key, so
	// reporting their remaining columns would overstate uniqueness.
	query := `
		SELECT array_agg(a.attname ORDER BY k.ordinality)
		FROM pg_index ix
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ordinality) ON true
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
		WHERE n.nspname = $1
		  AND t.relname = $2
		  AND ix.indisunique
		  AND ix.indisvalid
		  AND ix.indpred IS NULL
		  AND NOT (0 = ANY (ix.indkey::int2[]))
		GROUP BY ix.indexrelid
	`

	rows, err := i.pool.Query(ctx, query, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query unique indexes for %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var keys [][]string
	for rows.Next() {
		var cols []string
		if err := rows.Scan(&cols); err != nil {
			return nil, fmt.Errorf("failed to scan unique index columns: %w", err)
		}
		keys = append(keys, cols)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unique indexes: %w", err)
	}

	return keys, nil
}
