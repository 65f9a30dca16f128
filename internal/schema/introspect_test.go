package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableSchema_HasUniqueKey(t *testing.T) {
	ts := &TableSchema{
		Table:   "team_strength",
		Columns: []string{"season", "week", "team", "rating"},
		UniqueKeys: [][]string{
			{"season", "week", "team"},
			{"id"},
		},
	}

	assert.True(t, ts.HasUniqueKey([]string{"season", "week", "team"}))
	assert.True(t, ts.HasUniqueKey([]string{"team", "season", "week"}), "Matching is order-insensitive")
	assert.True(t, ts.HasUniqueKey([]string{"id"}))

	assert.False(t, ts.HasUniqueKey([]string{"season", "week"}), "Subset of an index is not a match")
	assert.False(t, ts.HasUniqueKey([]string{"season", "week", "team", "rating"}), "Superset is not a match")
	assert.False(t, ts.HasUniqueKey(nil))
}

func TestTableSchema_HasColumn(t *testing.T) {
	ts := &TableSchema{Columns: []string{"season", "week", "team"}}

	assert.True(t, ts.HasColumn("week"))
	assert.False(t, ts.HasColumn("rating"))
}
