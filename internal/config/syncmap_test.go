package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSyncFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSyncConfig(t *testing.T) {
	path := writeSyncFile(t, `
tables:
  - table: teams
    key_columns: [team]
  - table: games
    key_columns: [game_id]
  - table: injuries
    key_columns: [season, week, team]
    filter: "week IS NOT NULL"

views:
  - team_form

facts:
  - name: strength
    table: team_strength
    team_column: team
    metrics:
      - column: rating
        default: 0
  - name: injury
    table: injuries
    team_column: team
    dimension_column: position_group
    dimensions: [QB, RB]
    metrics:
      - column: players_out
        default: 0

modeling_table: modeling_games
`)

	sc, err := LoadSyncConfig(path)
	require.NoError(t, err)

	require.Len(t, sc.Tables, 3)
	assert.Equal(t, "teams", sc.Tables[0].Table, "Declared order must be preserved")
	assert.Equal(t, []string{"season", "week", "team"}, sc.Tables[2].KeyColumns)
	assert.Equal(t, "week IS NOT NULL", sc.Tables[2].Filter)

	assert.Equal(t, []string{"team_form"}, sc.Views)
	assert.Equal(t, "modeling_games", sc.ModelingTable)

	require.Len(t, sc.Facts, 2)
	assert.Empty(t, sc.Facts[0].DimensionColumn)
	assert.Equal(t, []string{"QB", "RB"}, sc.Facts[1].Dimensions)
	assert.Equal(t, 0.0, sc.Facts[1].Metrics[0].Default)
}

func TestLoadSyncConfig_DefaultModelingTable(t *testing.T) {
	path := writeSyncFile(t, `
tables:
  - table: games
    key_columns: [game_id]
`)

	sc, err := LoadSyncConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "modeling_games", sc.ModelingTable)
}

func TestLoadSyncConfig_MissingFile(t *testing.T) {
	_, err := LoadSyncConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestSyncConfigValidate(t *testing.T) {
	valid := func() *SyncConfig {
		return &SyncConfig{
			Tables: []TableSync{{Table: "games", KeyColumns: []string{"game_id"}}},
			Facts: []FactMapping{{
				Name:       "strength",
				Table:      "team_strength",
				TeamColumn: "team",
				Metrics:    []MetricMapping{{Column: "rating"}},
			}},
		}
	}

	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("NoTables", func(t *testing.T) {
		sc := valid()
		sc.Tables = nil
		assert.ErrorContains(t, sc.Validate(), "no tables")
	})

	t.Run("DuplicateTable", func(t *testing.T) {
		sc := valid()
		sc.Tables = append(sc.Tables, sc.Tables[0])
		assert.ErrorContains(t, sc.Validate(), "declared twice")
	})

	t.Run("MissingKeyColumns", func(t *testing.T) {
		sc := valid()
		sc.Tables[0].KeyColumns = nil
		assert.ErrorContains(t, sc.Validate(), "no key columns")
	})

	t.Run("FactWithoutMetrics", func(t *testing.T) {
		sc := valid()
		sc.Facts[0].Metrics = nil
		assert.ErrorContains(t, sc.Validate(), "no metrics")
	})

	t.Run("FactWithoutTeamColumn", func(t *testing.T) {
		sc := valid()
		sc.Facts[0].TeamColumn = ""
		assert.ErrorContains(t, sc.Validate(), "no team column")
	})

	t.Run("DimensionColumnWithoutValues", func(t *testing.T) {
		sc := valid()
		sc.Facts[0].DimensionColumn = "position_group"
		assert.ErrorContains(t, sc.Validate(), "no dimension values")
	})

	t.Run("DuplicateFact", func(t *testing.T) {
		sc := valid()
		sc.Facts = append(sc.Facts, sc.Facts[0])
		assert.ErrorContains(t, sc.Validate(), "declared twice")
	})
}
