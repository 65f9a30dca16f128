package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// TableSync declares one staged table to promote and its logical key.
// The order of entries is the order tables are synced in.
type TableSync struct {
	Table      string   `mapstructure:"table"`
	KeyColumns []string `mapstructure:"key_columns"`
	Filter     string   `mapstructure:"filter"` // optional SQL predicate on staged rows
}

// MetricMapping declares one numeric metric column of a fact table and the
// constant used when no prior observation and no median is available.
type MetricMapping struct {
	Column  string  `mapstructure:"column"`
	Default float64 `mapstructure:"default"`
}

// FactMapping declares one fact table consumed by the as-of join engine.
// Column names are resolved here, once, rather than guessed per query.
type FactMapping struct {
	Name            string          `mapstructure:"name"`
	Table           string          `mapstructure:"table"`
	TeamColumn      string          `mapstructure:"team_column"`
	DimensionColumn string          `mapstructure:"dimension_column"` // optional, e.g. position group
	Dimensions      []string        `mapstructure:"dimensions"`       // fixed dimension values when set
	Metrics         []MetricMapping `mapstructure:"metrics"`
}

// SyncConfig is the operator-supplied sync map and feature declarations,
// loaded from a YAML file at startup.
type SyncConfig struct {
	Tables        []TableSync   `mapstructure:"tables"`
	Views         []string      `mapstructure:"views"`
	Facts         []FactMapping `mapstructure:"facts"`
	ModelingTable string        `mapstructure:"modeling_table"`
}

// LoadSyncConfig reads and validates the sync map file
func LoadSyncConfig(path string) (*SyncConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("modeling_table", "modeling_games")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read sync config %s: %w", path, err)
	}

	var sc SyncConfig
	if err := v.Unmarshal(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse sync config %s: %w", path, err)
	}

	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sync config %s: %w", path, err)
	}

	return &sc, nil
}

// Validate checks the sync map for configuration errors
func (sc *SyncConfig) Validate() error {
	if len(sc.Tables) == 0 {
		return fmt.Errorf("no tables declared")
	}

	seen := make(map[string]bool, len(sc.Tables))
	for _, t := range sc.Tables {
		if t.Table == "" {
			return fmt.Errorf("table entry with empty name")
		}
		if seen[t.Table] {
			return fmt.Errorf("table %s declared twice", t.Table)
		}
		seen[t.Table] = true
		if len(t.KeyColumns) == 0 {
			return fmt.Errorf("table %s has no key columns", t.Table)
		}
	}

	factNames := make(map[string]bool, len(sc.Facts))
	for _, f := range sc.Facts {
		if f.Name == "" || f.Table == "" {
			return fmt.Errorf("fact entry missing name or table")
		}
		if factNames[f.Name] {
			return fmt.Errorf("fact %s declared twice", f.Name)
		}
		factNames[f.Name] = true
		if f.TeamColumn == "" {
			return fmt.Errorf("fact %s has no team column", f.Name)
		}
		if len(f.Metrics) == 0 {
			return fmt.Errorf("fact %s has no metrics", f.Name)
		}
		if f.DimensionColumn != "" && len(f.Dimensions) == 0 {
			return fmt.Errorf("fact %s declares a dimension column but no dimension values", f.Name)
		}
	}

	return nil
}
