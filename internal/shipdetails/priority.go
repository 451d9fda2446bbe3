// Package shipdetails keeps the versioned insurer, owner, manager and flag
// history fresh: a selector picks stale ships under a per-run budget and the
// updater writes the scraped facts under the validity invariants.
package shipdetails

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Priority tunes refresh cadence per carried-commodity class. Lower Rank is
// scraped first when the run cap bites.
type Priority struct {
	KnownRefreshDays   int `yaml:"known_refresh_days"`
	UnknownRefreshDays int `yaml:"unknown_refresh_days"`
	Rank               int `yaml:"priority"`
}

type PriorityTable map[string]Priority

// DefaultPriorities mirrors the sanctions focus: crude first, coal last.
func DefaultPriorities() PriorityTable {
	return PriorityTable{
		"crude_oil":    {KnownRefreshDays: 30, UnknownRefreshDays: 7, Rank: 1},
		"oil_products": {KnownRefreshDays: 30, UnknownRefreshDays: 14, Rank: 2},
		"lng":          {KnownRefreshDays: 60, UnknownRefreshDays: 14, Rank: 3},
		"lpg":          {KnownRefreshDays: 60, UnknownRefreshDays: 21, Rank: 4},
		"coal":         {KnownRefreshDays: 90, UnknownRefreshDays: 30, Rank: 5},
	}
}

// fallbackPriority applies to ships with no recognised commodity estimate.
var fallbackPriority = Priority{KnownRefreshDays: 90, UnknownRefreshDays: 30, Rank: 9}

func (t PriorityTable) For(commodity string) Priority {
	if p, ok := t[commodity]; ok {
		return p
	}
	return fallbackPriority
}

// LoadPriorities reads a YAML priority table, falling back to the defaults
// when the path is empty.
func LoadPriorities(path string) (PriorityTable, error) {
	if path == "" {
		return DefaultPriorities(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("shipdetails: priorities: %w", err)
	}
	var table PriorityTable
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("shipdetails: priorities: %w", err)
	}
	if len(table) == 0 {
		return DefaultPriorities(), nil
	}
	return table, nil
}
