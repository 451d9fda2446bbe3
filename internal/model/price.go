package model

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Price is read-only input written by the external pricing job. Empty scope
// slices mean "any"; ScopeKey is a digest of the four scopes so that the
// six-part uniqueness holds without array-typed key columns.
type Price struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Date      string `gorm:"column:date;index;uniqueIndex:uq_price,priority:1"`
	Commodity string `gorm:"column:commodity;uniqueIndex:uq_price,priority:2"`
	Scenario  string `gorm:"column:scenario;uniqueIndex:uq_price,priority:3"`

	DestinationISO2s []string `gorm:"column:destination_iso2s;serializer:json"`
	DeparturePortIDs []string `gorm:"column:departure_port_ids;serializer:json"`
	ShipOwnerISO2s   []string `gorm:"column:ship_owner_iso2s;serializer:json"`
	ShipInsurerISO2s []string `gorm:"column:ship_insurer_iso2s;serializer:json"`
	ScopeKey         string   `gorm:"column:scope_key;uniqueIndex:uq_price,priority:4"`

	EURPerTonne decimal.Decimal `gorm:"column:eur_per_tonne;type:decimal(20,6)"`
	UpdatedOn   time.Time       `gorm:"column:updated_on"`
}

func (Price) TableName() string { return "prices" }

// ComputeScopeKey derives the deterministic digest of the four scope sets.
func (p Price) ComputeScopeKey() string {
	parts := make([]string, 0, 4)
	for _, scope := range [][]string{p.DestinationISO2s, p.DeparturePortIDs, p.ShipOwnerISO2s, p.ShipInsurerISO2s} {
		sorted := append([]string(nil), scope...)
		sort.Strings(sorted)
		parts = append(parts, strings.Join(sorted, ","))
	}
	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// Counter is the daily monetary export counter, one row per
// (date, commodity, destination, scenario, version).
type Counter struct {
	Date            string          `gorm:"column:date;primaryKey"`
	Commodity       string          `gorm:"column:commodity;primaryKey"`
	DestinationISO2 string          `gorm:"column:destination_iso2;primaryKey"`
	Scenario        string          `gorm:"column:scenario;primaryKey"`
	Version         CounterVersion  `gorm:"column:version;primaryKey"`
	ValueTonne      float64         `gorm:"column:value_tonne"`
	ValueEUR        decimal.Decimal `gorm:"column:value_eur;type:decimal(24,4)"`
	UpdatedOn       time.Time       `gorm:"column:updated_on"`
}

func (Counter) TableName() string { return "counter" }
