package model

import (
	"time"

	"gorm.io/datatypes"
)

// RawTrade is one (trade, flow, product) row exploded from a provenance
// trade. One physical cargo carrying several products yields several rows
// under the same trade id.
type RawTrade struct {
	TradeID   int64 `gorm:"column:trade_id;primaryKey;autoIncrement:false"`
	FlowID    int64 `gorm:"column:flow_id;primaryKey;autoIncrement:false"`
	ProductID int64 `gorm:"column:product_id;primaryKey;autoIncrement:false"`

	Status         TradeStatus `gorm:"column:status"`
	DepartureAtUTC time.Time   `gorm:"column:departure_at_utc"`
	ArrivalAtUTC   *time.Time  `gorm:"column:arrival_at_utc"`
	DepartureDate  string      `gorm:"column:departure_date;index"`
	OriginISO2     string      `gorm:"column:origin_iso2;index"`

	DepartureZoneID         int64 `gorm:"column:departure_zone_id"`
	DepartureBerthID        int64 `gorm:"column:departure_berth_id"`
	DepartureInstallationID int64 `gorm:"column:departure_installation_id"`
	ArrivalZoneID           int64 `gorm:"column:arrival_zone_id"`
	ArrivalBerthID          int64 `gorm:"column:arrival_berth_id"`
	ArrivalInstallationID   int64 `gorm:"column:arrival_installation_id"`
	DepartureSTS            bool  `gorm:"column:departure_sts"`
	ArrivalSTS              bool  `gorm:"column:arrival_sts"`

	VesselIMOs  []string `gorm:"column:vessel_imos;serializer:json"`
	StepZoneIDs []int64  `gorm:"column:step_zone_ids;serializer:json"`
	StepSTS     []bool   `gorm:"column:step_sts;serializer:json"`
	Buyers      []string `gorm:"column:buyers;serializer:json"`
	Sellers     []string `gorm:"column:sellers;serializer:json"`

	ValueTonne  float64 `gorm:"column:value_tonne"`
	ValueM3     float64 `gorm:"column:value_m3"`
	ValueEnergy float64 `gorm:"column:value_energy"`
	ValueGasM3  float64 `gorm:"column:value_gas_m3"`

	Raw       datatypes.JSON `gorm:"column:raw"`
	IsValid   bool           `gorm:"column:is_valid;index"`
	UpdatedOn time.Time      `gorm:"column:updated_on"`
}

func (RawTrade) TableName() string { return "raw_trades" }

// SyncHistory records, per (origin, departure day), when trades were last
// refreshed and whether the latest aggregate compare accepted them.
type SyncHistory struct {
	OriginISO2  string    `gorm:"column:origin_iso2;primaryKey"`
	Date        string    `gorm:"column:date;primaryKey"`
	LastUpdated time.Time `gorm:"column:last_updated"`
	LastChecked time.Time `gorm:"column:last_checked"`
	IsValid     bool      `gorm:"column:is_valid"`
}

func (SyncHistory) TableName() string { return "sync_history" }

// ComputedTrade is the denormalised per-trade view downstream code joins to
// without re-deriving attribution.
type ComputedTrade struct {
	TradeID   int64 `gorm:"column:trade_id;primaryKey;autoIncrement:false"`
	FlowID    int64 `gorm:"column:flow_id;primaryKey;autoIncrement:false"`
	ProductID int64 `gorm:"column:product_id;primaryKey;autoIncrement:false"`

	CommodityID           string `gorm:"column:commodity_id;index"`
	CommodityEquivalentID string `gorm:"column:commodity_equivalent_id;index"`
	PricingCommodity      string `gorm:"column:pricing_commodity"`
	GroupingDefault       string `gorm:"column:grouping_default"`
	GroupingSplitGas      string `gorm:"column:grouping_split_gas"`
	GroupingSplitGasOil   string `gorm:"column:grouping_split_gas_oil"`

	OriginISO2        string `gorm:"column:origin_iso2;index"`
	DeparturePortID   int64  `gorm:"column:departure_port_id"`
	DestinationISO2   string `gorm:"column:commodity_destination_iso2;index"`
	DestinationRegion string `gorm:"column:destination_region"`

	Status        TradeStatus `gorm:"column:status"`
	DepartureDate string      `gorm:"column:departure_date;index"`
	ArrivalDate   string      `gorm:"column:arrival_date"`

	VesselIMOs       []string `gorm:"column:vessel_imos;serializer:json"`
	ShipInsurerNames []string `gorm:"column:ship_insurer_names;serializer:json"`
	ShipInsurerISO2s []string `gorm:"column:ship_insurer_iso2s;serializer:json"`
	ShipOwnerNames   []string `gorm:"column:ship_owner_names;serializer:json"`
	ShipOwnerISO2s   []string `gorm:"column:ship_owner_iso2s;serializer:json"`
	ShipFlagISO2s    []string `gorm:"column:ship_flag_iso2s;serializer:json"`

	ValueTonne float64 `gorm:"column:value_tonne"`

	IsValid   bool      `gorm:"column:is_valid;index"`
	UpdatedOn time.Time `gorm:"column:updated_on"`
}

func (ComputedTrade) TableName() string { return "computed_trades" }
