package model

type TradeStatus string

const (
	StatusOngoing   TradeStatus = "ongoing"
	StatusCompleted TradeStatus = "completed"
)

type GroupingMode string

const (
	GroupingDefault     GroupingMode = "default"
	GroupingSplitGas    GroupingMode = "split_gas"
	GroupingSplitGasOil GroupingMode = "split_gas_oil"
)

type CommodityGroup string

const (
	GroupCoal CommodityGroup = "coal"
	GroupOil  CommodityGroup = "oil"
	GroupGas  CommodityGroup = "gas"
)

type ZoneType string

const (
	ZoneCountry      ZoneType = "country"
	ZonePort         ZoneType = "port"
	ZoneInstallation ZoneType = "installation"
	ZoneBerth        ZoneType = "berth"
	ZoneSea          ZoneType = "sea"
	ZoneAnchorage    ZoneType = "anchorage"
)

type CounterVersion string

const (
	CounterV0 CounterVersion = "v0"
	CounterV1 CounterVersion = "v1"
	CounterV2 CounterVersion = "v2"
)

// UnknownCompany is the raw name recorded when a registry scrape returns no
// insurer for a ship.
const UnknownCompany = "unknown"

// DateLayout is the day-bucket format used for sync history, prices and
// counter rows. ISO dates compare correctly as strings.
const DateLayout = "2006-01-02"
