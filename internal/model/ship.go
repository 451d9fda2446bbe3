package model

import (
	"time"

	"gorm.io/datatypes"
)

// Ship is identified by hull number. At most one row per IMO.
type Ship struct {
	IMO          string         `gorm:"column:imo;primaryKey"`
	MMSI         string         `gorm:"column:mmsi"`
	Name         string         `gorm:"column:name"`
	Type         string         `gorm:"column:ship_type"`
	Subtype      string         `gorm:"column:subtype"`
	DWT          float64        `gorm:"column:dwt"`
	CountryISO2  string         `gorm:"column:country_iso2"`
	HomePort     string         `gorm:"column:home_port"`
	Commodity    string         `gorm:"column:commodity;index"`
	ForceUnknown bool           `gorm:"column:force_unknown"`
	Raw          datatypes.JSON `gorm:"column:raw"`
	UpdatedOn    time.Time      `gorm:"column:updated_on"`
}

func (Ship) TableName() string { return "ships" }

// ShipInsurer asserts "ship X was insured by Y from DateFrom". The first-ever
// row for a ship carries a nil DateFromEquasis so that the assertion reaches
// back over the ship's whole history.
type ShipInsurer struct {
	ID                  int64      `gorm:"column:id;primaryKey;autoIncrement"`
	ShipIMO             string     `gorm:"column:ship_imo;index;uniqueIndex:uq_ship_insurer,priority:1"`
	CompanyRawName      string     `gorm:"column:company_raw_name;uniqueIndex:uq_ship_insurer,priority:2"`
	CompanyID           *int64     `gorm:"column:company_id"`
	DateFrom            *time.Time `gorm:"column:date_from"`
	DateFromEquasis     *time.Time `gorm:"column:date_from_equasis;uniqueIndex:uq_ship_insurer,priority:3"`
	UpdatedOn           *time.Time `gorm:"column:updated_on"`
	CheckedOn           *time.Time `gorm:"column:checked_on"`
	ConsecutiveFailures int        `gorm:"column:consecutive_failures"`
	IsValid             bool       `gorm:"column:is_valid"`
}

func (ShipInsurer) TableName() string { return "ship_insurers" }

func (i ShipInsurer) Unknown() bool { return i.CompanyRawName == UnknownCompany }

type ShipOwner struct {
	ID             int64      `gorm:"column:id;primaryKey;autoIncrement"`
	ShipIMO        string     `gorm:"column:ship_imo;index;uniqueIndex:uq_ship_owner,priority:1"`
	CompanyRawName string     `gorm:"column:company_raw_name;uniqueIndex:uq_ship_owner,priority:2"`
	CompanyID      *int64     `gorm:"column:company_id"`
	DateFrom       *time.Time `gorm:"column:date_from;uniqueIndex:uq_ship_owner,priority:3"`
	UpdatedOn      time.Time  `gorm:"column:updated_on"`
}

func (ShipOwner) TableName() string { return "ship_owners" }

type ShipManager struct {
	ID             int64      `gorm:"column:id;primaryKey;autoIncrement"`
	ShipIMO        string     `gorm:"column:ship_imo;index;uniqueIndex:uq_ship_manager,priority:1"`
	CompanyRawName string     `gorm:"column:company_raw_name;uniqueIndex:uq_ship_manager,priority:2"`
	CompanyID      *int64     `gorm:"column:company_id"`
	DateFrom       *time.Time `gorm:"column:date_from;uniqueIndex:uq_ship_manager,priority:3"`
	UpdatedOn      time.Time  `gorm:"column:updated_on"`
}

func (ShipManager) TableName() string { return "ship_managers" }

type ShipFlag struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ShipIMO   string    `gorm:"column:ship_imo;index;uniqueIndex:uq_ship_flag,priority:1"`
	FlagISO2  string    `gorm:"column:flag_iso2;uniqueIndex:uq_ship_flag,priority:2"`
	FirstSeen time.Time `gorm:"column:first_seen"`
	UpdatedOn time.Time `gorm:"column:updated_on"`
}

func (ShipFlag) TableName() string { return "ship_flags" }
