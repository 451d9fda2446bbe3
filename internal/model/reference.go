package model

// Commodity is immutable reference data. Equivalent collapses
// platform-specific products onto the local commodity set; the grouping
// columns give the reporting coarsenings.
type Commodity struct {
	ID                  string         `gorm:"column:id;primaryKey"`
	Name                string         `gorm:"column:name"`
	EquivalentID        string         `gorm:"column:equivalent_id;index"`
	Group               CommodityGroup `gorm:"column:commodity_group"`
	PricingCommodity    string         `gorm:"column:pricing_commodity"`
	GroupingDefault     string         `gorm:"column:grouping_default"`
	GroupingSplitGas    string         `gorm:"column:grouping_split_gas"`
	GroupingSplitGasOil string         `gorm:"column:grouping_split_gas_oil"`
}

func (Commodity) TableName() string { return "commodities" }

// Grouping returns the reporting bucket for the requested mode.
func (c Commodity) Grouping(mode GroupingMode) string {
	switch mode {
	case GroupingSplitGas:
		return c.GroupingSplitGas
	case GroupingSplitGasOil:
		return c.GroupingSplitGasOil
	default:
		return c.GroupingDefault
	}
}

type Country struct {
	ISO2     string   `gorm:"column:iso2;primaryKey"`
	Name     string   `gorm:"column:name"`
	AltNames []string `gorm:"column:alt_names;serializer:json"`
	Region   string   `gorm:"column:region"`
	Regions  []string `gorm:"column:regions;serializer:json"`
}

func (Country) TableName() string { return "countries" }

func (c Country) InRegion(label string) bool {
	for _, r := range c.Regions {
		if r == label {
			return true
		}
	}
	return false
}

// Zone links a feed zone to its port and country. Area labels origin zones
// (Arctic, Baltic, Pacific, Black Sea, Caspian).
type Zone struct {
	ID          int64    `gorm:"column:id;primaryKey"`
	Name        string   `gorm:"column:name"`
	Type        ZoneType `gorm:"column:zone_type"`
	PortID      int64    `gorm:"column:port_id"`
	CountryISO2 string   `gorm:"column:country_iso2;index"`
	Area        string   `gorm:"column:area"`
}

func (Zone) TableName() string { return "zones" }

// Product is the provenance system's product hierarchy, mapped to a local
// commodity on ingest.
type Product struct {
	ID          int64  `gorm:"column:id;primaryKey"`
	Name        string `gorm:"column:name"`
	Grade       string `gorm:"column:grade"`
	Commodity   string `gorm:"column:commodity"`
	Group       string `gorm:"column:product_group"`
	Family      string `gorm:"column:family"`
	CommodityID string `gorm:"column:commodity_id;index"`
}

func (Product) TableName() string { return "products" }

type Installation struct {
	ID          int64  `gorm:"column:id;primaryKey"`
	Name        string `gorm:"column:name"`
	PortID      int64  `gorm:"column:port_id"`
	CountryISO2 string `gorm:"column:country_iso2"`
}

func (Installation) TableName() string { return "installations" }

type Company struct {
	ID                      int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name                    string `gorm:"column:name;index"`
	RegistrationCountryISO2 string `gorm:"column:registration_country_iso2"`
	Address                 string `gorm:"column:address"`
}

func (Company) TableName() string { return "companies" }
