// Package tradecompute denormalises raw trades into the stable view the
// counter and the query surface join to: resolved destination, at-departure
// ship attribution and normalised commodity.
package tradecompute

import (
	"context"
	"log/slog"
	"time"

	"fueltracker/internal/model"
	"fueltracker/internal/refdata"
	"fueltracker/internal/store"
)

type Computer struct {
	Store *store.Store
	// Overrides maps a raw company name to a country when neither the
	// registration record nor the address reveals one.
	Overrides map[string]string
	Registry  Registry
	Now       func() time.Time
}

type refsets struct {
	commodities map[string]model.Commodity
	products    map[int64]model.Product
	zones       map[int64]model.Zone
	countries   []model.Country
	byISO2      map[string]model.Country
	companies   map[int64]model.Company
	insurers    map[string][]model.ShipInsurer
	owners      map[string][]model.ShipOwner
	flags       map[string][]model.ShipFlag
	validity    map[string]bool
}

// Run recomputes the denormalised view for every valid raw trade and then
// removes computed rows whose source has been retired.
func (c *Computer) Run(ctx context.Context) (int, error) {
	refs, err := c.load()
	if err != nil {
		return 0, err
	}
	trades, err := c.Store.ValidRawTrades()
	if err != nil {
		return 0, err
	}

	now := c.now()
	computed := make([]model.ComputedTrade, 0, len(trades))
	for _, trade := range trades {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		computed = append(computed, c.compute(ctx, trade, refs, now))
	}
	if err := c.Store.UpsertComputedTrades(computed); err != nil {
		return 0, err
	}

	removed, err := c.Store.DeleteOutdatedComputedTrades()
	if err != nil {
		return 0, err
	}
	slog.Info("trades computed", "component", "tradecompute",
		"rows", len(computed), "removed", removed)
	return len(computed), nil
}

func (c *Computer) load() (*refsets, error) {
	refs := &refsets{
		commodities: map[string]model.Commodity{},
		products:    map[int64]model.Product{},
		zones:       map[int64]model.Zone{},
		byISO2:      map[string]model.Country{},
		companies:   map[int64]model.Company{},
	}

	commodities, err := c.Store.AllCommodities()
	if err != nil {
		return nil, err
	}
	for _, commodity := range commodities {
		refs.commodities[commodity.ID] = commodity
	}
	products, err := c.Store.AllProducts()
	if err != nil {
		return nil, err
	}
	for _, product := range products {
		refs.products[product.ID] = product
	}
	zones, err := c.Store.AllZones()
	if err != nil {
		return nil, err
	}
	for _, zone := range zones {
		refs.zones[zone.ID] = zone
	}
	refs.countries, err = c.Store.AllCountries()
	if err != nil {
		return nil, err
	}
	for _, country := range refs.countries {
		refs.byISO2[country.ISO2] = country
	}
	companies, err := c.Store.AllCompanies()
	if err != nil {
		return nil, err
	}
	for _, company := range companies {
		refs.companies[company.ID] = company
	}
	if refs.insurers, err = c.Store.AllInsurers(); err != nil {
		return nil, err
	}
	if refs.owners, err = c.Store.AllOwners(); err != nil {
		return nil, err
	}
	if refs.flags, err = c.Store.AllFlags(); err != nil {
		return nil, err
	}
	if refs.validity, err = c.Store.SyncValidity(); err != nil {
		return nil, err
	}
	return refs, nil
}

func (c *Computer) compute(ctx context.Context, trade model.RawTrade, refs *refsets, now time.Time) model.ComputedTrade {
	row := model.ComputedTrade{
		TradeID:       trade.TradeID,
		FlowID:        trade.FlowID,
		ProductID:     trade.ProductID,
		OriginISO2:    trade.OriginISO2,
		Status:        trade.Status,
		DepartureDate: trade.DepartureDate,
		VesselIMOs:    trade.VesselIMOs,
		ValueTonne:    trade.ValueTonne,
		UpdatedOn:     now,
	}
	if trade.ArrivalAtUTC != nil {
		row.ArrivalDate = trade.ArrivalAtUTC.Format(model.DateLayout)
	}

	if zone, ok := refs.zones[trade.DepartureZoneID]; ok {
		row.DeparturePortID = zone.PortID
		if row.DeparturePortID == 0 && zone.Type == model.ZonePort {
			row.DeparturePortID = zone.ID
		}
	}

	destination, status := resolveDestination(trade, refs.zones)
	row.DestinationISO2 = destination
	row.Status = status
	if country, ok := refs.byISO2[destination]; ok {
		row.DestinationRegion = country.Region
	}

	c.applyCommodity(&row, trade, refs)
	c.applyShips(ctx, &row, trade, refs)

	valid, tracked := refs.validity[trade.OriginISO2+"|"+trade.DepartureDate]
	row.IsValid = trade.IsValid && (!tracked || valid)
	return row
}

// resolveDestination walks the step chain backwards for the last non-STS zone
// outside the origin country, falling back to the arrival zone. A chain that
// only ever transfers ship-to-ship keeps the trade ongoing.
func resolveDestination(trade model.RawTrade, zones map[int64]model.Zone) (string, model.TradeStatus) {
	for i := len(trade.StepZoneIDs) - 1; i >= 0; i-- {
		if i < len(trade.StepSTS) && trade.StepSTS[i] {
			continue
		}
		zone, ok := zones[trade.StepZoneIDs[i]]
		if !ok || zone.CountryISO2 == "" || zone.CountryISO2 == trade.OriginISO2 {
			continue
		}
		return zone.CountryISO2, trade.Status
	}
	if !trade.ArrivalSTS {
		if zone, ok := zones[trade.ArrivalZoneID]; ok &&
			zone.CountryISO2 != "" && zone.CountryISO2 != trade.OriginISO2 {
			return zone.CountryISO2, trade.Status
		}
	}
	return "", model.StatusOngoing
}

func (c *Computer) applyCommodity(row *model.ComputedTrade, trade model.RawTrade, refs *refsets) {
	product, ok := refs.products[trade.ProductID]
	if !ok {
		return
	}
	name := product.Commodity
	if name == "" {
		name = product.Group
	}
	commodity, ok := refs.commodities[refdata.KplerCommodityID(name)]
	if !ok {
		slog.Warn("product without commodity mapping", "component", "tradecompute",
			"product_id", product.ID, "name", name)
		return
	}
	equivalent := commodity
	if commodity.EquivalentID != "" {
		if eq, ok := refs.commodities[commodity.EquivalentID]; ok {
			equivalent = eq
		}
	}
	row.CommodityID = commodity.ID
	row.CommodityEquivalentID = equivalent.ID
	row.PricingCommodity = equivalent.PricingCommodity
	row.GroupingDefault = equivalent.GroupingDefault
	row.GroupingSplitGas = equivalent.GroupingSplitGas
	row.GroupingSplitGasOil = equivalent.GroupingSplitGasOil
}

// applyShips resolves, per vessel, the insurer, owner and flag in force at
// departure.
func (c *Computer) applyShips(ctx context.Context, row *model.ComputedTrade, trade model.RawTrade, refs *refsets) {
	departure := trade.DepartureAtUTC
	for _, imo := range trade.VesselIMOs {
		if insurer := insurerAtDeparture(refs.insurers[imo], departure); insurer != nil {
			row.ShipInsurerNames = append(row.ShipInsurerNames, insurer.CompanyRawName)
			row.ShipInsurerISO2s = append(row.ShipInsurerISO2s,
				c.companyCountry(ctx, insurer.CompanyRawName, insurer.CompanyID, refs))
		}
		if owner := ownerAtDeparture(refs.owners[imo], departure); owner != nil {
			row.ShipOwnerNames = append(row.ShipOwnerNames, owner.CompanyRawName)
			row.ShipOwnerISO2s = append(row.ShipOwnerISO2s,
				c.companyCountry(ctx, owner.CompanyRawName, owner.CompanyID, refs))
		}
		if flag := flagAtDeparture(refs.flags[imo], departure); flag != nil {
			row.ShipFlagISO2s = append(row.ShipFlagISO2s, flag.FlagISO2)
		}
	}
}

// insurerAtDeparture prefers the most recent valid dated row whose cover
// started on or before departure; with no dated match the earliest row wins,
// which is what the open first-ever row exists for.
func insurerAtDeparture(rows []model.ShipInsurer, departure time.Time) *model.ShipInsurer {
	var best *model.ShipInsurer
	for i := range rows {
		row := &rows[i]
		if !row.IsValid || row.Unknown() {
			continue
		}
		if row.DateFrom == nil || row.DateFrom.After(departure) {
			continue
		}
		if best == nil || row.DateFrom.After(*best.DateFrom) {
			best = row
		}
	}
	if best != nil {
		return best
	}
	for i := range rows {
		row := &rows[i]
		if row.IsValid && !row.Unknown() {
			return row
		}
	}
	return nil
}

func ownerAtDeparture(rows []model.ShipOwner, departure time.Time) *model.ShipOwner {
	var best *model.ShipOwner
	for i := range rows {
		row := &rows[i]
		if row.DateFrom == nil || row.DateFrom.After(departure) {
			continue
		}
		if best == nil || row.DateFrom.After(*best.DateFrom) {
			best = row
		}
	}
	if best != nil {
		return best
	}
	if len(rows) > 0 {
		return &rows[0]
	}
	return nil
}

func flagAtDeparture(rows []model.ShipFlag, departure time.Time) *model.ShipFlag {
	var best *model.ShipFlag
	for i := range rows {
		row := &rows[i]
		if row.FirstSeen.After(departure) {
			continue
		}
		if best == nil || row.FirstSeen.After(best.FirstSeen) {
			best = row
		}
	}
	if best != nil {
		return best
	}
	if len(rows) > 0 {
		return &rows[0]
	}
	return nil
}

func (c *Computer) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}
