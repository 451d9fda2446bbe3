// Package tradesync keeps the raw trade table converged on the provenance
// feed: monthly scoped ingestion, aggregate reconciliation, and re-fetch of
// days the compare rejected.
package tradesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fueltracker/internal/model"
	"fueltracker/internal/providers/kpler"
	"fueltracker/internal/store"
)

// Feed is the slice of the provenance client the engine drives. Satisfied by
// *kpler.Client.
type Feed interface {
	Trades(ctx context.Context, q kpler.TradeQuery) ([]kpler.Trade, error)
	FlowAggregates(ctx context.Context, originISO2 string, axis kpler.AggregateAxis, from, to time.Time) ([]kpler.Aggregate, error)
}

// defaultGroups are the commodity-group scopes that keep each monthly query
// under the feed's result-window cap.
var defaultGroups = []string{"Crude/Co", "Clean Products", "Dirty Products", "LNG", "LPG", "Coal"}

// groupCommodity estimates a vessel's carried commodity class from the
// product group of the trade it appears on.
var groupCommodity = map[string]string{
	"Crude/Co":       "crude_oil",
	"Clean Products": "oil_products",
	"Dirty Products": "oil_products",
	"LNG":            "lng",
	"LPG":            "lpg",
	"Coal":           "coal",
}

type Engine struct {
	Store  *store.Store
	Feed   Feed
	Groups []string
	Now    func() time.Time
}

// Update refreshes raw trades for the given origins across [from, to]. Feed
// errors on one (origin, month) abort that month only; the error is returned
// when every month failed.
func (e *Engine) Update(ctx context.Context, origins []string, from, to time.Time, updateTime time.Time) error {
	if updateTime.IsZero() {
		updateTime = e.now()
	}
	from = dayStart(from)
	to = dayStart(to)

	months := 0
	failed := 0
	var firstErr error
	for _, origin := range origins {
		for _, monthStart := range monthsBetween(from, to) {
			months++
			if err := e.updateMonth(ctx, origin, monthStart, from, to, updateTime); err != nil {
				failed++
				if firstErr == nil {
					firstErr = err
				}
				slog.Warn("month sync failed", "component", "tradesync",
					"origin", origin, "month", monthStart.Format("2006-01"), "err", err)
				if ctx.Err() != nil {
					return ctx.Err()
				}
			}
		}
	}
	if months > 0 && failed == months {
		return fmt.Errorf("tradesync: all %d months failed: %w", months, firstErr)
	}
	return nil
}

func (e *Engine) updateMonth(ctx context.Context, origin string, monthStart, from, to time.Time, updateTime time.Time) error {
	windowFrom := maxTime(monthStart, from)
	windowTo := minTime(monthStart.AddDate(0, 1, -1), to)

	groups := e.Groups
	if len(groups) == 0 {
		groups = defaultGroups
	}

	var collected []kpler.Trade
	for _, group := range groups {
		trades, err := e.fetchGroup(ctx, origin, group, windowFrom, windowTo)
		if err != nil {
			return err
		}
		collected = append(collected, trades...)
	}

	batch := e.explode(collected, origin, updateTime)
	if err := e.upsertReferences(collected); err != nil {
		return err
	}
	if err := e.Store.UpsertRawTrades(batch); err != nil {
		return err
	}
	tradesUpserted.Add(float64(len(batch)))

	var history []model.SyncHistory
	for day := windowFrom; !day.After(windowTo); day = day.AddDate(0, 0, 1) {
		history = append(history, model.SyncHistory{
			OriginISO2:  origin,
			Date:        day.Format(model.DateLayout),
			LastUpdated: updateTime,
			IsValid:     true,
		})
	}
	if err := e.Store.UpsertSyncHistory(history); err != nil {
		return err
	}

	retired, err := e.Store.InvalidateStaleRawTrades(origin,
		windowFrom.Format(model.DateLayout), windowTo.Format(model.DateLayout), updateTime)
	if err != nil {
		return err
	}
	slog.Info("month synced", "component", "tradesync", "origin", origin,
		"month", monthStart.Format("2006-01"), "trades", len(batch), "retired", retired)
	return nil
}

// fetchGroup pulls one commodity-group window, narrowing first by product and
// then by day when the feed reports a result-window overflow.
func (e *Engine) fetchGroup(ctx context.Context, origin, group string, from, to time.Time) ([]kpler.Trade, error) {
	trades, err := e.Feed.Trades(ctx, kpler.TradeQuery{OriginISO2: origin, Group: group, From: from, To: to})
	if err == nil {
		return trades, nil
	}
	if !errors.Is(err, kpler.ErrWindowTooLarge) {
		return nil, err
	}

	products, err := e.Store.AllProducts()
	if err != nil {
		return nil, err
	}
	var collected []kpler.Trade
	for _, product := range products {
		if !strings.EqualFold(product.Group, group) {
			continue
		}
		q := kpler.TradeQuery{OriginISO2: origin, Group: group, ProductID: product.ID, From: from, To: to}
		trades, err := e.Feed.Trades(ctx, q)
		if err == nil {
			collected = append(collected, trades...)
			continue
		}
		if !errors.Is(err, kpler.ErrWindowTooLarge) {
			return nil, err
		}
		for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
			q.From, q.To = day, day
			dayTrades, err := e.Feed.Trades(ctx, q)
			if err != nil {
				return nil, err
			}
			collected = append(collected, dayTrades...)
		}
	}
	return collected, nil
}

// explode turns each feed trade into its (trade, flow, product) rows. Trades
// in a state other than in-transit or delivered are discarded.
func (e *Engine) explode(trades []kpler.Trade, origin string, updateTime time.Time) []model.RawTrade {
	var rows []model.RawTrade
	for _, trade := range trades {
		status, ok := mapStatus(trade.Status)
		if !ok {
			continue
		}
		departure, ok := trade.DepartureAt()
		if !ok {
			slog.Warn("trade without departure discarded", "component", "tradesync", "trade_id", trade.ID)
			continue
		}
		var arrival *time.Time
		if at, ok := trade.ArrivalAt(); ok {
			arrival = &at
		}

		imos := make([]string, 0, len(trade.Vessels))
		for _, vessel := range trade.Vessels {
			imos = append(imos, vessel.IMO)
		}
		steps := make([]int64, 0, len(trade.Steps))
		stepSTS := make([]bool, 0, len(trade.Steps))
		for _, step := range trade.Steps {
			steps = append(steps, step.Zone.ID)
			stepSTS = append(stepSTS, step.STS)
		}

		for _, flow := range trade.FlowQuantities {
			rows = append(rows, model.RawTrade{
				TradeID:                 trade.ID,
				FlowID:                  flow.FlowID,
				ProductID:               flow.Product.ID,
				Status:                  status,
				DepartureAtUTC:          departure,
				ArrivalAtUTC:            arrival,
				DepartureDate:           departure.Format(model.DateLayout),
				OriginISO2:              origin,
				DepartureZoneID:         trade.DepartureZone.ID,
				DepartureBerthID:        trade.DepartureBerth.ID,
				DepartureInstallationID: trade.DepartureInstallation.ID,
				ArrivalZoneID:           trade.ArrivalZone.ID,
				ArrivalBerthID:          trade.ArrivalBerth.ID,
				ArrivalInstallationID:   trade.ArrivalInstallation.ID,
				DepartureSTS:            trade.DepartureSTS,
				ArrivalSTS:              trade.ArrivalSTS,
				VesselIMOs:              imos,
				StepZoneIDs:             steps,
				StepSTS:                 stepSTS,
				Buyers:                  playerNames(trade.Buyers),
				Sellers:                 playerNames(trade.Sellers),
				ValueTonne:              flow.Quantity.Tonne,
				ValueM3:                 flow.Quantity.M3,
				ValueEnergy:             flow.Quantity.Energy,
				ValueGasM3:              flow.Quantity.GasM3,
				Raw:                     []byte(trade.Raw),
				IsValid:                 true,
				UpdatedOn:               updateTime,
			})
		}
	}
	return rows
}

// upsertReferences stubs the zones, installations, products and ships a
// batch points at, so foreign references resolve before the next full
// reference pull.
func (e *Engine) upsertReferences(trades []kpler.Trade) error {
	zones := map[int64]model.Zone{}
	installations := map[int64]model.Installation{}
	products := map[int64]model.Product{}
	ships := map[string]model.Ship{}
	now := e.now()

	addZone := func(ref kpler.ZoneRef) {
		if ref.ID == 0 {
			return
		}
		zones[ref.ID] = model.Zone{
			ID: ref.ID, Name: ref.Name, Type: model.ZoneType(ref.Type),
			PortID: ref.PortID, CountryISO2: ref.CountryISO2,
		}
	}

	for _, trade := range trades {
		addZone(trade.DepartureZone)
		addZone(trade.DepartureBerth)
		addZone(trade.ArrivalZone)
		addZone(trade.ArrivalBerth)
		for _, step := range trade.Steps {
			addZone(step.Zone)
		}
		for _, ref := range []kpler.ZoneRef{trade.DepartureInstallation, trade.ArrivalInstallation} {
			if ref.ID == 0 {
				continue
			}
			installations[ref.ID] = model.Installation{
				ID: ref.ID, Name: ref.Name, PortID: ref.PortID, CountryISO2: ref.CountryISO2,
			}
		}

		commodity := ""
		for _, flow := range trade.FlowQuantities {
			if flow.Product.ID != 0 {
				products[flow.Product.ID] = model.Product{
					ID: flow.Product.ID, Name: flow.Product.Name,
					Grade: flow.Product.Grade, Commodity: flow.Product.Commodity,
					Group: flow.Product.Group, Family: flow.Product.Family,
				}
			}
			if commodity == "" {
				commodity = groupCommodity[flow.Product.Group]
			}
		}
		for _, vessel := range trade.Vessels {
			if vessel.IMO == "" {
				continue
			}
			ships[vessel.IMO] = model.Ship{
				IMO: vessel.IMO, Name: vessel.Name, Commodity: commodity, UpdatedOn: now,
			}
		}
	}

	if len(zones) > 0 {
		slog.Debug("stubbing referenced zones", "component", "tradesync", "count", len(zones))
	}
	if err := e.Store.UpsertZones(values(zones)); err != nil {
		return err
	}
	if err := e.Store.UpsertInstallations(values(installations)); err != nil {
		return err
	}
	if err := e.Store.UpsertProducts(values(products)); err != nil {
		return err
	}
	return e.Store.UpsertShips(values(ships))
}

// RefetchInvalid groups the days whose last compare failed into their
// containing months, re-ingests them and re-runs the aggregate compare over
// each refetched window. A day the feed still disagrees on stays invalid.
func (e *Engine) RefetchInvalid(ctx context.Context, origins []string) error {
	days, err := e.Store.InvalidSyncDays(origins)
	if err != nil {
		return err
	}
	type span struct{ from, to time.Time }
	months := map[string]span{}
	for _, day := range days {
		date, err := time.Parse(model.DateLayout, day.Date)
		if err != nil {
			continue
		}
		monthStart := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)
		key := day.OriginISO2 + "|" + monthStart.Format(model.DateLayout)
		months[key] = span{from: monthStart, to: monthStart.AddDate(0, 1, -1)}
	}

	now := e.now()
	for key, window := range months {
		origin := strings.SplitN(key, "|", 2)[0]
		to := minTime(window.to, dayStart(now))
		if err := e.Update(ctx, []string{origin}, window.from, to, now); err != nil {
			return err
		}
		if err := e.Verify(ctx, []string{origin}, window.from, to); err != nil {
			return err
		}
	}
	return nil
}

func mapStatus(status string) (model.TradeStatus, bool) {
	switch status {
	case "In Transit":
		return model.StatusOngoing, true
	case "Delivered":
		return model.StatusCompleted, true
	default:
		return "", false
	}
}

func playerNames(players []kpler.PlayerRef) []string {
	names := make([]string, 0, len(players))
	for _, player := range players {
		names = append(names, player.Name)
	}
	return names
}

func monthsBetween(from, to time.Time) []time.Time {
	var months []time.Time
	cursor := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cursor.After(to) {
		months = append(months, cursor)
		cursor = cursor.AddDate(0, 1, 0)
	}
	return months
}

func dayStart(ts time.Time) time.Time {
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func values[K comparable, V any](m map[K]V) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}
