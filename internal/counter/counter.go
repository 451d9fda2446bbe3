// Package counter aggregates computed trades into the daily monetary export
// counter, pricing each cargo with the most specific matching price row.
package counter

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"fueltracker/internal/model"
	"fueltracker/internal/store"
)

type Aggregator struct {
	Store   *store.Store
	Version model.CounterVersion
	Now     func() time.Time
}

// Run prices every valid computed trade under every pricing scenario and
// upserts one counter row per (date, commodity, destination, scenario,
// version). Re-running over the same inputs converges to the same rows.
func (a *Aggregator) Run(ctx context.Context) (int, error) {
	version := a.Version
	if version == "" {
		version = model.CounterV2
	}
	scenarios, err := a.Store.Scenarios()
	if err != nil {
		return 0, err
	}
	if len(scenarios) == 0 {
		slog.Warn("no pricing scenarios loaded", "component", "counter")
		return 0, nil
	}
	trades, err := a.Store.ValidComputedTrades()
	if err != nil {
		return 0, err
	}

	now := a.now()
	curves := map[string][]model.Price{}
	buckets := map[model.Counter]*accumulator{}
	unpriced := 0

	for _, trade := range trades {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if trade.PricingCommodity == "" {
			continue
		}
		for _, scenario := range scenarios {
			curveKey := trade.PricingCommodity + "|" + scenario
			curve, ok := curves[curveKey]
			if !ok {
				curve, err = a.Store.PricesFor(trade.PricingCommodity, scenario)
				if err != nil {
					return 0, err
				}
				curves[curveKey] = curve
			}

			price := pickPrice(curve, trade)
			if price == nil {
				unpriced++
				continue
			}

			destination := trade.DestinationISO2
			if destination == "" {
				destination = model.UnknownCompany
			}
			key := model.Counter{
				Date:            trade.DepartureDate,
				Commodity:       trade.PricingCommodity,
				DestinationISO2: destination,
				Scenario:        scenario,
				Version:         version,
			}
			bucket, ok := buckets[key]
			if !ok {
				bucket = &accumulator{}
				buckets[key] = bucket
			}
			bucket.tonnes += trade.ValueTonne
			bucket.eur = bucket.eur.Add(decimal.NewFromFloat(trade.ValueTonne).Mul(price.EURPerTonne))
		}
	}

	rows := make([]model.Counter, 0, len(buckets))
	for key, bucket := range buckets {
		key.ValueTonne = bucket.tonnes
		key.ValueEUR = bucket.eur
		key.UpdatedOn = now
		rows = append(rows, key)
	}
	if err := a.Store.UpsertCounters(rows); err != nil {
		return 0, err
	}
	if unpriced > 0 {
		slog.Warn("trades without a matching price", "component", "counter", "count", unpriced)
	}
	slog.Info("counter aggregated", "component", "counter", "rows", len(rows), "version", version)
	return len(rows), nil
}

type accumulator struct {
	tonnes float64
	eur    decimal.Decimal
}

// pickPrice returns the most specific price in force at the trade's
// departure. Specificity weights follow the fixed relaxation order: the
// owner scope is given up first, then insurer, then departure port, then
// destination. Ties go to the most recent price date.
func pickPrice(curve []model.Price, trade model.ComputedTrade) *model.Price {
	port := ""
	if trade.DeparturePortID != 0 {
		port = strconv.FormatInt(trade.DeparturePortID, 10)
	}

	var best *model.Price
	bestRank := -1
	for i := range curve {
		price := &curve[i]
		if price.Date > trade.DepartureDate {
			continue
		}
		if !scopeHas(price.DestinationISO2s, trade.DestinationISO2) {
			continue
		}
		if !scopeHas(price.DeparturePortIDs, port) {
			continue
		}
		if !scopeIntersects(price.ShipOwnerISO2s, trade.ShipOwnerISO2s) {
			continue
		}
		if !scopeIntersects(price.ShipInsurerISO2s, trade.ShipInsurerISO2s) {
			continue
		}

		rank := 0
		if len(price.ShipOwnerISO2s) > 0 {
			rank |= 1
		}
		if len(price.ShipInsurerISO2s) > 0 {
			rank |= 2
		}
		if len(price.DeparturePortIDs) > 0 {
			rank |= 4
		}
		if len(price.DestinationISO2s) > 0 {
			rank |= 8
		}
		// the curve is ordered newest first, so the first price seen at a
		// rank is the most recent one
		if rank > bestRank {
			bestRank = rank
			best = price
		}
	}
	return best
}

// scopeHas treats an empty scope as "any".
func scopeHas(scope []string, value string) bool {
	if len(scope) == 0 {
		return true
	}
	for _, entry := range scope {
		if entry == value {
			return true
		}
	}
	return false
}

func scopeIntersects(scope, values []string) bool {
	if len(scope) == 0 {
		return true
	}
	for _, entry := range scope {
		for _, value := range values {
			if entry == value {
				return true
			}
		}
	}
	return false
}

func (a *Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now().UTC()
}
