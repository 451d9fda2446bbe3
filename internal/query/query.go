// Package query is the read side: tonnage aggregates over the computed
// trades and monetary series over the counter, shaped for the HTTP API.
package query

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fueltracker/internal/model"
	"fueltracker/internal/store"
)

type Service struct {
	Store *store.Store
}

// AggregateBy selects the key a tonnage aggregate is bucketed under.
type AggregateBy string

const (
	ByCommodity   AggregateBy = "commodity"
	ByDestination AggregateBy = "destination"
	ByRegion      AggregateBy = "region"
	ByGrouping    AggregateBy = "grouping"
)

type AggregateRequest struct {
	By       AggregateBy
	Grouping model.GroupingMode
	DateFrom string
	DateTo   string
}

type AggregateRow struct {
	Key        string  `json:"key"`
	ValueTonne float64 `json:"value_tonne"`
	Trades     int     `json:"trades"`
}

// Aggregate sums valid computed trades over the requested day range, keyed by
// the chosen dimension. The grouping dimension respects the grouping mode.
func (s *Service) Aggregate(req AggregateRequest) ([]AggregateRow, error) {
	trades, err := s.Store.ValidComputedTradesRange(req.DateFrom, req.DateTo)
	if err != nil {
		return nil, err
	}

	sums := map[string]*AggregateRow{}
	var order []string
	for _, trade := range trades {
		key, err := aggregateKey(req, trade)
		if err != nil {
			return nil, err
		}
		if key == "" {
			key = model.UnknownCompany
		}
		row, ok := sums[key]
		if !ok {
			row = &AggregateRow{Key: key}
			sums[key] = row
			order = append(order, key)
		}
		row.ValueTonne += trade.ValueTonne
		row.Trades++
	}

	rows := make([]AggregateRow, 0, len(order))
	for _, key := range order {
		rows = append(rows, *sums[key])
	}
	return rows, nil
}

func aggregateKey(req AggregateRequest, trade model.ComputedTrade) (string, error) {
	switch req.By {
	case ByCommodity, "":
		return trade.CommodityEquivalentID, nil
	case ByDestination:
		return trade.DestinationISO2, nil
	case ByRegion:
		return trade.DestinationRegion, nil
	case ByGrouping:
		switch req.Grouping {
		case model.GroupingSplitGas:
			return trade.GroupingSplitGas, nil
		case model.GroupingSplitGasOil:
			return trade.GroupingSplitGasOil, nil
		default:
			return trade.GroupingDefault, nil
		}
	default:
		return "", fmt.Errorf("query: unknown aggregate dimension %q", req.By)
	}
}

// CounterPoint is one day of the monetary counter, with rolling sums over
// the trailing 7 and 30 days.
type CounterPoint struct {
	Date       string          `json:"date"`
	ValueTonne float64         `json:"value_tonne"`
	ValueEUR   decimal.Decimal `json:"value_eur"`
	EUR7Day    decimal.Decimal `json:"eur_7d"`
	EUR30Day   decimal.Decimal `json:"eur_30d"`
}

// CounterSeries returns the daily counter for one scenario and version,
// summed across commodities and destinations, with rolling windows attached.
func (s *Service) CounterSeries(version model.CounterVersion, scenario, dateFrom, dateTo string) ([]CounterPoint, error) {
	if version == "" {
		version = model.CounterV2
	}
	rows, err := s.Store.CounterRows(version, dateFrom, dateTo)
	if err != nil {
		return nil, err
	}

	daily := map[string]*CounterPoint{}
	var dates []string
	for _, row := range rows {
		if scenario != "" && row.Scenario != scenario {
			continue
		}
		point, ok := daily[row.Date]
		if !ok {
			point = &CounterPoint{Date: row.Date}
			daily[row.Date] = point
			dates = append(dates, row.Date)
		}
		point.ValueTonne += row.ValueTonne
		point.ValueEUR = point.ValueEUR.Add(row.ValueEUR)
	}

	points := make([]CounterPoint, 0, len(dates))
	for _, date := range dates {
		point := *daily[date]
		point.EUR7Day = rollingEUR(daily, date, 7)
		point.EUR30Day = rollingEUR(daily, date, 30)
		points = append(points, point)
	}
	return points, nil
}

// rollingEUR sums the window of calendar days ending on date. Dates are day
// buckets, so the walk is over the calendar rather than over present rows.
func rollingEUR(daily map[string]*CounterPoint, date string, window int) decimal.Decimal {
	day, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return decimal.Zero
	}
	sum := decimal.Zero
	for i := 0; i < window; i++ {
		if point, ok := daily[day.AddDate(0, 0, -i).Format(model.DateLayout)]; ok {
			sum = sum.Add(point.ValueEUR)
		}
	}
	return sum
}

// Total sums a counter series into a single figure.
func Total(points []CounterPoint) (float64, decimal.Decimal) {
	var tonnes float64
	eur := decimal.Zero
	for _, point := range points {
		tonnes += point.ValueTonne
		eur = eur.Add(point.ValueEUR)
	}
	return tonnes, eur
}
