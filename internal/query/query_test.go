package query

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fueltracker/internal/model"
	"fueltracker/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedTrades(t *testing.T, st *store.Store) {
	t.Helper()
	require.NoError(t, st.UpsertComputedTrades([]model.ComputedTrade{
		{
			TradeID: 1, FlowID: 1, ProductID: 11,
			CommodityEquivalentID: "crude_oil", GroupingDefault: "oil", GroupingSplitGasOil: "crude_oil",
			OriginISO2: "RU", DestinationISO2: "IN", DestinationRegion: "Others",
			DepartureDate: "2023-05-15", ValueTonne: 100, IsValid: true,
		},
		{
			TradeID: 2, FlowID: 1, ProductID: 21,
			CommodityEquivalentID: "lng", GroupingDefault: "gas", GroupingSplitGas: "lng", GroupingSplitGasOil: "lng",
			OriginISO2: "RU", DestinationISO2: "FR", DestinationRegion: "EU",
			DepartureDate: "2023-05-16", ValueTonne: 50, IsValid: true,
		},
		{
			TradeID: 3, FlowID: 1, ProductID: 11,
			CommodityEquivalentID: "crude_oil", GroupingDefault: "oil", GroupingSplitGasOil: "crude_oil",
			OriginISO2: "RU", DestinationISO2: "IN", DestinationRegion: "Others",
			DepartureDate: "2023-06-01", ValueTonne: 30, IsValid: true,
		},
		{
			TradeID: 4, FlowID: 1, ProductID: 11,
			CommodityEquivalentID: "crude_oil",
			OriginISO2: "RU", DestinationISO2: "TR",
			DepartureDate: "2023-05-20", ValueTonne: 999, IsValid: false,
		},
	}))
}

func TestAggregateByCommodity(t *testing.T) {
	st := newTestStore(t)
	seedTrades(t, st)

	service := &Service{Store: st}
	rows, err := service.Aggregate(AggregateRequest{By: ByCommodity, DateFrom: "2023-05-01", DateTo: "2023-05-31"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, AggregateRow{Key: "crude_oil", ValueTonne: 100, Trades: 1}, rows[0])
	assert.Equal(t, AggregateRow{Key: "lng", ValueTonne: 50, Trades: 1}, rows[1])
}

func TestAggregateGroupingModes(t *testing.T) {
	st := newTestStore(t)
	seedTrades(t, st)
	service := &Service{Store: st}

	rows, err := service.Aggregate(AggregateRequest{By: ByGrouping})
	require.NoError(t, err)
	keys := map[string]float64{}
	for _, row := range rows {
		keys[row.Key] = row.ValueTonne
	}
	assert.Equal(t, 130.0, keys["oil"])
	assert.Equal(t, 50.0, keys["gas"])

	rows, err = service.Aggregate(AggregateRequest{By: ByGrouping, Grouping: model.GroupingSplitGasOil})
	require.NoError(t, err)
	keys = map[string]float64{}
	for _, row := range rows {
		keys[row.Key] = row.ValueTonne
	}
	assert.Equal(t, 130.0, keys["crude_oil"])
	assert.Equal(t, 50.0, keys["lng"])
}

func TestAggregateRejectsUnknownDimension(t *testing.T) {
	service := &Service{Store: newTestStore(t)}
	_, err := service.Aggregate(AggregateRequest{By: "vessel"})
	assert.Error(t, err)
}

func TestCounterSeriesRollingWindows(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.UpsertCounters([]model.Counter{
		{Date: "2023-05-14", Commodity: "crude_oil", DestinationISO2: "IN", Scenario: "default", Version: model.CounterV2, ValueTonne: 10, ValueEUR: decimal.NewFromInt(1000)},
		{Date: "2023-05-15", Commodity: "crude_oil", DestinationISO2: "IN", Scenario: "default", Version: model.CounterV2, ValueTonne: 20, ValueEUR: decimal.NewFromInt(2000)},
		{Date: "2023-05-15", Commodity: "lng", DestinationISO2: "FR", Scenario: "default", Version: model.CounterV2, ValueTonne: 5, ValueEUR: decimal.NewFromInt(500)},
		// a different scenario must not leak into the series
		{Date: "2023-05-15", Commodity: "crude_oil", DestinationISO2: "IN", Scenario: "capped", Version: model.CounterV2, ValueTonne: 20, ValueEUR: decimal.NewFromInt(900)},
	}))

	service := &Service{Store: st}
	points, err := service.CounterSeries(model.CounterV2, "default", "", "")
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, "2023-05-14", points[0].Date)
	assert.True(t, points[0].ValueEUR.Equal(decimal.NewFromInt(1000)))

	assert.Equal(t, "2023-05-15", points[1].Date)
	assert.Equal(t, 25.0, points[1].ValueTonne)
	assert.True(t, points[1].ValueEUR.Equal(decimal.NewFromInt(2500)))
	assert.True(t, points[1].EUR7Day.Equal(decimal.NewFromInt(3500)))
	assert.True(t, points[1].EUR30Day.Equal(decimal.NewFromInt(3500)))

	tonnes, eur := Total(points)
	assert.Equal(t, 35.0, tonnes)
	assert.True(t, eur.Equal(decimal.NewFromInt(3500)))
}
