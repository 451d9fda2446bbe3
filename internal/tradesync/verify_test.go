package tradesync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fueltracker/internal/model"
	"fueltracker/internal/providers/kpler"
)

func TestCompareDay(t *testing.T) {
	tests := []struct {
		name   string
		feed   map[string]float64
		stored map[string]float64
		relief float64
		want   bool
	}{
		{
			name:   "exact match",
			feed:   map[string]float64{"IN": 100, "CN": 200},
			stored: map[string]float64{"IN": 100, "CN": 200},
			want:   true,
		},
		{
			name:   "within five percent",
			feed:   map[string]float64{"IN": 100},
			stored: map[string]float64{"IN": 104},
			want:   true,
		},
		{
			name:   "one outlier but total matches",
			feed:   map[string]float64{"IN": 100, "CN": 1000},
			stored: map[string]float64{"IN": 90, "CN": 1010},
			want:   true,
		},
		{
			name:   "too many outliers",
			feed:   map[string]float64{"IN": 100, "CN": 100, "TR": 100},
			stored: map[string]float64{"IN": 50, "CN": 150, "TR": 160},
			want:   false,
		},
		{
			name:   "total drift",
			feed:   map[string]float64{"IN": 100},
			stored: map[string]float64{"IN": 200},
			want:   false,
		},
		{
			name:   "absolute error within rolling relief",
			feed:   map[string]float64{"IN": 100},
			stored: map[string]float64{"IN": 140},
			relief: 50,
			want:   true,
		},
		{
			name:   "factor only stored locally",
			feed:   map[string]float64{"IN": 1000},
			stored: map[string]float64{"IN": 1000, "TR": 5},
			relief: 10,
			want:   true,
		},
		{
			name:   "empty day",
			feed:   nil,
			stored: nil,
			want:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compareDay(tt.feed, tt.stored, tt.relief))
		})
	}
}

func TestVerifyStampsSyncHistory(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.UpsertZones([]model.Zone{{ID: 202, Name: "Sikka", CountryISO2: "IN"}}))
	require.NoError(t, st.UpsertProducts([]model.Product{{ID: 11, Name: "Urals", Group: "Crude/Co"}}))
	require.NoError(t, st.UpsertRawTrades([]model.RawTrade{
		{
			TradeID: 1, FlowID: 1, ProductID: 11, Status: model.StatusOngoing,
			OriginISO2: "RU", DepartureDate: "2023-05-15", ArrivalZoneID: 202,
			ValueTonne: 100000, IsValid: true,
		},
		{
			TradeID: 2, FlowID: 1, ProductID: 11, Status: model.StatusOngoing,
			OriginISO2: "RU", DepartureDate: "2023-05-16", ArrivalZoneID: 202,
			ValueTonne: 50000, IsValid: true,
		},
	}))
	require.NoError(t, st.UpsertSyncHistory([]model.SyncHistory{
		{OriginISO2: "RU", Date: "2023-05-15", IsValid: true},
		{OriginISO2: "RU", Date: "2023-05-16", IsValid: true},
	}))

	feed := &fakeFeed{aggs: map[kpler.AggregateAxis][]kpler.Aggregate{
		kpler.AxisDestination: {
			{Date: "2023-05-15", Factor: "IN", Tonne: 100000},
			{Date: "2023-05-16", Factor: "IN", Tonne: 80000}, // stored has 50000
		},
		kpler.AxisProductGroup: {
			{Date: "2023-05-15", Factor: "Crude/Co", Tonne: 100000},
			{Date: "2023-05-16", Factor: "Crude/Co", Tonne: 80000},
		},
	}}
	engine := &Engine{Store: st, Feed: feed}

	err := engine.Verify(context.Background(), []string{"RU"}, day(t, "2023-05-15"), day(t, "2023-05-16"))
	require.NoError(t, err)

	history, err := st.SyncHistoryRange("RU", "2023-05-15", "2023-05-16")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].IsValid)
	assert.False(t, history[1].IsValid)
	assert.False(t, history[0].LastChecked.IsZero())
}
