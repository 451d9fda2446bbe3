package tradesync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fueltracker/internal/model"
	"fueltracker/internal/providers/kpler"
	"fueltracker/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

type fakeFeed struct {
	trades   func(q kpler.TradeQuery) ([]kpler.Trade, error)
	aggs     map[kpler.AggregateAxis][]kpler.Aggregate
	queries  []kpler.TradeQuery
	aggCalls int
}

func (f *fakeFeed) Trades(_ context.Context, q kpler.TradeQuery) ([]kpler.Trade, error) {
	f.queries = append(f.queries, q)
	if f.trades == nil {
		return nil, nil
	}
	return f.trades(q)
}

func (f *fakeFeed) FlowAggregates(_ context.Context, _ string, axis kpler.AggregateAxis, _, _ time.Time) ([]kpler.Aggregate, error) {
	f.aggCalls++
	return f.aggs[axis], nil
}

func day(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(model.DateLayout, value)
	require.NoError(t, err)
	return ts
}

func sampleTrade() kpler.Trade {
	return kpler.Trade{
		ID:            42,
		Status:        "In Transit",
		DepartureDate: "2023-05-15T08:00:00",
		DepartureZone: kpler.ZoneRef{ID: 101, Name: "Primorsk", Type: "port", CountryISO2: "RU"},
		ArrivalZone:   kpler.ZoneRef{ID: 202, Name: "Sikka", Type: "port", CountryISO2: "IN"},
		Vessels:       []kpler.VesselRef{{ID: 7, IMO: "9288748", Name: "NS Champion"}},
		Steps: []kpler.Step{
			{Zone: kpler.ZoneRef{ID: 101, CountryISO2: "RU"}},
			{Zone: kpler.ZoneRef{ID: 202, CountryISO2: "IN"}},
		},
		Buyers:  []kpler.PlayerRef{{Name: "Reliance"}},
		Sellers: []kpler.PlayerRef{{Name: "Rosneft"}},
		FlowQuantities: []kpler.FlowQuantity{
			{FlowID: 1, Product: kpler.ProductRef{ID: 11, Name: "Urals", Group: "Crude/Co"}, Quantity: kpler.Quantities{Tonne: 100000}},
			{FlowID: 1, Product: kpler.ProductRef{ID: 12, Name: "Condensate", Group: "Crude/Co"}, Quantity: kpler.Quantities{Tonne: 5000}},
		},
		Raw: []byte(`{"id":42}`),
	}
}

func TestMonthsBetween(t *testing.T) {
	months := monthsBetween(day(t, "2023-01-15"), day(t, "2023-03-02"))
	require.Len(t, months, 3)
	assert.Equal(t, "2023-01-01", months[0].Format(model.DateLayout))
	assert.Equal(t, "2023-03-01", months[2].Format(model.DateLayout))

	assert.Len(t, monthsBetween(day(t, "2023-05-10"), day(t, "2023-05-10")), 1)
}

func TestUpdateExplodesAndStubsReferences(t *testing.T) {
	st := newTestStore(t)
	feed := &fakeFeed{trades: func(q kpler.TradeQuery) ([]kpler.Trade, error) {
		if q.Group == "Crude/Co" {
			return []kpler.Trade{sampleTrade()}, nil
		}
		return nil, nil
	}}
	engine := &Engine{Store: st, Feed: feed}

	updateTime := day(t, "2023-06-01")
	err := engine.Update(context.Background(), []string{"RU"}, day(t, "2023-05-01"), day(t, "2023-05-31"), updateTime)
	require.NoError(t, err)

	trades, err := st.RawTradesByOrigin("RU", "2023-05-01", "2023-05-31")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, int64(42), trades[0].TradeID)
	assert.Equal(t, model.StatusOngoing, trades[0].Status)
	assert.Equal(t, "2023-05-15", trades[0].DepartureDate)
	assert.Equal(t, []string{"9288748"}, trades[0].VesselIMOs)
	assert.NotEqual(t, trades[0].ProductID, trades[1].ProductID)

	zones, err := st.AllZones()
	require.NoError(t, err)
	assert.Len(t, zones, 2)
	products, err := st.AllProducts()
	require.NoError(t, err)
	assert.Len(t, products, 2)
	ships, err := st.AllShips()
	require.NoError(t, err)
	require.Len(t, ships, 1)
	assert.Equal(t, "crude_oil", ships[0].Commodity)

	history, err := st.SyncHistoryRange("RU", "2023-05-01", "2023-05-31")
	require.NoError(t, err)
	assert.Len(t, history, 31)
	assert.True(t, history[0].LastUpdated.Equal(updateTime))
}

func TestUpdateDiscardsUnmappedStatus(t *testing.T) {
	st := newTestStore(t)
	trade := sampleTrade()
	trade.Status = "Scheduled"
	feed := &fakeFeed{trades: func(q kpler.TradeQuery) ([]kpler.Trade, error) {
		return []kpler.Trade{trade}, nil
	}}
	engine := &Engine{Store: st, Feed: feed}

	err := engine.Update(context.Background(), []string{"RU"}, day(t, "2023-05-01"), day(t, "2023-05-31"), day(t, "2023-06-01"))
	require.NoError(t, err)

	trades, err := st.RawTradesByOrigin("RU", "2023-05-01", "2023-05-31")
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestUpdateRetiresVanishedTrades(t *testing.T) {
	st := newTestStore(t)
	stale := day(t, "2023-05-20")
	require.NoError(t, st.UpsertRawTrades([]model.RawTrade{{
		TradeID: 9, FlowID: 1, ProductID: 11, Status: model.StatusOngoing,
		OriginISO2: "RU", DepartureDate: "2023-05-10", IsValid: true, UpdatedOn: stale,
	}}))

	engine := &Engine{Store: st, Feed: &fakeFeed{}}
	err := engine.Update(context.Background(), []string{"RU"}, day(t, "2023-05-01"), day(t, "2023-05-31"), day(t, "2023-06-01"))
	require.NoError(t, err)

	trades, err := st.RawTradesByOrigin("RU", "2023-05-01", "2023-05-31")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.False(t, trades[0].IsValid)
}

func TestUpdateSameBatchTwiceConverges(t *testing.T) {
	st := newTestStore(t)
	feed := &fakeFeed{trades: func(q kpler.TradeQuery) ([]kpler.Trade, error) {
		if q.Group == "Crude/Co" {
			return []kpler.Trade{sampleTrade()}, nil
		}
		return nil, nil
	}}
	engine := &Engine{Store: st, Feed: feed}

	for _, updateTime := range []string{"2023-06-01", "2023-06-02"} {
		err := engine.Update(context.Background(), []string{"RU"}, day(t, "2023-05-01"), day(t, "2023-05-31"), day(t, updateTime))
		require.NoError(t, err)
	}

	trades, err := st.RawTradesByOrigin("RU", "2023-05-01", "2023-05-31")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	for _, trade := range trades {
		assert.True(t, trade.IsValid)
	}
}

func TestFetchGroupNarrowsOnWindowOverflow(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.UpsertProducts([]model.Product{
		{ID: 11, Name: "Urals", Group: "Crude/Co"},
		{ID: 12, Name: "Condensate", Group: "Crude/Co"},
		{ID: 31, Name: "Diesel", Group: "Clean Products"},
	}))

	feed := &fakeFeed{trades: func(q kpler.TradeQuery) ([]kpler.Trade, error) {
		if q.ProductID == 0 {
			return nil, kpler.ErrWindowTooLarge
		}
		if q.ProductID == 11 {
			return []kpler.Trade{sampleTrade()}, nil
		}
		return nil, nil
	}}
	engine := &Engine{Store: st, Feed: feed, Groups: []string{"Crude/Co"}}

	trades, err := engine.fetchGroup(context.Background(), "RU", "Crude/Co", day(t, "2023-05-01"), day(t, "2023-05-31"))
	require.NoError(t, err)
	assert.Len(t, trades, 1)

	var productIDs []int64
	for _, q := range feed.queries {
		productIDs = append(productIDs, q.ProductID)
	}
	// group query overflows, then each crude product is tried; the diesel
	// product belongs to another group and is skipped
	assert.Equal(t, []int64{0, 11, 12}, productIDs)
}

func TestFetchGroupNarrowsToDays(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.UpsertProducts([]model.Product{{ID: 11, Name: "Urals", Group: "Crude/Co"}}))

	feed := &fakeFeed{trades: func(q kpler.TradeQuery) ([]kpler.Trade, error) {
		if q.From.Equal(q.To) {
			return nil, nil
		}
		return nil, kpler.ErrWindowTooLarge
	}}
	engine := &Engine{Store: st, Feed: feed}

	_, err := engine.fetchGroup(context.Background(), "RU", "Crude/Co", day(t, "2023-05-01"), day(t, "2023-05-03"))
	require.NoError(t, err)
	// one group query, one product query, then three single-day queries
	assert.Len(t, feed.queries, 5)
}

func TestRefetchInvalidGroupsDaysIntoMonths(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.UpsertSyncHistory([]model.SyncHistory{
		{OriginISO2: "RU", Date: "2023-05-10", IsValid: false},
		{OriginISO2: "RU", Date: "2023-05-20", IsValid: false},
		{OriginISO2: "RU", Date: "2023-06-02", IsValid: true},
	}))

	feed := &fakeFeed{}
	engine := &Engine{Store: st, Feed: feed, Groups: []string{"Crude/Co"}, Now: func() time.Time {
		return day(t, "2023-07-01")
	}}
	require.NoError(t, engine.RefetchInvalid(context.Background(), []string{"RU"}))

	// both invalid days fall in May, so exactly one month is re-fetched
	require.Len(t, feed.queries, 1)
	assert.Equal(t, "2023-05-01", feed.queries[0].From.Format(model.DateLayout))
	assert.Equal(t, "2023-05-31", feed.queries[0].To.Format(model.DateLayout))
}

func TestRefetchInvalidReverifiesRefetchedDays(t *testing.T) {
	st := newTestStore(t)
	checkedAt := day(t, "2023-06-01")
	require.NoError(t, st.UpsertSyncHistory([]model.SyncHistory{
		{OriginISO2: "RU", Date: "2023-05-15", LastUpdated: checkedAt},
	}))
	require.NoError(t, st.MarkSyncChecked("RU", "2023-05-15", false, checkedAt))

	// The refetched trades still contradict the feed's own aggregates, which
	// report nothing for the day.
	feed := &fakeFeed{trades: func(q kpler.TradeQuery) ([]kpler.Trade, error) {
		return []kpler.Trade{sampleTrade()}, nil
	}}
	engine := &Engine{Store: st, Feed: feed, Groups: []string{"Crude/Co"}, Now: func() time.Time {
		return day(t, "2023-07-01")
	}}
	require.NoError(t, engine.RefetchInvalid(context.Background(), []string{"RU"}))

	assert.Positive(t, feed.aggCalls, "re-ingestion must be followed by a compare")
	history, err := st.SyncHistoryRange("RU", "2023-05-15", "2023-05-15")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].IsValid, "a day the feed still disagrees on stays invalid")
	assert.False(t, history[0].LastChecked.IsZero())
	assert.True(t, history[0].LastUpdated.Equal(day(t, "2023-07-01")), "refresh must move last_updated")
}
