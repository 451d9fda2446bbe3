package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fueltracker/internal/counter"
	"fueltracker/internal/providers/kpler"
	"fueltracker/internal/store"
	"fueltracker/internal/tradecompute"
	"fueltracker/internal/tradesync"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

type fakeFeed struct {
	err error
}

func (f *fakeFeed) Trades(context.Context, kpler.TradeQuery) ([]kpler.Trade, error) {
	return nil, f.err
}

func (f *fakeFeed) FlowAggregates(context.Context, string, kpler.AggregateAxis, time.Time, time.Time) ([]kpler.Aggregate, error) {
	return nil, f.err
}

type fakeReference struct{}

func (fakeReference) Products(context.Context) ([]kpler.ProductPayload, error) {
	return []kpler.ProductPayload{{ID: 11, Name: "Urals", Commodity: "Crude", Group: "Crude/Co"}}, nil
}

func (fakeReference) Zones(context.Context) ([]kpler.ZonePayload, error) {
	return []kpler.ZonePayload{{ID: 10, Name: "Primorsk", Type: "port", CountryISO2: "RU"}}, nil
}

func (fakeReference) Installations(context.Context) ([]kpler.InstallationPayload, error) {
	return []kpler.InstallationPayload{{ID: 5, Name: "Primorsk Oil Terminal", PortID: 10, CountryISO2: "RU"}}, nil
}

type recordingNotifier struct {
	subjects []string
}

func (n *recordingNotifier) Notify(_ context.Context, subject, _ string) error {
	n.subjects = append(n.subjects, subject)
	return nil
}

func newRunner(st *store.Store, feed *fakeFeed, notifier *recordingNotifier) *Runner {
	now := func() time.Time { return time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC) }
	return &Runner{
		Store:      st,
		Reference:  fakeReference{},
		Sync:       &tradesync.Engine{Store: st, Feed: feed, Groups: []string{"Crude/Co"}, Now: now},
		Computer:   &tradecompute.Computer{Store: st, Now: now},
		Counter:    &counter.Aggregator{Store: st, Now: now},
		Notifier:   notifier,
		Origins:    []string{"RU"},
		RecentDays: 3,
		Now:        now,
	}
}

func TestRunCompletesChain(t *testing.T) {
	st := newTestStore(t)
	notifier := &recordingNotifier{}
	runner := newRunner(st, &fakeFeed{}, notifier)

	require.NoError(t, runner.Run(context.Background()))
	assert.Empty(t, notifier.subjects)

	commodities, err := st.AllCommodities()
	require.NoError(t, err)
	assert.NotEmpty(t, commodities)

	zones, err := st.AllZones()
	require.NoError(t, err)
	require.Len(t, zones, 1)
	assert.Equal(t, "Baltic", zones[0].Area)

	history, err := st.SyncHistoryRange("RU", "2023-05-29", "2023-06-01")
	require.NoError(t, err)
	assert.Len(t, history, 4)
	for _, row := range history {
		assert.False(t, row.LastUpdated.Before(runner.now()))
	}
}

func TestRunHaltsAndNotifiesOnStageFailure(t *testing.T) {
	st := newTestStore(t)
	notifier := &recordingNotifier{}
	runner := newRunner(st, &fakeFeed{err: errors.New("feed down")}, notifier)

	err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tradesync")
	require.Len(t, notifier.subjects, 1)

	// the chain halted before verification could stamp any day
	history, err := st.SyncHistoryRange("RU", "2023-05-29", "2023-06-01")
	require.NoError(t, err)
	for _, row := range history {
		assert.True(t, row.LastChecked.IsZero())
	}
}
