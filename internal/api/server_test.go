package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fueltracker/internal/model"
	"fueltracker/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st), st
}

func get(t *testing.T, router *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	server, _ := newTestServer(t)
	rec := get(t, server.Router(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestTradesEndpoint(t *testing.T) {
	server, st := newTestServer(t)
	require.NoError(t, st.UpsertComputedTrades([]model.ComputedTrade{
		{
			TradeID: 1, FlowID: 1, ProductID: 10,
			CommodityID: "crude_oil", OriginISO2: "RU", DestinationISO2: "IN",
			Status: model.StatusCompleted, DepartureDate: "2023-05-10",
			VesselIMOs: []string{"9700001"}, ValueTonne: 100000,
			IsValid: true, UpdatedOn: time.Now(),
		},
		{
			TradeID: 2, FlowID: 1, ProductID: 10,
			CommodityID: "crude_oil", OriginISO2: "RU",
			Status: model.StatusOngoing, DepartureDate: "2023-05-12",
			ValueTonne: 50000, IsValid: false, UpdatedOn: time.Now(),
		},
	}))

	rec := get(t, server.Router(), "/v0/trades?date_from=2023-05-01&date_to=2023-05-31")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Rows []tradeResponse `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Rows, 1, "invalid trades stay out of the API")
	assert.Equal(t, int64(1), body.Rows[0].TradeID)
	assert.Equal(t, "IN", body.Rows[0].Destination)
	assert.Equal(t, []string{"9700001"}, body.Rows[0].Vessels)
}

func TestAggregatesEndpointRejectsUnknownDimension(t *testing.T) {
	server, _ := newTestServer(t)
	rec := get(t, server.Router(), "/v0/aggregates?by=vessel")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAggregatesEndpoint(t *testing.T) {
	server, st := newTestServer(t)
	require.NoError(t, st.UpsertComputedTrades([]model.ComputedTrade{
		{TradeID: 1, FlowID: 1, ProductID: 10, CommodityID: "crude_oil",
			DepartureDate: "2023-05-10", ValueTonne: 80, IsValid: true},
		{TradeID: 2, FlowID: 1, ProductID: 10, CommodityID: "crude_oil",
			DepartureDate: "2023-05-11", ValueTonne: 20, IsValid: true},
		{TradeID: 3, FlowID: 1, ProductID: 11, CommodityID: "lng",
			DepartureDate: "2023-05-11", ValueTonne: 50, IsValid: true},
	}))

	rec := get(t, server.Router(), "/v0/aggregates?by=commodity")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Rows []struct {
			Key        string  `json:"key"`
			ValueTonne float64 `json:"value_tonne"`
			Trades     int     `json:"trades"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Rows, 2)
	assert.Equal(t, "crude_oil", body.Rows[0].Key)
	assert.Equal(t, 100.0, body.Rows[0].ValueTonne)
	assert.Equal(t, 2, body.Rows[0].Trades)
}

func TestCounterEndpointFiltersScenario(t *testing.T) {
	server, st := newTestServer(t)
	require.NoError(t, st.UpsertCounters([]model.Counter{
		{Version: model.CounterV2, Scenario: "base", Date: "2023-05-10",
			Commodity: "crude_oil", DestinationISO2: "IN",
			ValueTonne: 1000, ValueEUR: decimal.NewFromInt(500000)},
		{Version: model.CounterV2, Scenario: "cap", Date: "2023-05-10",
			Commodity: "crude_oil", DestinationISO2: "IN",
			ValueTonne: 1000, ValueEUR: decimal.NewFromInt(60000)},
	}))

	rec := get(t, server.Router(), "/v0/counter?scenario=base")
	require.Equal(t, http.StatusOK, rec.Code)

	var body counterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Points, 1)
	assert.Equal(t, "500000", body.TotalValueEUR)
	assert.Equal(t, 1000.0, body.TotalTonne)
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()
	get(t, router, "/healthz")
	rec := get(t, router, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fueltracker_api_request_duration_seconds")
}
