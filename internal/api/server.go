// Package api serves the read-only HTTP surface: the counter series,
// tonnage aggregates and the denormalised trade list.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fueltracker/internal/model"
	"fueltracker/internal/query"
	"fueltracker/internal/store"
)

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "fueltracker",
	Subsystem: "api",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency by route and status.",
}, []string{"route", "status"})

type Server struct {
	Query *query.Service
}

func New(st *store.Store) *Server {
	return &Server{Query: &query.Service{Store: st}}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), measure())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v0 := router.Group("/v0")
	{
		v0.GET("/counter", s.counterSeries)
		v0.GET("/aggregates", s.aggregates)
		v0.GET("/trades", s.trades)
	}
	return router
}

func measure() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requestDuration.
			WithLabelValues(route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

type counterResponse struct {
	Version       string               `json:"version"`
	Scenario      string               `json:"scenario,omitempty"`
	TotalTonne    float64              `json:"total_tonne"`
	TotalValueEUR string               `json:"total_value_eur"`
	Points        []query.CounterPoint `json:"points"`
}

func (s *Server) counterSeries(c *gin.Context) {
	version := model.CounterVersion(c.DefaultQuery("version", string(model.CounterV2)))
	scenario := c.Query("scenario")

	points, err := s.Query.CounterSeries(version, scenario, c.Query("date_from"), c.Query("date_to"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	tonne, eur := query.Total(points)
	c.JSON(http.StatusOK, counterResponse{
		Version:       string(version),
		Scenario:      scenario,
		TotalTonne:    tonne,
		TotalValueEUR: eur.String(),
		Points:        points,
	})
}

func (s *Server) aggregates(c *gin.Context) {
	req := query.AggregateRequest{
		By:       query.AggregateBy(c.DefaultQuery("by", string(query.ByCommodity))),
		Grouping: model.GroupingMode(c.DefaultQuery("grouping", string(model.GroupingDefault))),
		DateFrom: c.Query("date_from"),
		DateTo:   c.Query("date_to"),
	}
	rows, err := s.Query.Aggregate(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

type tradeResponse struct {
	TradeID       int64    `json:"trade_id"`
	FlowID        int64    `json:"flow_id"`
	ProductID     int64    `json:"product_id"`
	Commodity     string   `json:"commodity"`
	Origin        string   `json:"origin_iso2"`
	Destination   string   `json:"destination_iso2,omitempty"`
	Region        string   `json:"destination_region,omitempty"`
	Status        string   `json:"status"`
	DepartureDate string   `json:"departure_date"`
	ArrivalDate   string   `json:"arrival_date,omitempty"`
	Vessels       []string `json:"vessel_imos,omitempty"`
	Insurers      []string `json:"ship_insurers,omitempty"`
	Owners        []string `json:"ship_owners,omitempty"`
	Flags         []string `json:"ship_flags,omitempty"`
	ValueTonne    float64  `json:"value_tonne"`
}

func (s *Server) trades(c *gin.Context) {
	trades, err := s.Query.Store.ValidComputedTradesRange(c.Query("date_from"), c.Query("date_to"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	rows := make([]tradeResponse, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, tradeResponse{
			TradeID:       t.TradeID,
			FlowID:        t.FlowID,
			ProductID:     t.ProductID,
			Commodity:     t.CommodityID,
			Origin:        t.OriginISO2,
			Destination:   t.DestinationISO2,
			Region:        t.DestinationRegion,
			Status:        string(t.Status),
			DepartureDate: t.DepartureDate,
			ArrivalDate:   t.ArrivalDate,
			Vessels:       t.VesselIMOs,
			Insurers:      t.ShipInsurerNames,
			Owners:        t.ShipOwnerNames,
			Flags:         t.ShipFlagISO2s,
			ValueTonne:    t.ValueTonne,
		})
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}
