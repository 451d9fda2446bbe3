package kpler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Trade is one provenance trade as returned by the feed. Raw keeps the
// original payload for retention.
type Trade struct {
	ID                    int64          `json:"id"`
	Status                string         `json:"status"`
	DepartureDate         string         `json:"departureDate"`
	ArrivalDate           string         `json:"arrivalDate"`
	DepartureZone         ZoneRef        `json:"departureZone"`
	DepartureBerth        ZoneRef        `json:"departureBerth"`
	DepartureInstallation ZoneRef        `json:"departureInstallation"`
	ArrivalZone           ZoneRef        `json:"arrivalZone"`
	ArrivalBerth          ZoneRef        `json:"arrivalBerth"`
	ArrivalInstallation   ZoneRef        `json:"arrivalInstallation"`
	DepartureSTS          bool           `json:"departureSts"`
	ArrivalSTS            bool           `json:"arrivalSts"`
	Vessels               []VesselRef    `json:"vessels"`
	Steps                 []Step         `json:"steps"`
	Buyers                []PlayerRef    `json:"buyers"`
	Sellers               []PlayerRef    `json:"sellers"`
	FlowQuantities        []FlowQuantity `json:"flowQuantities"`

	Raw json.RawMessage `json:"-"`
}

type ZoneRef struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	PortID      int64  `json:"portId"`
	CountryISO2 string `json:"countryIso2"`
}

type VesselRef struct {
	ID   int64  `json:"id"`
	IMO  string `json:"imo"`
	Name string `json:"name"`
}

type Step struct {
	Zone ZoneRef `json:"zone"`
	STS  bool    `json:"sts"`
}

type PlayerRef struct {
	Name string `json:"name"`
}

type FlowQuantity struct {
	FlowID   int64      `json:"flowId"`
	Product  ProductRef `json:"product"`
	Quantity Quantities `json:"quantities"`
}

type ProductRef struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Grade     string `json:"grade"`
	Commodity string `json:"commodity"`
	Group     string `json:"group"`
	Family    string `json:"family"`
}

type Quantities struct {
	Tonne  float64 `json:"tonne"`
	M3     float64 `json:"m3"`
	Energy float64 `json:"energy"`
	GasM3  float64 `json:"gasM3"`
}

// DepartureAt parses the feed's departure timestamp.
func (t Trade) DepartureAt() (time.Time, bool) {
	return parseFeedTime(t.DepartureDate)
}

func (t Trade) ArrivalAt() (time.Time, bool) {
	return parseFeedTime(t.ArrivalDate)
}

func parseFeedTime(value string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// TradeQuery scopes one paged trade pull. Group keeps each query under the
// feed's result-window cap.
type TradeQuery struct {
	OriginISO2 string
	Group      string
	ProductID  int64
	From       time.Time
	To         time.Time
}

// Trades pages through the trade endpoint until a page comes back empty or
// the oldest returned departure predates the query window.
func (c *Client) Trades(ctx context.Context, q TradeQuery) ([]Trade, error) {
	var collected []Trade
	cursor := 0
	for {
		page, err := c.tradesPage(ctx, q, cursor)
		if err != nil {
			if errors.Is(err, ErrNoRecords) && len(collected) > 0 {
				return collected, nil
			}
			return nil, err
		}
		if len(page) == 0 {
			return collected, nil
		}

		done := false
		for _, trade := range page {
			departure, ok := trade.DepartureAt()
			if !ok {
				continue
			}
			if departure.Before(q.From) {
				done = true
				continue
			}
			if !q.To.IsZero() && departure.After(q.To) {
				continue
			}
			collected = append(collected, trade)
		}
		if done || len(page) < c.config.PageSize {
			return collected, nil
		}
		cursor += len(page)
	}
}

func (c *Client) tradesPage(ctx context.Context, q TradeQuery, cursor int) ([]Trade, error) {
	params := url.Values{}
	params.Set("origin", q.OriginISO2)
	params.Set("from", strconv.Itoa(cursor))
	params.Set("size", strconv.Itoa(c.config.PageSize))
	params.Set("startDate", q.From.Format("2006-01-02"))
	if !q.To.IsZero() {
		params.Set("endDate", q.To.Format("2006-01-02"))
	}
	if q.Group != "" {
		params.Set("productGroup", q.Group)
	}
	if q.ProductID != 0 {
		params.Set("productId", strconv.FormatInt(q.ProductID, 10))
	}

	var rows []json.RawMessage
	if err := c.doList(ctx, c.config.TradesPath, params, &rows); err != nil {
		return nil, err
	}

	trades := make([]Trade, 0, len(rows))
	for _, raw := range rows {
		var trade Trade
		if err := json.Unmarshal(raw, &trade); err != nil {
			return nil, fmt.Errorf("kpler: trade decode: %w", err)
		}
		trade.Raw = raw
		trades = append(trades, trade)
	}
	return trades, nil
}

// doList tolerates both a bare array response and an object wrapping it.
func (c *Client) doList(ctx context.Context, path string, params url.Values, rows *[]json.RawMessage) error {
	var payload json.RawMessage
	if err := c.doJSON(ctx, path, params, &payload); err != nil {
		return err
	}
	if err := json.Unmarshal(payload, rows); err == nil {
		return nil
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(payload, &wrapper); err != nil {
		return fmt.Errorf("kpler: unexpected response shape for %s", path)
	}
	for _, key := range []string{"trades", "data", "results", "items"} {
		if raw, ok := wrapper[key]; ok {
			return json.Unmarshal(raw, rows)
		}
	}
	return fmt.Errorf("kpler: unexpected response shape for %s", path)
}
