package kpler

import (
	"context"
	"encoding/json"
	"net/url"
	"time"
)

// Aggregate is one daily tonnage bucket from the flows endpoint.
type Aggregate struct {
	Date   string  `json:"date"`
	Factor string  `json:"splitValue"`
	Tonne  float64 `json:"tonne"`
}

type AggregateAxis string

const (
	AxisDestination  AggregateAxis = "destinationCountry"
	AxisProductGroup AggregateAxis = "productGroup"
)

// FlowAggregates pulls the feed's own daily aggregates for one origin along
// one split axis. The sync engine compares these against the stored trades.
func (c *Client) FlowAggregates(ctx context.Context, originISO2 string, axis AggregateAxis, from, to time.Time) ([]Aggregate, error) {
	params := url.Values{}
	params.Set("origin", originISO2)
	params.Set("split", string(axis))
	params.Set("granularity", "day")
	params.Set("startDate", from.Format("2006-01-02"))
	params.Set("endDate", to.Format("2006-01-02"))

	var rows []json.RawMessage
	if err := c.doList(ctx, c.config.FlowsPath, params, &rows); err != nil {
		return nil, err
	}
	aggregates := make([]Aggregate, 0, len(rows))
	for _, raw := range rows {
		var agg Aggregate
		if err := json.Unmarshal(raw, &agg); err != nil {
			return nil, err
		}
		aggregates = append(aggregates, agg)
	}
	return aggregates, nil
}

type ProductPayload struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Grade     string `json:"grade"`
	Commodity string `json:"commodity"`
	Group     string `json:"group"`
	Family    string `json:"family"`
}

func (c *Client) Products(ctx context.Context) ([]ProductPayload, error) {
	var rows []json.RawMessage
	if err := c.doList(ctx, c.config.ProductsPath, nil, &rows); err != nil {
		return nil, err
	}
	return decodeRows[ProductPayload](rows)
}

type ZonePayload struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	PortID      int64  `json:"portId"`
	CountryISO2 string `json:"countryIso2"`
}

func (c *Client) Zones(ctx context.Context) ([]ZonePayload, error) {
	var rows []json.RawMessage
	if err := c.doList(ctx, c.config.ZonesPath, nil, &rows); err != nil {
		return nil, err
	}
	return decodeRows[ZonePayload](rows)
}

type InstallationPayload struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	PortID      int64  `json:"portId"`
	CountryISO2 string `json:"countryIso2"`
}

func (c *Client) Installations(ctx context.Context) ([]InstallationPayload, error) {
	var rows []json.RawMessage
	if err := c.doList(ctx, c.config.InstallsPath, nil, &rows); err != nil {
		return nil, err
	}
	return decodeRows[InstallationPayload](rows)
}

type VesselPayload struct {
	ID        int64           `json:"id"`
	IMO       string          `json:"imo"`
	MMSI      string          `json:"mmsi"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype"`
	DWT       float64         `json:"dwt"`
	FlagISO2  string          `json:"flagIso2"`
	HomePort  string          `json:"homePort"`
	Commodity string          `json:"commodity"`
	Raw       json.RawMessage `json:"-"`
}

func (c *Client) Vessels(ctx context.Context) ([]VesselPayload, error) {
	var rows []json.RawMessage
	if err := c.doList(ctx, c.config.VesselsPath, nil, &rows); err != nil {
		return nil, err
	}
	vessels := make([]VesselPayload, 0, len(rows))
	for _, raw := range rows {
		var vessel VesselPayload
		if err := json.Unmarshal(raw, &vessel); err != nil {
			return nil, err
		}
		vessel.Raw = raw
		vessels = append(vessels, vessel)
	}
	return vessels, nil
}

func decodeRows[T any](rows []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, raw := range rows {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
