// Package refdata holds the static reference datasets: commodities with
// their equivalences and groupings, countries with regional sets, and the
// origin-area labels for known export zones. The datasets are compiled in and
// replace their tables atomically; nothing writes them during the update loop.
package refdata

import (
	"embed"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"fueltracker/internal/model"
)

//go:embed assets/commodities.csv assets/countries.csv assets/zone_areas.csv
var assets embed.FS

// KplerCommodityID derives the local commodity id for a feed commodity or
// group name. This is the only place the derivation lives; the Condensate /
// Clean Condensate split is decided in commodities.csv, not here.
func KplerCommodityID(name string) string {
	id := strings.TrimSpace(name)
	id = strings.ReplaceAll(id, " /", "__")
	id = strings.ReplaceAll(id, "/", "__")
	id = strings.ReplaceAll(id, " ", "_")
	return "kpler_" + strings.ToLower(id)
}

func Commodities() ([]model.Commodity, error) {
	records, err := readAsset("assets/commodities.csv")
	if err != nil {
		return nil, err
	}
	rows := make([]model.Commodity, 0, len(records))
	for _, rec := range records {
		if len(rec) < 8 {
			return nil, fmt.Errorf("refdata: short commodity record: %v", rec)
		}
		rows = append(rows, model.Commodity{
			ID:                  rec[0],
			Name:                rec[1],
			EquivalentID:        rec[2],
			Group:               model.CommodityGroup(rec[3]),
			PricingCommodity:    rec[4],
			GroupingDefault:     rec[5],
			GroupingSplitGas:    rec[6],
			GroupingSplitGasOil: rec[7],
		})
	}
	return rows, nil
}

func Countries() ([]model.Country, error) {
	records, err := readAsset("assets/countries.csv")
	if err != nil {
		return nil, err
	}
	rows := make([]model.Country, 0, len(records))
	for _, rec := range records {
		if len(rec) < 5 {
			return nil, fmt.Errorf("refdata: short country record: %v", rec)
		}
		rows = append(rows, model.Country{
			ISO2:     strings.ToUpper(rec[0]),
			Name:     rec[1],
			AltNames: splitSet(rec[2]),
			Region:   rec[3],
			Regions:  splitSet(rec[4]),
		})
	}
	return rows, nil
}

// ZoneAreas maps known export zone names to their origin-area label
// (Arctic, Baltic, Pacific, Black Sea, Caspian).
func ZoneAreas() (map[string]string, error) {
	records, err := readAsset("assets/zone_areas.csv")
	if err != nil {
		return nil, err
	}
	areas := make(map[string]string, len(records))
	for _, rec := range records {
		if len(rec) < 2 {
			continue
		}
		areas[strings.ToLower(strings.TrimSpace(rec[0]))] = rec[1]
	}
	return areas, nil
}

func readAsset(name string) ([][]string, error) {
	f, err := assets.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var records [][]string
	first := true
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("refdata: %s: %w", name, err)
		}
		if first {
			first = false
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func splitSet(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ";")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
