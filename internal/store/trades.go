package store

import (
	"time"

	"fueltracker/internal/model"
)

const tradeBatchSize = 200

// UpsertRawTrades writes a batch of exploded trade rows, refreshing existing
// rows on the (trade_id, flow_id, product_id) key. Commits per batch so an
// interrupted run keeps its progress.
func (s *Store) UpsertRawTrades(trades []model.RawTrade) error {
	for start := 0; start < len(trades); start += tradeBatchSize {
		end := start + tradeBatchSize
		if end > len(trades) {
			end = len(trades)
		}
		batch := trades[start:end]
		if err := upsert(s.db, &batch, "trade_id", "flow_id", "product_id"); err != nil {
			return err
		}
	}
	return nil
}

// InvalidateStaleRawTrades retires rows the feed no longer returns: anything
// in the ingested (origin, date) range whose updated_on predates this run.
func (s *Store) InvalidateStaleRawTrades(originISO2, dateFrom, dateTo string, updateTime time.Time) (int64, error) {
	res := s.db.Model(&model.RawTrade{}).
		Where("origin_iso2 = ?", originISO2).
		Where("departure_date >= ? AND departure_date <= ?", dateFrom, dateTo).
		Where("updated_on < ?", updateTime).
		Where("is_valid = ?", true).
		Update("is_valid", false)
	return res.RowsAffected, res.Error
}

func (s *Store) RawTradesByOrigin(originISO2, dateFrom, dateTo string) ([]model.RawTrade, error) {
	var trades []model.RawTrade
	err := s.db.
		Where("origin_iso2 = ?", originISO2).
		Where("departure_date >= ? AND departure_date <= ?", dateFrom, dateTo).
		Order("departure_date").
		Find(&trades).Error
	return trades, err
}

// ValidRawTrades returns every valid raw trade, ordered for deterministic
// downstream passes.
func (s *Store) ValidRawTrades() ([]model.RawTrade, error) {
	var trades []model.RawTrade
	err := s.db.
		Where("is_valid = ?", true).
		Order("departure_date, trade_id, flow_id, product_id").
		Find(&trades).Error
	return trades, err
}

// DailyFactorSum is one (day, factor) tonnage bucket used by the
// reconciliation compare.
type DailyFactorSum struct {
	Date   string
	Factor string
	Tonne  float64
}

// DailyTonnesByDestination sums stored valid trades per day and arrival-zone
// country.
func (s *Store) DailyTonnesByDestination(originISO2, dateFrom, dateTo string) ([]DailyFactorSum, error) {
	var sums []DailyFactorSum
	err := s.db.Raw(`
		SELECT t.departure_date AS date,
		       COALESCE(NULLIF(z.country_iso2, ''), 'unknown') AS factor,
		       SUM(t.value_tonne) AS tonne
		FROM raw_trades t
		LEFT JOIN zones z ON z.id = t.arrival_zone_id
		WHERE t.origin_iso2 = ? AND t.is_valid = ?
		  AND t.departure_date >= ? AND t.departure_date <= ?
		GROUP BY t.departure_date, factor`,
		originISO2, true, dateFrom, dateTo).Scan(&sums).Error
	return sums, err
}

// DailyTonnesByProductGroup sums stored valid trades per day and product
// group.
func (s *Store) DailyTonnesByProductGroup(originISO2, dateFrom, dateTo string) ([]DailyFactorSum, error) {
	var sums []DailyFactorSum
	err := s.db.Raw(`
		SELECT t.departure_date AS date,
		       COALESCE(NULLIF(p.product_group, ''), 'unknown') AS factor,
		       SUM(t.value_tonne) AS tonne
		FROM raw_trades t
		LEFT JOIN products p ON p.id = t.product_id
		WHERE t.origin_iso2 = ? AND t.is_valid = ?
		  AND t.departure_date >= ? AND t.departure_date <= ?
		GROUP BY t.departure_date, factor`,
		originISO2, true, dateFrom, dateTo).Scan(&sums).Error
	return sums, err
}
