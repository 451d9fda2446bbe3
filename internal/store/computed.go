package store

import (
	"fueltracker/internal/model"
)

func (s *Store) UpsertComputedTrades(trades []model.ComputedTrade) error {
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

func (s *Store) ValidComputedTrades() ([]model.ComputedTrade, error) {
	var trades []model.ComputedTrade
	err := s.db.
		Where("is_valid = ?", true).
		Order("departure_date, trade_id, flow_id, product_id").
		Find(&trades).Error
	return trades, err
}

// ValidComputedTradesRange returns valid computed rows departing within the
// inclusive day range. Empty bounds leave that side open.
func (s *Store) ValidComputedTradesRange(dateFrom, dateTo string) ([]model.ComputedTrade, error) {
	q := s.db.Where("is_valid = ?", true)
	if dateFrom != "" {
		q = q.Where("departure_date >= ?", dateFrom)
	}
	if dateTo != "" {
		q = q.Where("departure_date <= ?", dateTo)
	}
	var trades []model.ComputedTrade
	err := q.Order("departure_date, trade_id, flow_id, product_id").Find(&trades).Error
	return trades, err
}

// DeleteOutdatedComputedTrades removes computed rows whose raw source row has
// been retired or deleted.
func (s *Store) DeleteOutdatedComputedTrades() (int64, error) {
	res := s.db.Exec(`
		DELETE FROM computed_trades
		WHERE NOT EXISTS (
			SELECT 1 FROM raw_trades r
			WHERE r.trade_id = computed_trades.trade_id
			  AND r.flow_id = computed_trades.flow_id
			  AND r.product_id = computed_trades.product_id
			  AND r.is_valid = ?
		)`, true)
	return res.RowsAffected, res.Error
}
