package store

import (
	"fueltracker/internal/model"
)

// PricesFor returns the price curve rows for one (commodity, scenario),
// newest first so the lookup can take the most recent match.
func (s *Store) PricesFor(commodity, scenario string) ([]model.Price, error) {
	var rows []model.Price
	err := s.db.
		Where("commodity = ? AND scenario = ?", commodity, scenario).
		Order("date DESC").
		Find(&rows).Error
	return rows, err
}

func (s *Store) Scenarios() ([]string, error) {
	var scenarios []string
	err := s.db.Model(&model.Price{}).Distinct("scenario").Order("scenario").Pluck("scenario", &scenarios).Error
	return scenarios, err
}

// SeedPrices is the write path used by tests and local fixtures; production
// price rows come from the external pricing job.
func (s *Store) SeedPrices(rows []model.Price) error {
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		if rows[i].ScopeKey == "" {
			rows[i].ScopeKey = rows[i].ComputeScopeKey()
		}
	}
	return upsert(s.db, &rows, "date", "commodity", "scenario", "scope_key")
}

func (s *Store) UpsertCounters(rows []model.Counter) error {
	if len(rows) == 0 {
		return nil
	}
	return upsert(s.db, &rows, "date", "commodity", "destination_iso2", "scenario", "version")
}

func (s *Store) CounterRows(version model.CounterVersion, dateFrom, dateTo string) ([]model.Counter, error) {
	var rows []model.Counter
	q := s.db.Where("version = ?", version)
	if dateFrom != "" {
		q = q.Where("date >= ?", dateFrom)
	}
	if dateTo != "" {
		q = q.Where("date <= ?", dateTo)
	}
	err := q.Order("date, commodity, destination_iso2").Find(&rows).Error
	return rows, err
}
