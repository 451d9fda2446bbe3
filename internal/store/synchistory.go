package store

import (
	"time"

	"gorm.io/gorm/clause"

	"fueltracker/internal/model"
)

// UpsertSyncHistory records that the days were refreshed. On an existing row
// only last_updated moves: the compare outcome (is_valid, last_checked) is
// owned by MarkSyncChecked and survives re-ingestion.
func (s *Store) UpsertSyncHistory(rows []model.SyncHistory) error {
	if len(rows) == 0 {
		return nil
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "origin_iso2"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_updated"}),
	}).Create(&rows).Error
}

// MarkSyncChecked records the outcome of an aggregate compare for one day.
func (s *Store) MarkSyncChecked(originISO2, date string, valid bool, checkedAt time.Time) error {
	return s.db.Model(&model.SyncHistory{}).
		Where("origin_iso2 = ? AND date = ?", originISO2, date).
		Updates(map[string]any{"is_valid": valid, "last_checked": checkedAt}).Error
}

func (s *Store) SyncHistoryRange(originISO2, dateFrom, dateTo string) ([]model.SyncHistory, error) {
	var rows []model.SyncHistory
	err := s.db.
		Where("origin_iso2 = ?", originISO2).
		Where("date >= ? AND date <= ?", dateFrom, dateTo).
		Order("date").
		Find(&rows).Error
	return rows, err
}

// InvalidSyncDays returns the days whose last compare rejected the stored
// trades, for the historic re-fetch pass.
func (s *Store) InvalidSyncDays(origins []string) ([]model.SyncHistory, error) {
	var rows []model.SyncHistory
	q := s.db.Where("is_valid = ?", false)
	if len(origins) > 0 {
		q = q.Where("origin_iso2 IN ?", origins)
	}
	err := q.Order("origin_iso2, date").Find(&rows).Error
	return rows, err
}

// SyncValidity loads the (origin, date) -> is_valid map the trade computer
// mirrors into computed rows.
func (s *Store) SyncValidity() (map[string]bool, error) {
	var rows []model.SyncHistory
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	validity := make(map[string]bool, len(rows))
	for _, row := range rows {
		validity[row.OriginISO2+"|"+row.Date] = row.IsValid
	}
	return validity, nil
}
