package store

import (
	"gorm.io/gorm"

	"fueltracker/internal/model"
)

// ReplaceCommodities swaps the commodity reference table atomically.
func (s *Store) ReplaceCommodities(rows []model.Commodity) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&model.Commodity{}).Error; err != nil {
			return err
		}
		return tx.Create(&rows).Error
	})
}

func (s *Store) ReplaceCountries(rows []model.Country) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&model.Country{}).Error; err != nil {
			return err
		}
		return tx.Create(&rows).Error
	})
}

func (s *Store) AllCommodities() ([]model.Commodity, error) {
	var rows []model.Commodity
	err := s.db.Find(&rows).Error
	return rows, err
}

func (s *Store) AllCountries() ([]model.Country, error) {
	var rows []model.Country
	err := s.db.Find(&rows).Error
	return rows, err
}

func (s *Store) AllZones() ([]model.Zone, error) {
	var rows []model.Zone
	err := s.db.Find(&rows).Error
	return rows, err
}

func (s *Store) AllProducts() ([]model.Product, error) {
	var rows []model.Product
	err := s.db.Find(&rows).Error
	return rows, err
}

// UpsertZones is also used to stub zones the feed references before the next
// full reference pull.
func (s *Store) UpsertZones(rows []model.Zone) error {
	if len(rows) == 0 {
		return nil
	}
	return upsert(s.db, &rows, "id")
}

func (s *Store) UpsertProducts(rows []model.Product) error {
	if len(rows) == 0 {
		return nil
	}
	return upsert(s.db, &rows, "id")
}

func (s *Store) UpsertInstallations(rows []model.Installation) error {
	if len(rows) == 0 {
		return nil
	}
	return upsert(s.db, &rows, "id")
}
