package store

import (
	"gorm.io/gorm"

	"fueltracker/internal/model"
)

// WithTx returns a view of the store bound to the given transaction so
// per-ship writes commit atomically.
func (s *Store) WithTx(tx *gorm.DB) *Store { return &Store{db: tx} }

func (s *Store) UpsertShips(ships []model.Ship) error {
	if len(ships) == 0 {
		return nil
	}
	return upsert(s.db, &ships, "imo")
}

func (s *Store) AllShips() ([]model.Ship, error) {
	var ships []model.Ship
	err := s.db.Order("imo").Find(&ships).Error
	return ships, err
}

func (s *Store) InsurersByShip(imo string) ([]model.ShipInsurer, error) {
	var rows []model.ShipInsurer
	err := s.db.Where("ship_imo = ?", imo).Order("date_from_equasis").Find(&rows).Error
	return rows, err
}

// AllInsurers returns every insurer row grouped by ship, ordered by the
// equasis start date with open-ended rows first.
func (s *Store) AllInsurers() (map[string][]model.ShipInsurer, error) {
	var rows []model.ShipInsurer
	if err := s.db.Order("ship_imo, date_from_equasis").Find(&rows).Error; err != nil {
		return nil, err
	}
	byShip := make(map[string][]model.ShipInsurer)
	for _, row := range rows {
		byShip[row.ShipIMO] = append(byShip[row.ShipIMO], row)
	}
	return byShip, nil
}

func (s *Store) SaveInsurer(row *model.ShipInsurer) error {
	if row.ID == 0 {
		return s.db.Create(row).Error
	}
	return s.db.Save(row).Error
}

// AllOwners returns the owner history grouped by ship for the attribution
// pass.
func (s *Store) AllOwners() (map[string][]model.ShipOwner, error) {
	var rows []model.ShipOwner
	if err := s.db.Order("ship_imo, date_from").Find(&rows).Error; err != nil {
		return nil, err
	}
	byShip := make(map[string][]model.ShipOwner)
	for _, row := range rows {
		byShip[row.ShipIMO] = append(byShip[row.ShipIMO], row)
	}
	return byShip, nil
}

func (s *Store) AllFlags() (map[string][]model.ShipFlag, error) {
	var rows []model.ShipFlag
	if err := s.db.Order("ship_imo, first_seen").Find(&rows).Error; err != nil {
		return nil, err
	}
	byShip := make(map[string][]model.ShipFlag)
	for _, row := range rows {
		byShip[row.ShipIMO] = append(byShip[row.ShipIMO], row)
	}
	return byShip, nil
}

func (s *Store) OwnersByShip(imo string) ([]model.ShipOwner, error) {
	var rows []model.ShipOwner
	err := s.db.Where("ship_imo = ?", imo).Order("date_from").Find(&rows).Error
	return rows, err
}

func (s *Store) UpsertOwner(row *model.ShipOwner) error {
	return upsert(s.db, row, "ship_imo", "company_raw_name", "date_from")
}

func (s *Store) ManagersByShip(imo string) ([]model.ShipManager, error) {
	var rows []model.ShipManager
	err := s.db.Where("ship_imo = ?", imo).Order("date_from").Find(&rows).Error
	return rows, err
}

func (s *Store) UpsertManager(row *model.ShipManager) error {
	return upsert(s.db, row, "ship_imo", "company_raw_name", "date_from")
}

func (s *Store) FlagsByShip(imo string) ([]model.ShipFlag, error) {
	var rows []model.ShipFlag
	err := s.db.Where("ship_imo = ?", imo).Order("first_seen").Find(&rows).Error
	return rows, err
}

func (s *Store) UpsertFlag(row *model.ShipFlag) error {
	return upsert(s.db, row, "ship_imo", "flag_iso2")
}

func (s *Store) AllCompanies() ([]model.Company, error) {
	var rows []model.Company
	err := s.db.Order("id").Find(&rows).Error
	return rows, err
}

func (s *Store) CompanyByID(id int64) (*model.Company, error) {
	var row model.Company
	err := s.db.First(&row, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Store) CreateCompany(row *model.Company) error {
	return s.db.Create(row).Error
}

func (s *Store) SaveCompany(row *model.Company) error {
	return s.db.Save(row).Error
}
