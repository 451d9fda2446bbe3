package store

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"fueltracker/internal/model"
)

const (
	defaultMaxOpenConns    = 7 // pool of 5 plus 2 overflow
	defaultMaxIdleConns    = 5
	defaultConnMaxIdleTime = 30 * time.Minute
	defaultConnMaxLifetime = 1800 * time.Second
)

// Store owns the database handle. All writes go through the upsert helper so
// repeated ingestion stays convergent on the table constraints.
type Store struct {
	db *gorm.DB
}

func Open(dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("store: dsn is required")
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(defaultMaxOpenConns)
	sqlDB.SetMaxIdleConns(defaultMaxIdleConns)
	sqlDB.SetConnMaxIdleTime(defaultConnMaxIdleTime)
	sqlDB.SetConnMaxLifetime(defaultConnMaxLifetime)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&model.Commodity{},
		&model.Country{},
		&model.Zone{},
		&model.Product{},
		&model.Installation{},
		&model.Company{},
		&model.Ship{},
		&model.ShipInsurer{},
		&model.ShipOwner{},
		&model.ShipManager{},
		&model.ShipFlag{},
		&model.RawTrade{},
		&model.SyncHistory{},
		&model.ComputedTrade{},
		&model.Price{},
		&model.Counter{},
	)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB exposes the handle for read-side queries.
func (s *Store) DB() *gorm.DB { return s.db }

// Transaction runs fn inside one database transaction.
func (s *Store) Transaction(fn func(tx *gorm.DB) error) error {
	return s.db.Transaction(fn)
}

// upsert inserts value, refreshing all non-key columns when the row already
// exists under the named key columns. A constraint violation is treated as a
// lost race and retried once; the second violation is logged and skipped.
func upsert(db *gorm.DB, value any, keyColumns ...string) error {
	columns := make([]clause.Column, len(keyColumns))
	for i, name := range keyColumns {
		columns[i] = clause.Column{Name: name}
	}
	conflict := clause.OnConflict{Columns: columns, UpdateAll: true}

	err := db.Clauses(conflict).Create(value).Error
	if err == nil {
		return nil
	}
	if !isConstraintViolation(err) {
		return err
	}
	if retryErr := db.Clauses(conflict).Create(value).Error; retryErr != nil {
		slog.Warn("store: upsert skipped after repeated constraint violation",
			"key_columns", strings.Join(keyColumns, ","), "err", retryErr)
		return nil
	}
	return nil
}

func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "constraint failed")
}
