// Package sqlite implements an order slot on a local SQLite database via GORM.
package sqlite

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/xenking/canteen-orders/internal/domain/order"
)

// DefaultName is the slot name used when none is configured.
const DefaultName = "canteen_orders"

var _ order.Slot = (*Slot)(nil)

// Record is a named blob in the slots table.
type Record struct {
	Name      string `gorm:"primaryKey"`
	Value     []byte `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName overrides the GORM default.
func (Record) TableName() string { return "slots" }

// Slot stores the order collection as one row of the slots table.
type Slot struct {
	db   *gorm.DB
	name string
}

// Open opens the SQLite database at dsn and migrates the slots table.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, errors.Wrap(err, "migrate slots")
	}
	return db, nil
}

// NewSlot returns the slot called name in db. An empty name selects DefaultName.
func NewSlot(db *gorm.DB, name string) *Slot {
	if name == "" {
		name = DefaultName
	}
	return &Slot{db: db, name: name}
}

// Load returns the slot value; a missing row is an empty slot.
func (s *Slot) Load(ctx context.Context) ([]byte, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("name = ?", s.name).Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "load slot %q", s.name)
	}
	return rec.Value, nil
}

// Save upserts the slot value.
func (s *Slot) Save(ctx context.Context, data []byte) error {
	rec := Record{Name: s.name, Value: data, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
	if err != nil {
		return errors.Wrapf(err, "save slot %q", s.name)
	}
	return nil
}

// Ping checks the underlying connection.
func (s *Slot) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "sql db")
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection.
func (s *Slot) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "sql db")
	}
	return sqlDB.Close()
}
