package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/canteen-orders/internal/domain/order"
)

// DefaultName is the slot name used when none is configured.
const DefaultName = "canteen_orders"

var _ order.Slot = (*Slot)(nil)

const (
	loadSlot = `SELECT value FROM order_slots WHERE name = $1`

	saveSlot = `
INSERT INTO order_slots (name, value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`

	completedRevenue = `
SELECT COALESCE(SUM((o->>'total')::numeric), 0)
FROM order_slots, jsonb_array_elements(value) AS o
WHERE name = $1 AND o->>'status' = 'completed'`
)

// Slot stores the order collection as one JSONB row of order_slots.
type Slot struct {
	pool *pgxpool.Pool
	name string
}

// NewSlot returns the slot called name. An empty name selects DefaultName.
func NewSlot(pool *pgxpool.Pool, name string) *Slot {
	if name == "" {
		name = DefaultName
	}
	return &Slot{pool: pool, name: name}
}

// Load returns the slot value; a missing row is an empty slot.
func (s *Slot) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	if err := s.pool.QueryRow(ctx, loadSlot, s.name).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "load slot %q", s.name)
	}
	return data, nil
}

// Save upserts the slot value.
func (s *Slot) Save(ctx context.Context, data []byte) error {
	if _, err := s.pool.Exec(ctx, saveSlot, s.name, data); err != nil {
		return errors.Wrapf(err, "save slot %q", s.name)
	}
	return nil
}

// CompletedRevenue sums the totals of completed orders in the slot.
func (s *Slot) CompletedRevenue(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := s.pool.QueryRow(ctx, completedRevenue, s.name).Scan(&total); err != nil {
		return decimal.Zero, errors.Wrapf(err, "revenue of slot %q", s.name)
	}
	return total, nil
}
