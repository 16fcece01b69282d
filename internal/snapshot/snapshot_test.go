package snapshot

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/canteen-orders/internal/domain/order"
)

func newOrder(id string, created time.Time) order.Order {
	return order.Order{
		ID:            id,
		StudentID:     "s-" + id,
		Items:         []order.LineItem{{Name: "Samosa", Price: decimal.NewFromInt(12), Quantity: 2}},
		Total:         decimal.NewFromInt(24),
		PaymentMethod: order.PaymentCash,
		Status:        order.StatusPending,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func ids(orders []order.Order) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.ID)
	}
	return out
}

func TestWriteRead(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	plain := filepath.Join(dir, "a.json")
	gz := filepath.Join(dir, "b.json.gz")
	require.NoError(t, Write(ctx, plain, []order.Order{newOrder("a1", base), newOrder("a2", base)}))
	require.NoError(t, Write(ctx, gz, []order.Order{newOrder("b1", base)}))

	batches, err := Read(ctx, zap.NewNop(), []string{plain, gz})
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, []string{"a1", "a2"}, ids(batches[0]))
	assert.Equal(t, []string{"b1"}, ids(batches[1]))
	assert.True(t, decimal.NewFromInt(24).Equal(batches[1][0].Total))
}

func TestRead_Errors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	_, err := Read(ctx, zap.NewNop(), []string{filepath.Join(dir, "missing.json")})
	require.Error(t, err)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, Write(ctx, empty, nil))
	_, err = Read(ctx, zap.NewNop(), []string{empty})
	require.NoError(t, err, "an empty collection is a valid snapshot")
}

func TestFresh(t *testing.T) {
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	known := []order.Order{newOrder("k1", base), newOrder("k2", base)}
	batches := [][]order.Order{
		{newOrder("k1", base), newOrder("n1", base)},
		{newOrder("n1", base), newOrder("n2", base), newOrder("k2", base)},
	}

	fresh, skipped := Fresh(known, batches)
	assert.Equal(t, []string{"n1", "n2"}, ids(fresh))
	assert.Equal(t, 3, skipped)

	none, skipped := Fresh(nil, nil)
	assert.Empty(t, none)
	assert.Zero(t, skipped)
}

func TestFresh_Large(t *testing.T) {
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	var known, batch []order.Order
	for i := range 5000 {
		known = append(known, newOrder(fmt.Sprintf("k%d", i), base))
		batch = append(batch, newOrder(fmt.Sprintf("n%d", i), base))
	}

	fresh, skipped := Fresh(known, [][]order.Order{batch})
	assert.Len(t, fresh, 5000, "bloom false positives never drop new orders")
	assert.Zero(t, skipped)
}

func TestImportIntoStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	path := filepath.Join(dir, "export.json.gz")
	require.NoError(t, Write(ctx, path, []order.Order{
		newOrder("old", base),
		newOrder("new", base.Add(time.Hour)),
	}))

	store := order.NewStore(&memSlot{})
	batches, err := Read(ctx, zap.NewNop(), []string{path})
	require.NoError(t, err)
	fresh, _ := Fresh(store.GetAllOrders(), batches)
	added, err := store.Import(ctx, fresh)
	require.NoError(t, err)

	assert.Equal(t, 2, added)
	assert.Equal(t, []string{"new", "old"}, ids(store.GetAllOrders()))
}

type memSlot struct{ data []byte }

func (m *memSlot) Load(context.Context) ([]byte, error) { return m.data, nil }

func (m *memSlot) Save(_ context.Context, data []byte) error {
	m.data = data
	return nil
}
