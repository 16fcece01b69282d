// Package snapshot reads and writes exported order collections.
package snapshot

import (
	"context"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/canteen-orders/internal/domain/order"
	"github.com/xenking/canteen-orders/internal/storage/file"
)

const bloomFPR = 0.001

// Read decodes every snapshot file concurrently. Files ending in ".gz" are
// pgzip-compressed. The result keeps the order of paths.
func Read(ctx context.Context, lg *zap.Logger, paths []string) ([][]order.Order, error) {
	batches := make([][]order.Order, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			data, err := file.NewSlot(path).Load(ctx)
			if err != nil {
				return errors.Wrapf(err, "read %s", path)
			}
			if data == nil {
				return errors.Errorf("read %s: file does not exist", path)
			}
			orders, err := order.DecodeOrders(data)
			if err != nil {
				return errors.Wrapf(err, "decode %s", path)
			}
			lg.Info("Snapshot read", zap.String("path", path), zap.Int("orders", len(orders)))
			batches[i] = orders
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return batches, nil
}

// Write stores orders as a snapshot at path, compressed when it ends in ".gz".
func Write(ctx context.Context, path string, orders []order.Order) error {
	if err := file.NewSlot(path).Save(ctx, order.EncodeOrders(orders)); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

// Fresh returns the orders of batches whose ids are neither in known nor
// repeated across batches, in batch order. A bloom filter answers most
// lookups; only its positives are confirmed against the exact id set.
func Fresh(known []order.Order, batches [][]order.Order) (fresh []order.Order, skipped int) {
	total := len(known)
	for _, b := range batches {
		total += len(b)
	}
	if total == 0 {
		return nil, 0
	}

	filter := bloom.NewWithEstimates(uint(total), bloomFPR)
	seen := make(map[string]struct{}, total)
	add := func(id string) {
		filter.AddString(id)
		seen[id] = struct{}{}
	}
	for _, o := range known {
		add(o.ID)
	}

	for _, b := range batches {
		for _, o := range b {
			if filter.TestString(o.ID) {
				if _, dup := seen[o.ID]; dup {
					skipped++
					continue
				}
			}
			add(o.ID)
			fresh = append(fresh, o)
		}
	}
	return fresh, skipped
}
