package notify

import (
	"context"

	"github.com/xenking/canteen-orders/internal/domain/order"
)

// PendingCounter reports the current number of pending orders.
type PendingCounter interface {
	PendingCount() int
}

// Tick observes the current pending count once.
func (w *Watcher) Tick(c PendingCounter) bool {
	return w.Observe(c.PendingCount())
}

// Listener returns an order.Listener that ticks the watcher after every
// committed store event, so detection follows changes to the pending set
// instead of polling.
func (w *Watcher) Listener(c PendingCounter) order.Listener {
	return order.ListenerFunc(func(_ context.Context, _ order.Event) {
		w.Tick(c)
	})
}
