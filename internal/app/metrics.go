package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/canteen-orders/internal/domain/notify"
	"github.com/xenking/canteen-orders/internal/domain/order"
)

// Metrics counts order lifecycle activity.
type Metrics struct {
	created       metric.Int64Counter
	transitions   metric.Int64Counter
	notifications metric.Int64Counter
}

// NewMetrics registers the order instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.created, err = meter.Int64Counter("canteen.orders.created",
		metric.WithDescription("Orders placed"),
	); err != nil {
		return nil, errors.Wrap(err, "orders created counter")
	}
	if m.transitions, err = meter.Int64Counter("canteen.orders.transitions",
		metric.WithDescription("Order status transitions"),
	); err != nil {
		return nil, errors.Wrap(err, "transitions counter")
	}
	if m.notifications, err = meter.Int64Counter("canteen.notifications",
		metric.WithDescription("New-order notifications raised"),
	); err != nil {
		return nil, errors.Wrap(err, "notifications counter")
	}
	return &m, nil
}

// OnOrderEvent implements order.Listener.
func (m *Metrics) OnOrderEvent(ctx context.Context, ev order.Event) {
	switch ev.Type {
	case order.EventCreated:
		m.created.Add(ctx, 1, metric.WithAttributes(
			attribute.String("payment_method", string(ev.Order.PaymentMethod)),
		))
	case order.EventStatusChanged:
		m.transitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("from", string(ev.Previous)),
			attribute.String("to", string(ev.Order.Status)),
		))
	}
}

// OnNotify counts a raised notification.
func (m *Metrics) OnNotify(notify.Notification) {
	m.notifications.Add(context.Background(), 1)
}
