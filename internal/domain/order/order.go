package order

import (
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusPreparing, StatusReady, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// Active reports whether the order is accepted but not yet handed over.
func (s Status) Active() bool {
	return s == StatusAccepted || s == StatusPreparing || s == StatusReady
}

// PaymentMethod records how the student intends to pay. It is never verified.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentGPay PaymentMethod = "gpay"
	PaymentQR   PaymentMethod = "qr"
)

// Valid reports whether m is one of the accepted payment methods.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentGPay || m == PaymentQR
}

// LineItem is a snapshot of a menu item as it was in the cart at checkout.
type LineItem struct {
	MenuItemID     string
	Name           string
	Price          decimal.Decimal
	Quantity       int
	Customizations []string
}

// Order is a submitted cart tracked through the status lifecycle.
type Order struct {
	ID                string
	StudentID         string
	StudentName       string
	StudentEmail      string
	StudentRollNumber string
	Items             []LineItem
	Total             decimal.Decimal
	PaymentMethod     PaymentMethod
	Status            Status
	PreparationTime   *int
	RejectionReason   string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Clone returns a deep copy of o, so callers can never alias the store's items.
func (o Order) Clone() Order {
	c := o
	c.Items = cloneItems(o.Items)
	if o.PreparationTime != nil {
		v := *o.PreparationTime
		c.PreparationTime = &v
	}
	return c
}

// cloneItems deep-copies items in their persisted shape: the list is never
// nil and empty customizations are nil, so a stored order decodes back to an
// identical value.
func cloneItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	for i, it := range items {
		if len(it.Customizations) == 0 {
			it.Customizations = nil
		} else {
			it.Customizations = slices.Clone(it.Customizations)
		}
		out[i] = it
	}
	return out
}

// Draft is the checkout payload handed over by the cart builder.
type Draft struct {
	StudentID         string
	StudentName       string
	StudentEmail      string
	StudentRollNumber string
	Items             []LineItem
	Total             decimal.Decimal
	PaymentMethod     PaymentMethod
}

// Summary counts orders per dashboard bucket.
type Summary struct {
	Pending   int
	Active    int
	Completed int
	Rejected  int
}

// Slot is a single named entry in a durable key-value medium that holds the
// serialized order collection. Load returns nil data when the slot is empty.
type Slot interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// EventType identifies a store change.
type EventType string

const (
	EventCreated       EventType = "created"
	EventStatusChanged EventType = "status_changed"
)

// Event describes a committed store change. Previous is empty for EventCreated.
type Event struct {
	Type     EventType
	Order    Order
	Previous Status
}

// Listener receives committed store events.
type Listener interface {
	OnOrderEvent(ctx context.Context, ev Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ctx context.Context, ev Event)

// OnOrderEvent calls f(ctx, ev).
func (f ListenerFunc) OnOrderEvent(ctx context.Context, ev Event) { f(ctx, ev) }
