package order

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(lg *zap.Logger) Option {
	return func(s *Store) { s.lg = lg }
}

// WithTracer sets the tracer used for mutation spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Store) { s.tracer = t }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides order id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// Store owns the order collection and is its only writer. The collection is
// kept most-recent-first and every mutation is persisted to the slot before
// it becomes visible.
type Store struct {
	slot   Slot
	lg     *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
	newID  func() string

	mu     sync.RWMutex
	orders []Order
	ids    map[string]struct{}

	lmu       sync.RWMutex
	listeners map[int]Listener
	nextLID   int
}

// NewStore creates an empty Store persisting to slot. Call Load to read the
// existing collection.
func NewStore(slot Slot, opts ...Option) *Store {
	s := &Store{
		slot:      slot,
		lg:        zap.NewNop(),
		tracer:    noop.NewTracerProvider().Tracer(""),
		now:       time.Now,
		newID:     uuid.NewString,
		ids:       make(map[string]struct{}),
		listeners: make(map[int]Listener),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load replaces the in-memory collection with the slot contents. An
// unreadable or malformed slot yields an empty collection so the store stays
// usable; only context cancellation is returned as an error.
func (s *Store) Load(ctx context.Context) error {
	data, err := s.slot.Load(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.lg.Warn("Order slot unavailable, starting empty", zap.Error(err))
		data = nil
	}

	var orders []Order
	if len(data) > 0 {
		orders, err = DecodeOrders(data)
		if err != nil {
			s.lg.Warn("Order slot is malformed, starting empty", zap.Error(err))
			orders = nil
		}
	}

	// Ids are unique; later records repeating an id are dropped.
	ids := make(map[string]struct{}, len(orders))
	kept := orders[:0]
	for _, o := range orders {
		if _, dup := ids[o.ID]; dup {
			s.lg.Warn("Dropping duplicate order record", zap.String("order_id", o.ID), zap.String("status", string(o.Status)))
			continue
		}
		ids[o.ID] = struct{}{}
		kept = append(kept, o)
	}
	orders = kept

	s.mu.Lock()
	s.orders = orders
	s.ids = ids
	s.mu.Unlock()

	s.lg.Info("Orders loaded", zap.Int("count", len(orders)))
	return nil
}

// Flush writes the current collection to the slot.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.RLock()
	data := EncodeOrders(s.orders)
	s.mu.RUnlock()

	if err := s.slot.Save(ctx, data); err != nil {
		return errors.Wrap(err, "save orders")
	}
	return nil
}

// Subscribe registers l for committed events and returns a function that
// removes it.
func (s *Store) Subscribe(l Listener) (cancel func()) {
	s.lmu.Lock()
	id := s.nextLID
	s.nextLID++
	s.listeners[id] = l
	s.lmu.Unlock()

	return func() {
		s.lmu.Lock()
		delete(s.listeners, id)
		s.lmu.Unlock()
	}
}

func (s *Store) emit(ctx context.Context, ev Event) {
	s.lmu.RLock()
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.lmu.RUnlock()

	for _, l := range ls {
		l.OnOrderEvent(ctx, Event{Type: ev.Type, Order: ev.Order.Clone(), Previous: ev.Previous})
	}
}

// AddOrder creates a pending order from the draft, persists it and returns
// its id. Items and total are stored verbatim.
func (s *Store) AddOrder(ctx context.Context, d Draft) (_ string, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Add")
	defer func() { endSpan(span, rerr) }()

	if !d.PaymentMethod.Valid() {
		return "", errors.Wrapf(ErrInvalidPaymentMethod, "%q", d.PaymentMethod)
	}

	s.mu.Lock()
	id := s.newID()
	for _, taken := s.ids[id]; taken; _, taken = s.ids[id] {
		id = s.newID()
	}
	now := s.now().UTC()
	o := Order{
		ID:                id,
		StudentID:         d.StudentID,
		StudentName:       d.StudentName,
		StudentEmail:      d.StudentEmail,
		StudentRollNumber: d.StudentRollNumber,
		Items:             cloneItems(d.Items),
		Total:             d.Total,
		PaymentMethod:     d.PaymentMethod,
		Status:            StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	next := make([]Order, 0, len(s.orders)+1)
	next = append(next, o)
	next = append(next, s.orders...)
	if err := s.slot.Save(ctx, EncodeOrders(next)); err != nil {
		s.mu.Unlock()
		return "", errors.Wrap(err, "save orders")
	}
	s.orders = next
	s.ids[id] = struct{}{}
	s.mu.Unlock()

	span.SetAttributes(attribute.String("order.id", id))
	s.lg.Info("Order created",
		zap.String("order_id", id),
		zap.String("student_id", o.StudentID),
		zap.String("total", o.Total.String()),
	)
	s.emit(ctx, Event{Type: EventCreated, Order: o})
	return id, nil
}

// UpdateOrderStatus moves the order to status, enforcing the transition
// graph and the payload each edge requires.
func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status Status, p Payload) (_ Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.status", string(status)),
	))
	defer func() { endSpan(span, rerr) }()

	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return Order{}, errors.Wrapf(ErrNotFound, "%q", id)
	}
	prev := s.orders[idx]
	updated, err := Apply(prev, status, p, s.now().UTC())
	if err != nil {
		s.mu.Unlock()
		return Order{}, errors.Wrapf(err, "order %q", id)
	}

	next := slices.Clone(s.orders)
	next[idx] = updated
	if err := s.slot.Save(ctx, EncodeOrders(next)); err != nil {
		s.mu.Unlock()
		return Order{}, errors.Wrap(err, "save orders")
	}
	s.orders = next
	s.mu.Unlock()

	s.lg.Info("Order status changed",
		zap.String("order_id", id),
		zap.String("from", string(prev.Status)),
		zap.String("to", string(status)),
	)
	s.emit(ctx, Event{Type: EventStatusChanged, Order: updated, Previous: prev.Status})
	return updated.Clone(), nil
}

// GetOrder returns the order with the given id.
func (s *Store) GetOrder(id string) (Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return Order{}, errors.Wrapf(ErrNotFound, "%q", id)
	}
	return s.orders[idx].Clone(), nil
}

// GetStudentOrders returns the student's orders, most-recent-first.
func (s *Store) GetStudentOrders(studentID string) []Order {
	return s.filter(func(o *Order) bool { return o.StudentID == studentID })
}

// GetAllOrders returns every order, most-recent-first.
func (s *Store) GetAllOrders() []Order {
	return s.filter(func(*Order) bool { return true })
}

// ByStatus returns orders in the given status, most-recent-first.
func (s *Store) ByStatus(status Status) []Order {
	return s.filter(func(o *Order) bool { return o.Status == status })
}

// Pending returns the orders awaiting staff review.
func (s *Store) Pending() []Order {
	return s.ByStatus(StatusPending)
}

// PendingCount returns the number of pending orders.
func (s *Store) PendingCount() int {
	return s.Summary().Pending
}

// Summary counts orders per dashboard bucket.
func (s *Store) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum Summary
	for i := range s.orders {
		switch st := s.orders[i].Status; {
		case st == StatusPending:
			sum.Pending++
		case st.Active():
			sum.Active++
		case st == StatusCompleted:
			sum.Completed++
		case st == StatusRejected:
			sum.Rejected++
		}
	}
	return sum
}

// Import merges externally exported orders, keeping their ids and
// timestamps. Orders whose id is already present are skipped. It returns the
// number of orders added.
func (s *Store) Import(ctx context.Context, orders []Order) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := slices.Clone(s.orders)
	added := make(map[string]struct{})
	for _, o := range orders {
		if o.ID == "" {
			return 0, errors.New("import order: empty id")
		}
		if !o.Status.Valid() {
			return 0, errors.Errorf("import order %q: unknown status %q", o.ID, o.Status)
		}
		if _, ok := s.ids[o.ID]; ok {
			continue
		}
		if _, ok := added[o.ID]; ok {
			continue
		}
		added[o.ID] = struct{}{}
		next = append(next, o.Clone())
	}
	if len(added) == 0 {
		return 0, nil
	}

	slices.SortStableFunc(next, func(a, b Order) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if err := s.slot.Save(ctx, EncodeOrders(next)); err != nil {
		return 0, errors.Wrap(err, "save orders")
	}
	s.orders = next
	for id := range added {
		s.ids[id] = struct{}{}
	}
	s.lg.Info("Orders imported", zap.Int("added", len(added)), zap.Int("total", len(next)))
	return len(added), nil
}

func (s *Store) filter(keep func(*Order) bool) []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Order, 0)
	for i := range s.orders {
		if keep(&s.orders[i]) {
			out = append(out, s.orders[i].Clone())
		}
	}
	return out
}

// indexOf must be called with mu held.
func (s *Store) indexOf(id string) int {
	for i := range s.orders {
		if s.orders[i].ID == id {
			return i
		}
	}
	return -1
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
