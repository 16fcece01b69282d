// Package notify surfaces newly arrived pending orders to staff.
//
// The Watcher compares the pending-order count at each tick with the count
// seen at the previous tick. A rise from a positive baseline raises a
// transient notification; a rise from zero does not, so a cold start with
// orders already waiting stays quiet.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultDuration is how long a notification stays visible.
const DefaultDuration = 5 * time.Second

// Notification is a transient "new order received" signal.
type Notification struct {
	Pending  int
	Previous int
	RaisedAt time.Time
}

// New reports how many orders arrived since the previous tick.
func (n Notification) New() int { return n.Pending - n.Previous }

// Alert is a best-effort side effect of a notification, such as a sound.
type Alert interface {
	Play(ctx context.Context, n Notification) error
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDuration sets how long a notification stays visible.
func WithDuration(d time.Duration) Option {
	return func(w *Watcher) { w.duration = d }
}

// WithAlert sets the alert played on every notification.
func WithAlert(a Alert) Option {
	return func(w *Watcher) { w.alert = a }
}

// WithLogger sets the watcher logger.
func WithLogger(lg *zap.Logger) Option {
	return func(w *Watcher) { w.lg = lg }
}

// WithOnNotify registers a callback invoked synchronously on every
// notification, after the state is updated.
func WithOnNotify(f func(Notification)) Option {
	return func(w *Watcher) { w.onNotify = f }
}

// Watcher detects increases of the pending-order count between ticks.
type Watcher struct {
	duration time.Duration
	alert    Alert
	lg       *zap.Logger
	onNotify func(Notification)
	now      func() time.Time

	mu       sync.Mutex
	previous int
	current  *Notification
	timer    *time.Timer
	gen      uint64
}

// NewWatcher creates a Watcher with a zero baseline.
func NewWatcher(opts ...Option) *Watcher {
	w := &Watcher{
		duration: DefaultDuration,
		lg:       zap.NewNop(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Observe records the pending count for this tick and reports whether a
// notification was raised. The count is remembered whatever the outcome.
func (w *Watcher) Observe(pending int) bool {
	w.mu.Lock()
	previous := w.previous
	w.previous = pending
	if pending <= previous || previous == 0 {
		w.mu.Unlock()
		return false
	}

	n := Notification{Pending: pending, Previous: previous, RaisedAt: w.now()}
	w.current = &n
	w.gen++
	gen := w.gen
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.duration, func() { w.clear(gen) })
	w.mu.Unlock()

	w.lg.Info("New order received", zap.Int("pending", pending), zap.Int("new", n.New()))
	if w.onNotify != nil {
		w.onNotify(n)
	}
	if w.alert != nil {
		go w.play(n)
	}
	return true
}

// Current returns the visible notification, if any.
func (w *Watcher) Current() (Notification, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current == nil {
		return Notification{}, false
	}
	return *w.current, true
}

// Previous returns the pending count seen at the last tick.
func (w *Watcher) Previous() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.previous
}

// Stop cancels a pending auto-clear and drops the visible notification.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.current = nil
}

// clear drops the notification unless a newer one replaced it.
func (w *Watcher) clear(gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.gen == gen {
		w.current = nil
		w.timer = nil
	}
}

// play runs the alert; failures never reach the caller.
func (w *Watcher) play(n Notification) {
	defer func() {
		if rec := recover(); rec != nil {
			w.lg.Debug("Alert panicked", zap.Any("panic", rec))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), w.duration)
	defer cancel()

	if err := w.alert.Play(ctx, n); err != nil {
		w.lg.Debug("Alert failed", zap.Error(err))
	}
}
