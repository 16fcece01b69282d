package notify

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/canteen-orders/internal/domain/order"
)

// --- Mock implementations ---

type chanAlert struct {
	played chan Notification
	err    error
	panic  bool
}

func newChanAlert() *chanAlert {
	return &chanAlert{played: make(chan Notification, 16)}
}

func (a *chanAlert) Play(_ context.Context, n Notification) error {
	a.played <- n
	if a.panic {
		panic("speaker unplugged")
	}
	return a.err
}

type memSlot struct {
	mu   sync.Mutex
	data []byte
}

func (m *memSlot) Load(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data, nil
}

func (m *memSlot) Save(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = data
	return nil
}

// --- Tests ---

func TestWatcher_Scenario(t *testing.T) {
	w := NewWatcher(WithDuration(time.Minute))
	defer w.Stop()

	steps := []struct {
		pending int
		want    bool
	}{
		{pending: 2, want: false}, // first tick from a zero baseline
		{pending: 3, want: true},
		{pending: 0, want: false},
		{pending: 1, want: false}, // rise from zero is suppressed
		{pending: 2, want: true},
		{pending: 2, want: false},
		{pending: 1, want: false},
		{pending: 3, want: true},
	}

	for i, step := range steps {
		assert.Equal(t, step.want, w.Observe(step.pending), "step %d (pending=%d)", i, step.pending)
		assert.Equal(t, step.pending, w.Previous(), "step %d", i)
	}
}

func TestWatcher_ReRaiseAfterDropToZero(t *testing.T) {
	w := NewWatcher(WithDuration(time.Minute))
	defer w.Stop()

	w.Observe(3)
	assert.False(t, w.Observe(0))
	assert.False(t, w.Observe(3))
	assert.True(t, w.Observe(4))
}

func TestWatcher_NotificationAutoClears(t *testing.T) {
	w := NewWatcher(WithDuration(30 * time.Millisecond))
	defer w.Stop()

	w.Observe(1)
	_, ok := w.Current()
	require.False(t, ok)

	require.True(t, w.Observe(3))
	n, ok := w.Current()
	require.True(t, ok)
	assert.Equal(t, 3, n.Pending)
	assert.Equal(t, 1, n.Previous)
	assert.Equal(t, 2, n.New())

	assert.Eventually(t, func() bool {
		_, ok := w.Current()
		return !ok
	}, time.Second, 5*time.Millisecond)

	// The baseline survives the clear.
	assert.Equal(t, 3, w.Previous())
}

func TestWatcher_NewerNotificationRestartsWindow(t *testing.T) {
	w := NewWatcher(WithDuration(80 * time.Millisecond))
	defer w.Stop()

	w.Observe(1)
	require.True(t, w.Observe(2))
	time.Sleep(50 * time.Millisecond)
	require.True(t, w.Observe(3))
	time.Sleep(50 * time.Millisecond)

	n, ok := w.Current()
	require.True(t, ok, "first timer must not clear the newer notification")
	assert.Equal(t, 3, n.Pending)

	assert.Eventually(t, func() bool {
		_, ok := w.Current()
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestWatcher_AlertFailuresAreSwallowed(t *testing.T) {
	tests := []struct {
		name  string
		alert *chanAlert
	}{
		{name: "error", alert: &chanAlert{played: make(chan Notification, 1), err: errors.New("no audio device")}},
		{name: "panic", alert: &chanAlert{played: make(chan Notification, 1), panic: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWatcher(WithAlert(tt.alert), WithDuration(time.Minute))
			defer w.Stop()

			w.Observe(1)
			require.True(t, w.Observe(2))

			select {
			case n := <-tt.alert.played:
				assert.Equal(t, 2, n.Pending)
			case <-time.After(time.Second):
				t.Fatal("alert was not played")
			}

			// The watcher keeps working after a failed alert.
			require.True(t, w.Observe(3))
		})
	}
}

func TestWatcher_OnNotify(t *testing.T) {
	var got []Notification
	w := NewWatcher(WithDuration(time.Minute), WithOnNotify(func(n Notification) {
		got = append(got, n)
	}))
	defer w.Stop()

	w.Observe(1)
	w.Observe(2)
	w.Observe(0)
	w.Observe(5)

	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Pending)
}

func TestWatcher_ListenerFollowsStore(t *testing.T) {
	store := order.NewStore(&memSlot{})
	alert := newChanAlert()
	w := NewWatcher(WithAlert(alert), WithDuration(time.Minute))
	defer w.Stop()
	store.Subscribe(w.Listener(store))

	ctx := context.Background()
	draft := order.Draft{
		StudentID:     "s1",
		Items:         []order.LineItem{{Name: "Idli", Price: decimal.NewFromInt(30), Quantity: 1}},
		Total:         decimal.NewFromInt(30),
		PaymentMethod: order.PaymentCash,
	}

	first, err := store.AddOrder(ctx, draft)
	require.NoError(t, err)
	_, ok := w.Current()
	assert.False(t, ok, "first pending order after a zero baseline stays quiet")

	_, err = store.AddOrder(ctx, draft)
	require.NoError(t, err)
	_, ok = w.Current()
	assert.True(t, ok)

	select {
	case n := <-alert.played:
		assert.Equal(t, 2, n.Pending)
	case <-time.After(time.Second):
		t.Fatal("alert was not played")
	}

	// Accepting an order lowers the count without a notification.
	_, err = store.UpdateOrderStatus(ctx, first, order.StatusAccepted, order.Payload{PreparationTime: new(int)})
	require.ErrorIs(t, err, order.ErrMissingPreparationTime)
	minutes := 10
	_, err = store.UpdateOrderStatus(ctx, first, order.StatusAccepted, order.Payload{PreparationTime: &minutes})
	require.NoError(t, err)
	assert.Equal(t, 1, w.Previous())
}

func TestBellAlert(t *testing.T) {
	var buf bytes.Buffer
	a := NewBellAlert(&buf)

	require.NoError(t, a.Play(context.Background(), Notification{Pending: 2, Previous: 1}))
	assert.Equal(t, "\a", buf.String())
}

func TestLogAlert(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	a := NewLogAlert(zap.New(core))

	require.NoError(t, a.Play(context.Background(), Notification{Pending: 5, Previous: 3}))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, int64(5), entries[0].ContextMap()["pending"])
	assert.Equal(t, int64(2), entries[0].ContextMap()["new"])
}

func TestAlerts_JoinsFailures(t *testing.T) {
	var buf bytes.Buffer
	failing := &chanAlert{played: make(chan Notification, 1), err: errors.New("muted")}
	as := Alerts{failing, NewBellAlert(&buf)}

	err := as.Play(context.Background(), Notification{Pending: 2, Previous: 1})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "muted")
	assert.Equal(t, "\a", buf.String(), "later alerts still play")
}
