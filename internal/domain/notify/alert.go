package notify

import (
	"context"
	"io"
	"sync"

	"github.com/go-faster/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// bell is the ASCII BEL control character.
const bell = "\a"

// BellAlert rings the terminal bell by writing BEL to w.
type BellAlert struct {
	mu sync.Mutex
	w  io.Writer
}

// NewBellAlert creates a BellAlert writing to w.
func NewBellAlert(w io.Writer) *BellAlert {
	return &BellAlert{w: w}
}

// Play writes a single BEL.
func (a *BellAlert) Play(_ context.Context, _ Notification) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := io.WriteString(a.w, bell); err != nil {
		return errors.Wrap(err, "ring bell")
	}
	return nil
}

// LogAlert writes a staff-facing banner line to the logger.
type LogAlert struct {
	lg *zap.Logger
}

// NewLogAlert creates a LogAlert logging to lg.
func NewLogAlert(lg *zap.Logger) *LogAlert {
	return &LogAlert{lg: lg}
}

// Play logs the banner at warn level with the pending counts.
func (a *LogAlert) Play(_ context.Context, n Notification) error {
	a.lg.Warn("New Order Received! Check Pending Orders.",
		zap.Int("pending", n.Pending),
		zap.Int("new", n.New()),
	)
	return nil
}

// Alerts plays every alert in order and joins their failures.
type Alerts []Alert

// Play runs every alert even when an earlier one fails.
func (as Alerts) Play(ctx context.Context, n Notification) error {
	var err error
	for _, a := range as {
		err = multierr.Append(err, a.Play(ctx, n))
	}
	return err
}
