package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// MaxPreparationMinutes is the upper bound staff clients offer for an
// estimate. The store accepts any positive value.
const MaxPreparationMinutes = 120

// Sentinel errors for order lifecycle operations.
var (
	ErrNotFound               = errors.New("order not found")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrMissingPreparationTime = errors.New("preparation time must be a positive number of minutes")
	ErrInvalidPaymentMethod   = errors.New("invalid payment method")
)

// TransitionError reports a requested status that is not reachable from the
// current one.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	if e.From.Terminal() {
		return fmt.Sprintf("order is %s: no further transition to %s", e.From, e.To)
	}
	return fmt.Sprintf("cannot transition from %s to %s", e.From, e.To)
}

// Is makes errors.Is(err, ErrInvalidTransition) match.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Payload carries the extra input some transitions require.
type Payload struct {
	// PreparationTime is required when moving to accepted.
	PreparationTime *int
	// RejectionReason is optional when moving to rejected.
	RejectionReason string
}

// allowedTransitions is the lifecycle graph. Terminal statuses have no entry.
var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusAccepted, StatusRejected},
	StatusAccepted:  {StatusPreparing},
	StatusPreparing: {StatusReady},
	StatusReady:     {StatusCompleted},
}

// CanTransition reports whether the graph has an edge from -> to.
func CanTransition(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// NextStatuses lists the statuses reachable from s in one step.
func NextStatuses(s Status) []Status {
	return append([]Status(nil), allowedTransitions[s]...)
}

// Apply validates moving o to status to and returns the updated copy. The
// input order is never modified. now becomes UpdatedAt, bumped past the
// previous value so UpdatedAt strictly increases.
func Apply(o Order, to Status, p Payload, now time.Time) (Order, error) {
	if !to.Valid() {
		return Order{}, errors.Wrapf(&TransitionError{From: o.Status, To: to}, "unknown status %q", to)
	}
	if !CanTransition(o.Status, to) {
		return Order{}, &TransitionError{From: o.Status, To: to}
	}

	next := o.Clone()
	switch to {
	case StatusAccepted:
		if p.PreparationTime == nil || *p.PreparationTime <= 0 {
			return Order{}, ErrMissingPreparationTime
		}
		minutes := *p.PreparationTime
		next.PreparationTime = &minutes
	case StatusRejected:
		next.RejectionReason = strings.TrimSpace(p.RejectionReason)
	}

	if !now.After(o.UpdatedAt) {
		now = o.UpdatedAt.Add(time.Nanosecond)
	}
	next.Status = to
	next.UpdatedAt = now
	return next, nil
}
