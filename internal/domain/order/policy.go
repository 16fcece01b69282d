package order

import (
	"context"

	"github.com/go-faster/errors"
)

// Action is a staff intent on an order.
type Action string

const (
	ActionAccept         Action = "accept"
	ActionReject         Action = "reject"
	ActionStartPreparing Action = "start-preparing"
	ActionMarkReady      Action = "mark-ready"
	ActionComplete       Action = "complete"
)

// ErrUnknownAction is returned by Policy.Do for an unrecognized action.
var ErrUnknownAction = errors.New("unknown action")

var actionTargets = map[Action]Status{
	ActionAccept:         StatusAccepted,
	ActionReject:         StatusRejected,
	ActionStartPreparing: StatusPreparing,
	ActionMarkReady:      StatusReady,
	ActionComplete:       StatusCompleted,
}

// Target returns the status an action moves an order to.
func (a Action) Target() (Status, bool) {
	s, ok := actionTargets[a]
	return s, ok
}

// NextActions lists the actions a staff client should offer for an order in
// status s.
func NextActions(s Status) []Action {
	var actions []Action
	for _, next := range allowedTransitions[s] {
		switch next {
		case StatusAccepted:
			actions = append(actions, ActionAccept)
		case StatusRejected:
			actions = append(actions, ActionReject)
		case StatusPreparing:
			actions = append(actions, ActionStartPreparing)
		case StatusReady:
			actions = append(actions, ActionMarkReady)
		case StatusCompleted:
			actions = append(actions, ActionComplete)
		}
	}
	return actions
}

// Updater applies status changes. *Store implements it.
type Updater interface {
	UpdateOrderStatus(ctx context.Context, id string, status Status, p Payload) (Order, error)
}

var _ Updater = (*Store)(nil)

// Policy translates staff intents into store transitions.
type Policy struct {
	orders Updater
}

// NewPolicy creates a Policy over the given updater.
func NewPolicy(orders Updater) *Policy {
	return &Policy{orders: orders}
}

// Accept moves a pending order to accepted with a preparation estimate in
// minutes. Without a positive estimate nothing changes.
func (p *Policy) Accept(ctx context.Context, id string, minutes int) (Order, error) {
	if minutes <= 0 {
		return Order{}, ErrMissingPreparationTime
	}
	return p.orders.UpdateOrderStatus(ctx, id, StatusAccepted, Payload{PreparationTime: &minutes})
}

// Reject moves a pending order to rejected, keeping the optional reason.
func (p *Policy) Reject(ctx context.Context, id, reason string) (Order, error) {
	return p.orders.UpdateOrderStatus(ctx, id, StatusRejected, Payload{RejectionReason: reason})
}

// StartPreparing moves an accepted order into the kitchen.
func (p *Policy) StartPreparing(ctx context.Context, id string) (Order, error) {
	return p.orders.UpdateOrderStatus(ctx, id, StatusPreparing, Payload{})
}

// MarkReady marks a preparing order as ready for pickup.
func (p *Policy) MarkReady(ctx context.Context, id string) (Order, error) {
	return p.orders.UpdateOrderStatus(ctx, id, StatusReady, Payload{})
}

// Complete closes a ready order once it has been picked up.
func (p *Policy) Complete(ctx context.Context, id string) (Order, error) {
	return p.orders.UpdateOrderStatus(ctx, id, StatusCompleted, Payload{})
}

// Do dispatches a named action. Accept reads the estimate from
// payload.PreparationTime and Reject reads payload.RejectionReason.
func (p *Policy) Do(ctx context.Context, id string, a Action, payload Payload) (Order, error) {
	switch a {
	case ActionAccept:
		if payload.PreparationTime == nil {
			return Order{}, ErrMissingPreparationTime
		}
		return p.Accept(ctx, id, *payload.PreparationTime)
	case ActionReject:
		return p.Reject(ctx, id, payload.RejectionReason)
	case ActionStartPreparing:
		return p.StartPreparing(ctx, id)
	case ActionMarkReady:
		return p.MarkReady(ctx, id)
	case ActionComplete:
		return p.Complete(ctx, id)
	}
	return Order{}, errors.Wrapf(ErrUnknownAction, "%q", a)
}
