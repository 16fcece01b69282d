// Package handler serves the canteen order API over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/xenking/canteen-orders/internal/domain/notify"
	"github.com/xenking/canteen-orders/internal/domain/order"
)

// Orders is the order store as seen by the API.
type Orders interface {
	AddOrder(ctx context.Context, d order.Draft) (string, error)
	GetOrder(id string) (order.Order, error)
	GetStudentOrders(studentID string) []order.Order
	GetAllOrders() []order.Order
	ByStatus(status order.Status) []order.Order
	Summary() order.Summary
}

// Actions applies staff intents to orders.
type Actions interface {
	Do(ctx context.Context, id string, action order.Action, p order.Payload) (order.Order, error)
}

// Notifications exposes the transient new-order banner.
type Notifications interface {
	Current() (notify.Notification, bool)
}

// RevenueFunc reports the revenue of completed orders.
type RevenueFunc func(ctx context.Context) (decimal.Decimal, error)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// Revenue, when set, adds completed revenue to the dashboard.
	Revenue RevenueFunc
}

// Handler routes API requests to the order store and policy.
type Handler struct {
	orders  Orders
	actions Actions
	notes   Notifications
	staff   *Staff
	revenue RevenueFunc
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(cfg Config, orders Orders, actions Actions, notes Notifications, staff *Staff) *Handler {
	return &Handler{
		orders:  orders,
		actions: actions,
		notes:   notes,
		staff:   staff,
		revenue: cfg.Revenue,
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders", h.PlaceOrder)
	mux.Handle("GET /api/students/{studentId}/orders", h.staff.RequireSelf("studentId", http.HandlerFunc(h.StudentOrders)))

	mux.Handle("GET /api/orders", h.staff.Require(http.HandlerFunc(h.ListOrders)))
	mux.Handle("GET /api/orders/{id}", h.staff.Require(http.HandlerFunc(h.GetOrder)))
	mux.Handle("POST /api/orders/{id}/{action}", h.staff.Require(http.HandlerFunc(h.ApplyAction)))
	mux.Handle("GET /api/dashboard", h.staff.Require(http.HandlerFunc(h.Dashboard)))
}
