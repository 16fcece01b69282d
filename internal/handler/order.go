package handler

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/canteen-orders/internal/domain/notify"
	"github.com/xenking/canteen-orders/internal/domain/order"
)

const maxBodyBytes = 1 << 20

// PlaceOrder creates a pending order from the checkout body.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	draft, err := decodeDraft(body)
	if err != nil {
		handleError(w, r, err)
		return
	}

	id, err := h.orders.AddOrder(r.Context(), draft)
	if err != nil {
		handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(id)
		e.ObjEnd()
	})
}

// StudentOrders lists a student's order history, newest first.
func (h *Handler) StudentOrders(w http.ResponseWriter, r *http.Request) {
	orders := h.orders.GetStudentOrders(r.PathValue("studentId"))
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, orders) })
}

// ListOrders lists every order, optionally filtered by ?status=.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var orders []order.Order
	if s := r.URL.Query().Get("status"); s != "" {
		status := order.Status(s)
		if !status.Valid() {
			handleError(w, r, badRequest("unknown status %q", s))
			return
		}
		orders = h.orders.ByStatus(status)
	} else {
		orders = h.orders.GetAllOrders()
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, orders) })
}

// GetOrder returns a single order.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.PathValue("id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeStaffOrder(e, o) })
}

// ApplyAction runs a staff action on an order.
func (h *Handler) ApplyAction(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	p, err := decodePayload(body)
	if err != nil {
		handleError(w, r, err)
		return
	}

	o, err := h.actions.Do(r.Context(), r.PathValue("id"), order.Action(r.PathValue("action")), p)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeStaffOrder(e, o) })
}

// Dashboard returns the staff overview: status counts, the pending queue
// and the current new-order notification.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	sum := h.orders.Summary()
	pending := h.orders.ByStatus(order.StatusPending)
	n, notified := h.notes.Current()

	var revenue string
	if h.revenue != nil {
		v, err := h.revenue(r.Context())
		if err != nil {
			handleError(w, r, errors.Wrap(err, "revenue"))
			return
		}
		revenue = v.String()
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("summary")
		encodeSummary(e, sum)
		e.FieldStart("notification")
		if notified {
			encodeNotification(e, n)
		} else {
			e.Null()
		}
		e.FieldStart("pendingOrders")
		encodeOrders(e, pending)
		if revenue != "" {
			e.FieldStart("revenue")
			e.Num(jx.Num(revenue))
		}
		e.ObjEnd()
	})
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, badRequest("body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, errors.Wrap(err, "read body")
	}
	return body, nil
}

func decodeDraft(body []byte) (order.Draft, error) {
	var d order.Draft
	err := jx.DecodeBytes(body).Obj(func(dec *jx.Decoder, key string) error {
		var err error
		switch key {
		case "studentId":
			d.StudentID, err = dec.Str()
		case "studentName":
			d.StudentName, err = dec.Str()
		case "studentEmail":
			d.StudentEmail, err = dec.Str()
		case "studentRollNumber":
			d.StudentRollNumber, err = dec.Str()
		case "items":
			d.Items, err = order.DecodeLineItems(dec)
		case "total":
			d.Total, err = order.DecodeDecimal(dec)
		case "paymentMethod":
			var s string
			s, err = dec.Str()
			d.PaymentMethod = order.PaymentMethod(s)
		default:
			return dec.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	if err != nil {
		return order.Draft{}, badRequest("decode order: %s", err)
	}
	if strings.TrimSpace(d.StudentID) == "" {
		return order.Draft{}, badRequest("studentId is required")
	}
	return d, nil
}

func decodePayload(body []byte) (order.Payload, error) {
	var p order.Payload
	if len(strings.TrimSpace(string(body))) == 0 {
		return p, nil
	}
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "preparationTime":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := d.Int()
			if err != nil {
				return errors.Wrap(err, "preparationTime")
			}
			p.PreparationTime = &v
			return nil
		case "reason", "rejectionReason":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "reason")
			}
			p.RejectionReason = v
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return order.Payload{}, badRequest("decode payload: %s", err)
	}
	return p, nil
}

func encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.ArrStart()
	for _, o := range orders {
		order.EncodeOrder(e, o)
	}
	e.ArrEnd()
}

// encodeStaffOrder wraps the order with the actions staff may take next.
func encodeStaffOrder(e *jx.Encoder, o order.Order) {
	e.ObjStart()
	e.FieldStart("order")
	order.EncodeOrder(e, o)
	e.FieldStart("nextActions")
	e.ArrStart()
	for _, a := range order.NextActions(o.Status) {
		e.Str(string(a))
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeSummary(e *jx.Encoder, s order.Summary) {
	e.ObjStart()
	e.FieldStart("pending")
	e.Int(s.Pending)
	e.FieldStart("active")
	e.Int(s.Active)
	e.FieldStart("completed")
	e.Int(s.Completed)
	e.FieldStart("rejected")
	e.Int(s.Rejected)
	e.ObjEnd()
}

func encodeNotification(e *jx.Encoder, n notify.Notification) {
	e.ObjStart()
	e.FieldStart("pending")
	e.Int(n.Pending)
	e.FieldStart("new")
	e.Int(n.New())
	e.FieldStart("raisedAt")
	e.Str(n.RaisedAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
}
