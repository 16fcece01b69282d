package order

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// EncodeOrders serializes the collection as a JSON array, preserving order.
func EncodeOrders(orders []Order) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, o := range orders {
		EncodeOrder(&e, o)
	}
	e.ArrEnd()
	return e.Bytes()
}

// DecodeOrders parses a JSON array produced by EncodeOrders.
func DecodeOrders(data []byte) ([]Order, error) {
	var orders []Order
	d := jx.DecodeBytes(data)
	if err := d.Arr(func(d *jx.Decoder) error {
		o, err := DecodeOrder(d)
		if err != nil {
			return err
		}
		orders = append(orders, o)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode orders")
	}
	return orders, nil
}

// EncodeOrder writes o as a JSON object.
func EncodeOrder(e *jx.Encoder, o Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("studentId")
	e.Str(o.StudentID)
	e.FieldStart("studentName")
	e.Str(o.StudentName)
	e.FieldStart("studentEmail")
	e.Str(o.StudentEmail)
	if o.StudentRollNumber != "" {
		e.FieldStart("studentRollNumber")
		e.Str(o.StudentRollNumber)
	}
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		encodeLineItem(e, it)
	}
	e.ArrEnd()
	e.FieldStart("total")
	e.Num(jx.Num(o.Total.String()))
	e.FieldStart("paymentMethod")
	e.Str(string(o.PaymentMethod))
	e.FieldStart("status")
	e.Str(string(o.Status))
	if o.PreparationTime != nil {
		e.FieldStart("preparationTime")
		e.Int(*o.PreparationTime)
	}
	if o.RejectionReason != "" {
		e.FieldStart("rejectionReason")
		e.Str(o.RejectionReason)
	}
	e.FieldStart("createdAt")
	e.Str(o.CreatedAt.Format(time.RFC3339Nano))
	e.FieldStart("updatedAt")
	e.Str(o.UpdatedAt.Format(time.RFC3339Nano))
	e.ObjEnd()
}

func encodeLineItem(e *jx.Encoder, it LineItem) {
	e.ObjStart()
	if it.MenuItemID != "" {
		e.FieldStart("itemId")
		e.Str(it.MenuItemID)
	}
	e.FieldStart("name")
	e.Str(it.Name)
	e.FieldStart("price")
	e.Num(jx.Num(it.Price.String()))
	e.FieldStart("quantity")
	e.Int(it.Quantity)
	if len(it.Customizations) > 0 {
		e.FieldStart("customizations")
		e.ArrStart()
		for _, c := range it.Customizations {
			e.Str(c)
		}
		e.ArrEnd()
	}
	e.ObjEnd()
}

// DecodeOrder reads one JSON object written by EncodeOrder. Unknown fields
// are skipped.
func DecodeOrder(d *jx.Decoder) (Order, error) {
	var o Order
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			o.ID, err = d.Str()
		case "studentId":
			o.StudentID, err = d.Str()
		case "studentName":
			o.StudentName, err = d.Str()
		case "studentEmail":
			o.StudentEmail, err = d.Str()
		case "studentRollNumber":
			o.StudentRollNumber, err = d.Str()
		case "items":
			o.Items, err = DecodeLineItems(d)
		case "total":
			o.Total, err = DecodeDecimal(d)
		case "paymentMethod":
			var s string
			s, err = d.Str()
			o.PaymentMethod = PaymentMethod(s)
		case "status":
			var s string
			s, err = d.Str()
			o.Status = Status(s)
		case "preparationTime":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var v int
			v, err = d.Int()
			o.PreparationTime = &v
		case "rejectionReason":
			o.RejectionReason, err = d.Str()
		case "createdAt":
			o.CreatedAt, err = decodeTime(d)
		case "updatedAt":
			o.UpdatedAt, err = decodeTime(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	if !o.Status.Valid() {
		return Order{}, errors.Errorf("order %q: unknown status %q", o.ID, o.Status)
	}
	if o.Items == nil {
		o.Items = []LineItem{}
	}
	return o, nil
}

// DecodeLineItems reads a JSON array of line items.
func DecodeLineItems(d *jx.Decoder) ([]LineItem, error) {
	items := []LineItem{}
	err := d.Arr(func(d *jx.Decoder) error {
		var it LineItem
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "itemId", "id":
				it.MenuItemID, err = d.Str()
			case "name":
				it.Name, err = d.Str()
			case "price":
				it.Price, err = DecodeDecimal(d)
			case "quantity":
				it.Quantity, err = d.Int()
			case "customizations":
				err = d.Arr(func(d *jx.Decoder) error {
					c, err := d.Str()
					if err != nil {
						return err
					}
					it.Customizations = append(it.Customizations, c)
					return nil
				})
			default:
				return d.Skip()
			}
			if err != nil {
				return errors.Wrapf(err, "item field %q", key)
			}
			return nil
		}); err != nil {
			return err
		}
		items = append(items, it)
		return nil
	})
	return items, err
}

// DecodeDecimal reads a JSON number (or numeric string) as a decimal.
func DecodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(n.String())
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, s)
}
