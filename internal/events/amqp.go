// Package events publishes order events to RabbitMQ.
package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/xenking/canteen-orders/internal/domain/order"
)

// DefaultExchange is the topic exchange order events are published to.
const DefaultExchange = "canteen.orders"

const publishTimeout = 5 * time.Second

// Channel is the subset of *amqp.Channel used by the publisher.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

var _ order.Listener = (*Publisher)(nil)

// Publisher forwards committed store events to an exchange. Failures are
// logged and never reach the store.
type Publisher struct {
	ch       Channel
	exchange string
	lg       *zap.Logger
	now      func() time.Time
}

// NewPublisher creates a Publisher on ch. An empty exchange selects
// DefaultExchange.
func NewPublisher(ch Channel, exchange string, lg *zap.Logger) *Publisher {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Publisher{ch: ch, exchange: exchange, lg: lg, now: time.Now}
}

// RoutingKey returns the routing key for ev.
func RoutingKey(ev order.Event) string {
	if ev.Type == order.EventCreated {
		return "order.created"
	}
	return "order.status." + string(ev.Order.Status)
}

// OnOrderEvent implements order.Listener.
func (p *Publisher) OnOrderEvent(ctx context.Context, ev order.Event) {
	if err := p.Publish(ctx, ev); err != nil {
		p.lg.Warn("Publish order event",
			zap.String("order_id", ev.Order.ID),
			zap.String("routing_key", RoutingKey(ev)),
			zap.Error(err),
		)
	}
}

// Publish sends ev with the order JSON as body.
func (p *Publisher) Publish(ctx context.Context, ev order.Event) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	order.EncodeOrder(e, ev.Order)

	headers := amqp.Table{"event": string(ev.Type)}
	if ev.Previous != "" {
		headers["previous_status"] = string(ev.Previous)
	}

	err := p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(ev), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.Order.ID,
		Timestamp:    p.now(),
		Headers:      headers,
		Body:         append([]byte(nil), e.Bytes()...),
	})
	if err != nil {
		return errors.Wrapf(err, "publish to %q", p.exchange)
	}
	return nil
}

// Conn is an open broker connection with a channel bound to the exchange.
type Conn struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial connects to url and declares exchange as a durable topic exchange.
func Dial(url, exchange string) (*Conn, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial amqp")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %q", exchange)
	}
	return &Conn{conn: conn, ch: ch}, nil
}

// Channel returns the channel to publish on.
func (c *Conn) Channel() *amqp.Channel { return c.ch }

// Healthy reports whether the connection is still open.
func (c *Conn) Healthy(context.Context) error {
	if c.conn.IsClosed() {
		return errors.New("amqp connection closed")
	}
	return nil
}

// Close closes the channel and the connection.
func (c *Conn) Close() error {
	_ = c.ch.Close()
	return c.conn.Close()
}
