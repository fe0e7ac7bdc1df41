package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/neurobot/backend/internal/ws"
)

var errNotConnected = errors.New("relay: not connected to broker")

// Broadcaster delivers an encoded frame to the sessions hosted locally.
type Broadcaster interface {
	Broadcast(ctx context.Context, group string, data []byte) int
}

type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Relay publishes live-feed events through a fanout exchange so every
// server process delivers them to its own sessions. The group name is the
// routing key.
type Relay struct {
	url      string
	exchange string
	local    Broadcaster
	log      *zap.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	pub    publishChannel
	closed bool
}

func newRelay(url, exchange string, local Broadcaster, log *zap.Logger) *Relay {
	return &Relay{url: url, exchange: exchange, local: local, log: log}
}

// Dial connects to the broker and declares the exchange.
func Dial(url, exchange string, local Broadcaster, log *zap.Logger) (*Relay, error) {
	r := newRelay(url, exchange, local, log)
	if err := r.connect(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Relay) connect() error {
	conn, err := amqp.Dial(r.url)
	if err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(r.exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("declare exchange %s: %w", r.exchange, err)
	}

	r.mu.Lock()
	r.conn = conn
	r.pub = ch
	r.mu.Unlock()

	r.log.Info("relay connected", zap.String("exchange", r.exchange))
	return nil
}

// Publish sends ev to every process through the broker. When the broker is
// unavailable the event is delivered to local sessions only.
func (r *Relay) Publish(ctx context.Context, group string, ev ws.Event) {
	data, err := ws.Encode(ev)
	if err != nil {
		r.log.Error("relay encode failed", zap.Error(err))
		return
	}
	if err := r.publish(ctx, group, data); err != nil {
		r.log.Warn("relay publish failed, delivering locally", zap.String("group", group), zap.Error(err))
		r.local.Broadcast(ctx, group, data)
	}
}

func (r *Relay) publish(ctx context.Context, group string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pub == nil || r.closed {
		return errNotConnected
	}
	return r.pub.PublishWithContext(ctx, r.exchange, group, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        data,
	})
}

// Run consumes relayed frames into the local hub until ctx is done,
// reconnecting with back-off when the broker connection drops.
func (r *Relay) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		err := r.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		r.log.Warn("relay consumer stopped", zap.Error(err), zap.Duration("retry_in", backoff))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if err := r.connect(); err != nil {
			r.log.Error("relay reconnect failed", zap.Error(err))
			backoff *= 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			continue
		}
		backoff = time.Second
	}
}

func (r *Relay) consume(ctx context.Context) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil || conn.IsClosed() {
		return errNotConnected
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", r.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	r.log.Info("relay consuming", zap.String("queue", q.Name))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			r.handle(ctx, d.RoutingKey, d.Body)
		}
	}
}

func (r *Relay) handle(ctx context.Context, group string, body []byte) {
	if group == "" || len(body) == 0 {
		r.log.Debug("relay dropped empty delivery")
		return
	}
	n := r.local.Broadcast(ctx, group, body)
	r.log.Debug("relay delivered", zap.String("group", group), zap.Int("sessions", n))
}

func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}
