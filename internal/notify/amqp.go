package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher hands mail to RabbitMQ for a separate relay process to deliver.
type Publisher struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	exchange   string
	routingKey string
}

// NewPublisher dials RabbitMQ and declares the topic exchange.
func NewPublisher(url, exchange, routingKey string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{conn: conn, ch: ch, exchange: exchange, routingKey: routingKey}, nil
}

func (p *Publisher) SendMail(ctx context.Context, m Mail) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         b,
	})
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// RelayConfig describes the queue the relay consumes.
type RelayConfig struct {
	URL        string
	Exchange   string
	Queue      string
	RoutingKey string
	Prefetch   int
}

// Relay consumes mail published by Publisher and delivers it with another
// Sender, typically MailerSend.
type Relay struct {
	cfg    RelayConfig
	sender Sender
	log    *slog.Logger

	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewRelay constructs a Relay. Call Connect before Run.
func NewRelay(cfg RelayConfig, sender Sender, log *slog.Logger) *Relay {
	return &Relay{cfg: cfg, sender: sender, log: log}
}

// Connect dials RabbitMQ and declares the exchange, queue and binding.
func (r *Relay) Connect() error {
	conn, err := amqp.Dial(r.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	fail := func(step string, err error) error {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("%s: %w", step, err)
	}
	if err := ch.ExchangeDeclare(r.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fail("declare exchange", err)
	}
	q, err := ch.QueueDeclare(r.cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return fail("declare queue", err)
	}
	if err := ch.QueueBind(q.Name, r.cfg.RoutingKey, r.cfg.Exchange, false, nil); err != nil {
		return fail("bind queue", err)
	}
	prefetch := r.cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 8
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fail("set qos", err)
	}
	r.conn = conn
	r.ch = ch
	return nil
}

// Run consumes until ctx is done or the channel closes. Mail that cannot be
// decoded or delivered is dropped: delivery is best-effort.
func (r *Relay) Run(ctx context.Context) error {
	msgs, err := r.ch.ConsumeWithContext(ctx, r.cfg.Queue, "classbook-mailer", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := r.handle(ctx, d.Body); err != nil {
				r.log.Warn("mail relay dropped message", "err", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

var errEmptyMail = errors.New("mail has no recipients")

func (r *Relay) handle(ctx context.Context, body []byte) error {
	var m Mail
	if err := json.Unmarshal(body, &m); err != nil {
		return fmt.Errorf("decode mail: %w", err)
	}
	if len(m.To) == 0 {
		return errEmptyMail
	}
	return r.sender.SendMail(ctx, m)
}

func (r *Relay) Close() {
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		_ = r.conn.Close()
	}
}
