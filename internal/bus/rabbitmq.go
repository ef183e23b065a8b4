package bus

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// amqpChannel - часть *amqp.Channel, нужная для публикации
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQ - транспорт через RabbitMQ.
// Перед публикацией объявляются durable direct exchange и durable очередь
// с именем ключа, очередь привязывается к exchange по ключу.
type RabbitMQ struct {
	url  string
	name string
	dial func(ctx context.Context) (amqpChannel, func() error, error)
}

// NewRabbitMQ создаёт транспорт
func NewRabbitMQ(url string) *RabbitMQ {
	r := &RabbitMQ{url: url, name: "rabbitmq"}
	r.dial = r.dialAMQP
	return r
}

func (r *RabbitMQ) Name() string { return r.name }

func (r *RabbitMQ) dialAMQP(ctx context.Context) (amqpChannel, func() error, error) {
	cfg := amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Properties: amqp.Table{
			"connection_name": "balancer",
		},
	}
	if deadline, ok := ctx.Deadline(); ok {
		timeout := time.Until(deadline)
		if timeout <= 0 {
			return nil, nil, fmt.Errorf("rabbitmq dial: %w", context.DeadlineExceeded)
		}
		cfg.Dial = amqp.DefaultDial(timeout)
	}

	conn, err := amqp.DialConfig(r.url, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	return ch, conn.Close, nil
}

// Dial открывает соединение и канал
func (r *RabbitMQ) Dial(ctx context.Context) (Conn, error) {
	if _, err := amqp.ParseURI(r.url); err != nil {
		return nil, fmt.Errorf("%w: rabbitmq url: %v", ErrMisconfigured, err)
	}
	ch, closeConn, err := r.dial(ctx)
	if err != nil {
		return nil, err
	}
	return &rabbitConn{ch: ch, closeConn: closeConn, declared: make(map[string]bool)}, nil
}

type rabbitConn struct {
	ch        amqpChannel
	closeConn func() error
	declared  map[string]bool // ключи, для которых топология уже объявлена в этой сессии
}

func (c *rabbitConn) declare(exchange, key string) error {
	if c.declared[key] {
		return nil
	}
	if err := c.ch.ExchangeDeclare(exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if _, err := c.ch.QueueDeclare(key, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", key, err)
	}
	if err := c.ch.QueueBind(key, key, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", key, err)
	}
	c.declared[key] = true
	return nil
}

func (c *rabbitConn) Publish(ctx context.Context, msg Message) error {
	exchange, err := ExchangeName(msg.RoutingKey)
	if err != nil {
		return err
	}
	if err := c.declare(exchange, msg.RoutingKey); err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     msg.ID,
		CorrelationId: msg.ParentID,
		Timestamp:     msg.Timestamp,
		Body:          msg.Body,
	}
	if err := c.ch.PublishWithContext(ctx, exchange, msg.RoutingKey, false, false, pub); err != nil {
		return fmt.Errorf("rabbitmq publish %s: %w", msg.RoutingKey, err)
	}
	return nil
}

func (c *rabbitConn) Close() error {
	chErr := c.ch.Close()
	var connErr error
	if c.closeConn != nil {
		connErr = c.closeConn()
	}
	if chErr != nil {
		return chErr
	}
	return connErr
}
