package bus

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

type fakeChannel struct {
	exchanges  map[string]string
	queues     []string
	bindings   []string
	published  []amqp.Publishing
	keys       []string
	publishErr error
	closed     bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{exchanges: make(map[string]string)}
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	if !durable {
		return errors.New("exchange must be durable")
	}
	f.exchanges[name] = kind
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	if !durable {
		return amqp.Queue{}, errors.New("queue must be durable")
	}
	f.queues = append(f.queues, name)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	f.bindings = append(f.bindings, exchange+"->"+name+"@"+key)
	return nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.keys = append(f.keys, exchange+"/"+key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func newTestRabbit(ch *fakeChannel, connClosed *bool) *RabbitMQ {
	r := NewRabbitMQ("amqp://test")
	r.dial = func(ctx context.Context) (amqpChannel, func() error, error) {
		return ch, func() error { *connClosed = true; return nil }, nil
	}
	return r
}

func TestRabbitMQ_DeclaresTopologyOncePerSession(t *testing.T) {
	ch := newFakeChannel()
	var connClosed bool
	r := newTestRabbit(ch, &connClosed)

	conn, err := r.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	ctx := context.Background()
	for _, id := range []string{"o1", "o2"} {
		if err := conn.Publish(ctx, Message{RoutingKey: RouteOrders, ID: id, ParentID: "e1", Body: []byte(`{}`)}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	if ch.exchanges["logger.event"] != amqp.ExchangeDirect {
		t.Errorf("ожидали direct exchange logger.event, получили %v", ch.exchanges)
	}
	if len(ch.queues) != 1 || ch.queues[0] != RouteOrders {
		t.Errorf("очередь должна объявляться один раз с именем ключа: %v", ch.queues)
	}
	if len(ch.bindings) != 1 || ch.bindings[0] != "logger.event->"+RouteOrders+"@"+RouteOrders {
		t.Errorf("привязка: %v", ch.bindings)
	}
	if len(ch.published) != 2 {
		t.Fatalf("ожидали 2 публикации, получили %d", len(ch.published))
	}

	pub := ch.published[0]
	if pub.DeliveryMode != amqp.Persistent || pub.ContentType != "application/json" {
		t.Errorf("сообщение должно быть persistent JSON: %+v", pub)
	}
	if pub.MessageId != "o1" || pub.CorrelationId != "e1" {
		t.Errorf("id/correlation: %s/%s", pub.MessageId, pub.CorrelationId)
	}

	if err := conn.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if !ch.closed || !connClosed {
		t.Error("канал и соединение должны быть закрыты")
	}
}

func TestRabbitMQ_Errors(t *testing.T) {
	ch := newFakeChannel()
	var connClosed bool
	conn, _ := newTestRabbit(ch, &connClosed).Dial(context.Background())

	if err := conn.Publish(context.Background(), Message{RoutingKey: "bad-key"}); err == nil {
		t.Error("ожидали ошибку ключа")
	}

	ch.publishErr = errors.New("channel closed")
	if err := conn.Publish(context.Background(), Message{RoutingKey: RouteTelegram, ID: "t"}); !errors.Is(err, ch.publishErr) {
		t.Errorf("ожидали обёрнутую ошибку публикации, получили %v", err)
	}

	failing := NewRabbitMQ("amqp://test")
	failing.dial = func(ctx context.Context) (amqpChannel, func() error, error) {
		return nil, nil, errors.New("dial refused")
	}
	if _, err := failing.Dial(context.Background()); err == nil {
		t.Error("ожидали ошибку подключения")
	}
}
