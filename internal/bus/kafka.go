package bus

import (
	"context"
	"fmt"
	"time"

	kafka "github.com/segmentio/kafka-go"
)

// messageWriter - часть *kafka.Writer, нужная для публикации
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka - транспорт через Kafka: топик = ключ маршрутизации, ключ сообщения = id записи
type Kafka struct {
	brokers   []string
	newWriter func() messageWriter
}

// NewKafka создаёт транспорт
func NewKafka(brokers []string) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("%w: kafka brokers not configured", ErrMisconfigured)
	}
	k := &Kafka{brokers: brokers}
	k.newWriter = func() messageWriter {
		return &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		}
	}
	return k, nil
}

func (k *Kafka) Name() string { return "kafka" }

// Dial создаёт writer на сессию; соединения открываются лениво при первой записи
func (k *Kafka) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &kafkaConn{w: k.newWriter()}, nil
}

type kafkaConn struct {
	w messageWriter
}

func (c *kafkaConn) Publish(ctx context.Context, msg Message) error {
	if _, err := ExchangeName(msg.RoutingKey); err != nil {
		return err
	}
	km := kafka.Message{
		Topic: msg.RoutingKey,
		Key:   []byte(msg.ID),
		Value: msg.Body,
		Time:  msg.Timestamp,
		Headers: []kafka.Header{
			{Key: "parent_id", Value: []byte(msg.ParentID)},
		},
	}
	if err := c.w.WriteMessages(ctx, km); err != nil {
		return fmt.Errorf("kafka publish %s: %w", msg.RoutingKey, err)
	}
	return nil
}

func (c *kafkaConn) Close() error {
	return c.w.Close()
}
