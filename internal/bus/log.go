package bus

import (
	"context"

	"balancer/pkg/utils"
)

// Log - транспорт для dry-run: записи пишутся в лог
type Log struct {
	log *utils.Logger
}

// NewLog создаёт транспорт в лог
func NewLog(log *utils.Logger) *Log {
	if log == nil {
		log = utils.L()
	}
	return &Log{log: log.WithComponent("bus")}
}

func (l *Log) Name() string { return "log" }

func (l *Log) Dial(ctx context.Context) (Conn, error) {
	return &logConn{log: l.log}, ctx.Err()
}

type logConn struct {
	log *utils.Logger
}

func (c *logConn) Publish(ctx context.Context, msg Message) error {
	if _, err := ExchangeName(msg.RoutingKey); err != nil {
		return err
	}
	c.log.Info("audit record",
		utils.RoutingKey(msg.RoutingKey),
		utils.String("record_id", msg.ID),
		utils.EventID(msg.ParentID),
		utils.String("payload", string(msg.Body)),
	)
	return nil
}

func (c *logConn) Close() error { return nil }
