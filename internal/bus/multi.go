package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"balancer/pkg/utils"
)

// Multi рассылает каждую запись во все транспорты.
// Транспорт, к которому не удалось подключиться, пропускается в этой сессии.
type Multi struct {
	transports []Transport
	log        *utils.Logger
}

// NewMulti создаёт веер транспортов
func NewMulti(transports ...Transport) *Multi {
	return &Multi{transports: transports, log: utils.L().WithComponent("bus")}
}

func (m *Multi) Name() string {
	names := make([]string, len(m.transports))
	for i, t := range m.transports {
		names[i] = t.Name()
	}
	return strings.Join(names, ",")
}

func (m *Multi) Dial(ctx context.Context) (Conn, error) {
	var conns []namedConn
	var errs []error
	for _, t := range m.transports {
		c, err := t.Dial(ctx)
		if err != nil {
			m.log.Warn("bus transport unavailable", utils.String("transport", t.Name()), utils.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
			continue
		}
		conns = append(conns, namedConn{name: t.Name(), Conn: c})
	}
	if len(conns) == 0 {
		return nil, fmt.Errorf("no bus transport available: %w", errors.Join(errs...))
	}
	return &multiConn{conns: conns}, nil
}

// Close освобождает ресурсы всех транспортов
func (m *Multi) Close() error {
	var errs []error
	for _, t := range m.transports {
		if err := Close(t); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
		}
	}
	return errors.Join(errs...)
}

type namedConn struct {
	name string
	Conn
}

type multiConn struct {
	conns []namedConn
}

// Publish отправляет во все сессии; ошибки собираются, остальные сессии не страдают
func (m *multiConn) Publish(ctx context.Context, msg Message) error {
	var errs []error
	for _, c := range m.conns {
		if err := c.Publish(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *multiConn) Close() error {
	var errs []error
	for _, c := range m.conns {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}
