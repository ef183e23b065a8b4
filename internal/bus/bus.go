package bus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrMisconfigured - неверные настройки транспорта, повтор подключения не поможет
var ErrMisconfigured = errors.New("bus transport misconfigured")

// Ключи маршрутизации записей аудита.
// Первые два сегмента ключа - имя exchange брокера, ключ целиком - имя очереди.
const (
	RouteTelegram     = "logger.event.send_to_telegram"
	RouteOrders       = "logger.event.insert_orders"
	RouteDisbalances  = "logger.event.insert_disbalances"
	RouteBalances     = "logger.event.insert_balances"
	RouteCheckBalance = "logger.event.check_balance"
	RouteBalanceJumps = "logger.event.insert_balance_jumps"
)

// Message - одна запись для шины
type Message struct {
	RoutingKey string
	ID         string // id записи, потребители идемпотентны по нему
	ParentID   string // id события балансировки
	Body       []byte // JSON
	Timestamp  time.Time
}

// Conn - сессия с брокером. Открывается на одну итерацию.
type Conn interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Transport открывает сессии с брокером
type Transport interface {
	Name() string
	Dial(ctx context.Context) (Conn, error)
}

// Close освобождает ресурсы транспорта, если он ими владеет (пул postgres).
// Сессии брокеров живут одну итерацию и закрываются через Conn.Close.
func Close(t Transport) error {
	if c, ok := t.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ExchangeName возвращает имя exchange для ключа: первые два сегмента.
// Ключ без сегмента event или periodic считается ошибочным.
func ExchangeName(routingKey string) (string, error) {
	parts := strings.Split(routingKey, ".")
	if len(parts) < 3 {
		return "", fmt.Errorf("wrong routing key: %q", routingKey)
	}
	for _, p := range parts {
		if p == "" {
			return "", fmt.Errorf("wrong routing key: %q", routingKey)
		}
	}
	if parts[1] != "event" && parts[1] != "periodic" {
		return "", fmt.Errorf("wrong routing key: %q", routingKey)
	}
	return parts[0] + "." + parts[1], nil
}
