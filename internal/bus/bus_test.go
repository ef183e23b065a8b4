package bus

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExchangeName(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{RouteOrders, "logger.event", false},
		{RouteTelegram, "logger.event", false},
		{"logger.periodic.funding", "logger.periodic", false},
		{"logger.insert_orders", "", true},
		{"logger", "", true},
		{"logger.other.insert", "", true},
		{"logger..insert", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := ExchangeName(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExchangeName(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExchangeName(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestMemory_PublishAndFail(t *testing.T) {
	m := NewMemory()
	m.FailKeys[RouteOrders] = errors.New("broker down")

	conn, err := m.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	ctx := context.Background()
	if err := conn.Publish(ctx, Message{RoutingKey: RouteDisbalances, ID: "1"}); err != nil {
		t.Errorf("Publish: %v", err)
	}
	if err := conn.Publish(ctx, Message{RoutingKey: RouteOrders, ID: "2"}); err == nil {
		t.Error("ожидали ошибку публикации")
	}
	if err := conn.Publish(ctx, Message{RoutingKey: "bad", ID: "3"}); err == nil {
		t.Error("ожидали ошибку ключа")
	}
	_ = conn.Close()

	if len(m.Messages()) != 1 || len(m.ByKey(RouteDisbalances)) != 1 {
		t.Errorf("ожидали одну запись, получили %d", len(m.Messages()))
	}
	if d, c := m.Sessions(); d != 1 || c != 1 {
		t.Errorf("сессии: dial=%d close=%d", d, c)
	}
}

func TestMulti_SkipsUnavailableTransport(t *testing.T) {
	up := NewMemory()
	down := NewMemory()
	down.DialErr = errors.New("connection refused")

	multi := NewMulti(down, up)
	if multi.Name() != "memory,memory" {
		t.Errorf("Name: %s", multi.Name())
	}

	conn, err := multi.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := conn.Publish(context.Background(), Message{RoutingKey: RouteBalances, ID: "b1"}); err != nil {
		t.Errorf("Publish: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if len(up.Messages()) != 1 {
		t.Errorf("живой транспорт должен получить запись")
	}
}

func TestMulti_AllDown(t *testing.T) {
	down := NewMemory()
	down.DialErr = errors.New("connection refused")

	if _, err := NewMulti(down).Dial(context.Background()); err == nil {
		t.Error("ожидали ошибку, если ни один транспорт недоступен")
	}
}

func TestMulti_PublishErrorsJoined(t *testing.T) {
	a, b := NewMemory(), NewMemory()
	a.FailKeys[RouteOrders] = errors.New("a failed")

	conn, err := NewMulti(a, b).Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	err = conn.Publish(context.Background(), Message{RoutingKey: RouteOrders, ID: "o1"})
	if err == nil {
		t.Fatal("ожидали ошибку от первого транспорта")
	}
	if len(b.Messages()) != 1 {
		t.Error("второй транспорт должен получить запись несмотря на сбой первого")
	}
}

func TestLog_Publish(t *testing.T) {
	conn, err := NewLog(nil).Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	msg := Message{RoutingKey: RouteCheckBalance, ID: "c1", Body: []byte(`{}`), Timestamp: time.Now()}
	if err := conn.Publish(context.Background(), msg); err != nil {
		t.Errorf("Publish: %v", err)
	}
	if err := conn.Publish(context.Background(), Message{RoutingKey: "x"}); err == nil {
		t.Error("ожидали ошибку ключа")
	}
}
