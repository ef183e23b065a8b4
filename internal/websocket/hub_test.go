package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"balancer/internal/models"
)

// ============================================================
// Unit Tests
// ============================================================

func TestNewHub(t *testing.T) {
	hub := NewHub()

	if hub == nil {
		t.Fatal("NewHub returned nil")
	}

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}

	if hub.DroppedMessages() != 0 {
		t.Errorf("expected 0 dropped messages, got %d", hub.DroppedMessages())
	}
}

func TestOriginChecker_Check(t *testing.T) {
	checker := NewOriginChecker([]string{"http://localhost:3000", " https://example.com "})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"https://example.com", true},
		{"http://evil.com", false},
		{"http://localhost:8080", false},
	}

	for _, tt := range tests {
		got := checker.Check(tt.origin)
		if got != tt.want {
			t.Errorf("Check(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestOriginChecker_AllowAll(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
	}{
		{"nil", nil},
		{"empty strings", []string{"", " "}},
		{"wildcard", []string{"*"}},
		{"wildcard with list", []string{"http://localhost:3000", "*"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewOriginChecker(tt.origins)
			for _, origin := range []string{"http://localhost:3000", "https://evil.com"} {
				if !checker.Check(origin) {
					t.Errorf("ожидали разрешение для %q", origin)
				}
			}
		})
	}
}

func TestHub_BroadcastNonBlocking(t *testing.T) {
	hub := NewHub()

	// Run не запущен: очередь переполняется, лишнее отбрасывается
	for i := 0; i < broadcastBufferSize+10; i++ {
		hub.Broadcast(map[string]int{"i": i})
	}

	if got := hub.DroppedMessages(); got != 10 {
		t.Errorf("DroppedMessages = %d, want 10", got)
	}
}

func TestHub_Stop(t *testing.T) {
	hub := NewHub()

	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	hub.Stop()
	hub.Stop()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Error("Hub.Run() did not exit after Stop()")
	}
}

func TestHub_BroadcastToClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = &Client{hub: hub, send: make(chan []byte, 4)}
		hub.register <- clients[i]
	}

	hub.BroadcastStateChange(models.StateIdle, models.StateClosingStaleOrders)

	for i, c := range clients {
		select {
		case msg := <-c.send:
			if !strings.Contains(string(msg), `"type":"stateChange"`) {
				t.Errorf("клиент %d получил %s", i, msg)
			}
		case <-time.After(time.Second):
			t.Fatalf("клиент %d не получил сообщение", i)
		}
	}
}

func TestHub_RemovesSlowClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	slow := &Client{hub: hub, send: make(chan []byte)} // никто не читает
	hub.register <- slow

	hub.BroadcastRaw([]byte(`{"type":"test"}`))

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 0 {
		t.Fatalf("медленный клиент не удалён, clients=%d", hub.ClientCount())
	}
	if _, ok := <-slow.send; ok {
		t.Error("канал медленного клиента должен быть закрыт")
	}
}

// ============================================================
// Сообщения
// ============================================================

func TestNewIterationReportMessage(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	report := &models.IterationReport{
		ID:         "it-1",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Venues: []models.VenueStatus{
			{Venue: "binance", Connected: true},
			{Venue: "gate", Error: "connect: timeout"},
		},
		Exposures: map[string]models.CoinExposure{
			"BTC": {Coin: "BTC", NetUSD: 36000},
			"ETH": {Coin: "ETH", NetUSD: -120},
		},
		Triggered: []string{"BTC"},
		Events: []models.EventOutcome{{
			Orders: []models.OrderRecord{
				{Status: models.OrderStatusProcessing},
				{Status: models.OrderStatusFailed},
				{Status: models.OrderStatusProcessing},
			},
		}},
		Alerts: []models.Alert{{Type: models.AlertOrderMistake}},
	}

	msg := NewIterationReportMessage(report)

	if msg.Type != MessageTypeIterationReport {
		t.Errorf("Type = %s", msg.Type)
	}
	d := msg.Data
	if d.DurationMs != 1500 {
		t.Errorf("DurationMs = %d, want 1500", d.DurationMs)
	}
	if d.OrdersPlaced != 2 || d.OrdersFailed != 1 {
		t.Errorf("orders placed/failed = %d/%d, want 2/1", d.OrdersPlaced, d.OrdersFailed)
	}
	if len(d.VenueErrors) != 1 || d.VenueErrors["gate"] != "connect: timeout" {
		t.Errorf("VenueErrors = %v", d.VenueErrors)
	}
	if d.NetUSD["ETH"] != -120 || d.NetUSD["BTC"] != 36000 {
		t.Errorf("NetUSD = %v", d.NetUSD)
	}
	if d.Alerts != 1 {
		t.Errorf("Alerts = %d, want 1", d.Alerts)
	}
}

func TestNewIterationReportMessage_EmptyTriggered(t *testing.T) {
	msg := NewIterationReportMessage(&models.IterationReport{ID: "it-2"})

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"triggered":[]`) {
		t.Errorf("пустой список монет должен сериализоваться как []: %s", data)
	}
}

// ============================================================
// ServeWS
// ============================================================

func TestServeWS_ReceivesBroadcast(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("ClientCount = %d, want 1", hub.ClientCount())
	}

	hub.BroadcastAlert(&models.Alert{Type: models.AlertNoMarket, Coin: "BTC"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var got AlertMessage
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != MessageTypeAlert || got.Data == nil || got.Data.Coin != "BTC" {
		t.Errorf("неожиданное сообщение: %s", data)
	}
}

func TestServeWS_RejectsOrigin(t *testing.T) {
	hub := NewHub("https://dashboard.example.com")
	go hub.Run()
	defer hub.Stop()

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	header := http.Header{"Origin": []string{"http://evil.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("ожидали отказ в апгрейде")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("ожидали 403, получили %v", resp)
	}
}

// ============================================================
// Benchmarks
// ============================================================

func BenchmarkHub_Broadcast(b *testing.B) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	msg := map[string]interface{}{
		"type": "test",
		"data": "benchmark message",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.Broadcast(msg)
	}
}

func BenchmarkNewIterationReportMessage(b *testing.B) {
	report := &models.IterationReport{
		ID:        "it-1",
		Exposures: map[string]models.CoinExposure{"BTC": {NetUSD: 36000}, "ETH": {NetUSD: 10}},
		Triggered: []string{"BTC"},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = NewIterationReportMessage(report)
	}
}

// ============================================================
// Parallel Stress Test
// ============================================================

func TestHub_ConcurrentOperations(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	var wg sync.WaitGroup
	const goroutines = 10
	const operations = 1000

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < operations; j++ {
				hub.Broadcast(map[string]int{"goroutine": id, "op": j})
			}
		}(i)
	}

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < operations; j++ {
				_ = hub.ClientCount()
			}
		}()
	}

	wg.Wait()
}
