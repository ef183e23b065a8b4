package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// ============ Position Tests ============

func TestPosition_Signed(t *testing.T) {
	tests := []struct {
		name     string
		pos      Position
		mark     float64
		wantCoin float64
		wantUSD  float64
	}{
		{
			name:     "long from mark price",
			pos:      Position{Side: PositionLong, AmountCoin: 1.0},
			mark:     60000,
			wantCoin: 1.0,
			wantUSD:  60000,
		},
		{
			name:     "short from mark price",
			pos:      Position{Side: PositionShort, AmountCoin: 0.4},
			mark:     60000,
			wantCoin: -0.4,
			wantUSD:  -24000,
		},
		{
			name:     "venue usd is authoritative",
			pos:      Position{Side: PositionShort, AmountCoin: 0.4, AmountUSD: 23900, HasAmountUSD: true},
			mark:     60000,
			wantCoin: -0.4,
			wantUSD:  -23900,
		},
		{
			name:     "negative magnitude is normalized",
			pos:      Position{Side: PositionShort, AmountCoin: -2},
			mark:     10,
			wantCoin: -2,
			wantUSD:  -20,
		},
		{
			name:     "flat contributes zero",
			pos:      Position{Side: PositionFlat, AmountCoin: 3, AmountUSD: 100, HasAmountUSD: true},
			mark:     10,
			wantCoin: 0,
			wantUSD:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pos.SignedCoin(); got != tt.wantCoin {
				t.Errorf("SignedCoin: ожидали %v, получили %v", tt.wantCoin, got)
			}
			if got := tt.pos.SignedUSD(tt.mark); got != tt.wantUSD {
				t.Errorf("SignedUSD: ожидали %v, получили %v", tt.wantUSD, got)
			}
		})
	}
}

func TestCoinExposure_Participants(t *testing.T) {
	exp := CoinExposure{
		Coin: "BTC",
		PerVenue: map[string]Position{
			"okx":     {Side: PositionShort, AmountCoin: 0.4},
			"binance": {Side: PositionLong, AmountCoin: 1.0},
			"kraken":  {Side: PositionFlat},
			"dydx":    {Side: PositionLong, AmountCoin: 0},
		},
	}

	got := exp.Participants()
	want := []string{"binance", "okx"}
	if len(got) != len(want) {
		t.Fatalf("ожидали %v, получили %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("participants[%d]: ожидали %s, получили %s", i, want[i], got[i])
		}
	}
}

// ============ OrderRecord Tests ============

func TestOrderRecord_JSONFieldNames(t *testing.T) {
	rec := OrderRecord{
		ID:               "id-1",
		Datetime:         time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Ts:               1705314600000,
		Context:          ContextBalancing,
		ParentID:         "event-1",
		ExchangeOrderID:  "123",
		ClientID:         "api_balancing_0123456789abcdef0123",
		Type:             OrderTypeGTC,
		Status:           OrderStatusProcessing,
		Exchange:         "binance",
		Side:             OrderSideSell,
		Symbol:           "BTCUSDT",
		ExpectPrice:      60000,
		ExpectAmountCoin: 0.3,
		ExpectAmountUSD:  18000,
		ExpectFee:        9,
		FactualFee:       0.0005,
		OrderPlaceTime:   42,
		Env:              "prod",
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("ошибка сериализации: %v", err)
	}
	jsonStr := string(data)

	fields := []string{
		`"parent_id":"event-1"`, `"exchange_order_id":"123"`, `"client_id"`,
		`"expect_amount_usd":18000`, `"factual_price":0`, `"factual_amount_coin":0`,
		`"factual_amount_usd":0`, `"factual_fee":0.0005`, `"order_place_time":42`,
		`"context":"balancing"`, `"status":"Processing"`,
	}
	for _, f := range fields {
		if !strings.Contains(jsonStr, f) {
			t.Errorf("поле %s должно быть в JSON: %s", f, jsonStr)
		}
	}

	// пустая ошибка не сериализуется
	if strings.Contains(jsonStr, `"error"`) {
		t.Error("пустое поле error не должно попадать в JSON")
	}
}

func TestOrderIntent_NotionalUSD(t *testing.T) {
	i := OrderIntent{SizeCoin: 0.3, LimitPrice: 60000}
	if got := i.NotionalUSD(); got != 18000 {
		t.Errorf("ожидали 18000, получили %v", got)
	}
}

// ============ Audit records ============

func TestBalanceCheckTrigger_JSON(t *testing.T) {
	trig := BalanceCheckTrigger{
		ParentID:    "event-1",
		Context:     ContextPostBalancing,
		Env:         "prod",
		ChatID:      "-100",
		TelegramBot: "token",
	}
	data, err := json.Marshal(trig)
	if err != nil {
		t.Fatalf("ошибка сериализации: %v", err)
	}
	want := `{"parent_id":"event-1","context":"post-balancing","env":"prod","chat_id":"-100","telegram_bot":"token"}`
	if string(data) != want {
		t.Errorf("ожидали %s, получили %s", want, data)
	}
}

func TestDisbalanceRecord_Participants(t *testing.T) {
	rec := DisbalanceRecord{ID: "e", CoinName: "BTC", Participants: []string{"binance", "okx"}}
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("ошибка сериализации: %v", err)
	}
	if !strings.Contains(string(data), `"participants":["binance","okx"]`) {
		t.Errorf("participants не сериализованы: %s", data)
	}
}

// ============ IterationReport Tests ============

func TestIterationReport_Duration(t *testing.T) {
	start := time.Now()
	r := &IterationReport{StartedAt: start}
	if r.Duration() != 0 {
		t.Error("незавершённая итерация должна иметь нулевую длительность")
	}

	r.FinishedAt = start.Add(1500 * time.Millisecond)
	if r.Duration() != 1500*time.Millisecond {
		t.Errorf("ожидали 1.5s, получили %v", r.Duration())
	}
}

func TestIterationReport_AddAlert(t *testing.T) {
	r := &IterationReport{}
	r.AddAlert(Alert{Type: AlertNoMarket, Severity: SeverityWarn, Coin: "XRP"})

	if len(r.Alerts) != 1 {
		t.Fatalf("ожидали 1 алерт, получили %d", len(r.Alerts))
	}
	if r.Alerts[0].Timestamp.IsZero() {
		t.Error("AddAlert должен проставить время")
	}
}

func BenchmarkOrderRecord_JSONMarshal(b *testing.B) {
	rec := OrderRecord{
		ID:       "id",
		ParentID: "parent",
		Exchange: "binance",
		Symbol:   "BTCUSDT",
		Side:     OrderSideBuy,
		Status:   OrderStatusProcessing,
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = json.Marshal(rec)
	}
}
