package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"balancer/internal/exchange"
	"balancer/internal/models"
)

// noIDVenue - биржа, которая принимает ордер, но не возвращает id
type noIDVenue struct {
	*exchange.Paper
}

func (v noIDVenue) CreateOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderAck, error) {
	return &exchange.OrderAck{Timestamp: time.Now()}, nil
}

// panicVenue - биржа, падающая при размещении
type panicVenue struct {
	*exchange.Paper
}

func (v panicVenue) CreateOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderAck, error) {
	panic("unexpected nil response")
}

func sellIntent(venue, symbol string) models.OrderIntent {
	return models.OrderIntent{
		Venue: venue, Coin: "BTC", Symbol: symbol, Side: models.OrderSideSell,
		RawSizeCoin: 0.3, SizeCoin: 0.3, TakerFee: 0.0005, OrderType: models.OrderTypeGTC,
	}
}

// ============================================================
// Тесты client id
// ============================================================

func TestNewClientID_Unique(t *testing.T) {
	const n = 1000
	ids := make([]string, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = NewClientID()
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, id := range ids {
		if !strings.HasPrefix(id, ClientIDPrefix) || len(id) != len(ClientIDPrefix)+20 {
			t.Fatalf("неверный формат client id: %s", id)
		}
		if seen[id] {
			t.Fatalf("повтор client id: %s", id)
		}
		seen[id] = true
	}
}

// ============================================================
// Тесты Dispatch
// ============================================================

func TestDispatch_AllPlaced(t *testing.T) {
	x := newPaper(t, "x", "BTCUSDT")
	y := newPaper(t, "y", "BTC-USDT-SWAP")
	connectAll(t, x, y)

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	x.SetClock(func() time.Time { return start.Add(25 * time.Millisecond) })
	y.SetClock(func() time.Time { return start.Add(40 * time.Millisecond) })

	d := NewDispatcher(1, time.Second)
	d.now = func() time.Time { return start }

	results := d.Dispatch(context.Background(), venueMap(x, y), []models.OrderIntent{
		sellIntent("x", "BTCUSDT"),
		sellIntent("y", "BTC-USDT-SWAP"),
	})

	if len(results) != 2 {
		t.Fatalf("ожидалось 2 результата, получено %d", len(results))
	}
	wantLatency := []int64{25, 40}
	for i, r := range results {
		if !r.OK() {
			t.Fatalf("%s: ордер не размещён: %v", r.Intent.Venue, r.Err)
		}
		if r.LatencyMs != wantLatency[i] {
			t.Errorf("%s: latency=%d, want %d", r.Intent.Venue, r.LatencyMs, wantLatency[i])
		}
		// продажа по bid на глубине 1
		if r.Intent.LimitPrice != 59990 {
			t.Errorf("%s: price=%v, want 59990", r.Intent.Venue, r.Intent.LimitPrice)
		}
	}
	if results[0].ClientID == results[1].ClientID {
		t.Error("client id должны различаться")
	}

	orders := x.Orders()
	if len(orders) != 1 || orders[0].ClientID != results[0].ClientID || orders[0].Size != 0.3 {
		t.Errorf("биржа получила %+v", orders)
	}
}

func TestDispatch_PriceAtDepthLevel(t *testing.T) {
	x := newPaper(t, "x", "BTCUSDT")
	x.SetOrderBook(&exchange.OrderBook{
		Symbol: "BTCUSDT",
		Bids: []exchange.PriceLevel{
			{Price: 59990, Volume: 1}, {Price: 59980, Volume: 1}, {Price: 59970, Volume: 1}, {Price: 59960, Volume: 1},
		},
		Asks: []exchange.PriceLevel{{Price: 60010, Volume: 1}},
	})
	connectAll(t, x)

	results := NewDispatcher(4, time.Second).Dispatch(context.Background(), venueMap(x), []models.OrderIntent{sellIntent("x", "BTCUSDT")})
	if !results[0].OK() {
		t.Fatal(results[0].Err)
	}
	if got := x.Orders()[0].Price; got != 59960 {
		t.Errorf("цена ордера %v, want 59960 (4-й уровень bids)", got)
	}
}

// Ошибка одной биржи не отменяет остальные
func TestDispatch_FailureIsolation(t *testing.T) {
	x := newPaper(t, "x", "BTCUSDT")
	y := newPaper(t, "y", "BTC-USDT-SWAP")
	z := newPaper(t, "z", "BTC_USDT")
	p := newPaper(t, "p", "BTC-PERP")
	y.SetFailure(exchange.OpCreateOrder, errors.New("insufficient margin"))
	connectAll(t, x, y, z, p)

	venues := venueMap(x, y)
	venues["z"] = noIDVenue{z}
	venues["p"] = panicVenue{p}

	intents := []models.OrderIntent{
		sellIntent("x", "BTCUSDT"),
		sellIntent("y", "BTC-USDT-SWAP"),
		sellIntent("z", "BTC_USDT"),
		sellIntent("p", "BTC-PERP"),
		sellIntent("gone", "BTCUSDT"),
	}
	results := NewDispatcher(1, time.Second).Dispatch(context.Background(), venues, intents)

	if !results[0].OK() {
		t.Errorf("x должна разместиться несмотря на сбои соседей: %v", results[0].Err)
	}

	for _, r := range results[1:] {
		if r.OK() {
			t.Errorf("%s: ожидалась ошибка", r.Intent.Venue)
			continue
		}
		if !errors.Is(r.Err, ErrOrderPlacementFailed) {
			t.Errorf("%s: ошибка не классифицирована: %v", r.Intent.Venue, r.Err)
		}
		var perr *PlacementError
		if !errors.As(r.Err, &perr) || perr.Venue != r.Intent.Venue {
			t.Errorf("%s: нет PlacementError: %v", r.Intent.Venue, r.Err)
		}
	}

	if !errors.Is(results[2].Err, exchange.ErrNoOrderID) {
		t.Errorf("z: ожидалась ErrNoOrderID, got %v", results[2].Err)
	}
	if !strings.Contains(results[3].Err.Error(), "panic") {
		t.Errorf("p: паника должна стать ошибкой размещения: %v", results[3].Err)
	}
}

// Паника при размещении не теряет client id и время попытки
func TestDispatch_PanicKeepsClientID(t *testing.T) {
	p := newPaper(t, "p", "BTC-PERP")
	connectAll(t, p)

	intent := sellIntent("p", "BTC-PERP")
	results := NewDispatcher(1, time.Second).Dispatch(context.Background(),
		map[string]exchange.Venue{"p": panicVenue{p}}, []models.OrderIntent{intent})

	r := results[0]
	if r.OK() || !errors.Is(r.Err, ErrOrderPlacementFailed) {
		t.Fatalf("ожидалась ошибка размещения, got %v", r.Err)
	}
	if !strings.HasPrefix(r.ClientID, ClientIDPrefix) {
		t.Errorf("client id потерян: %q", r.ClientID)
	}
	if r.StartedAt.IsZero() {
		t.Error("время попытки потеряно")
	}
	if r.Intent.Venue != "p" || r.Intent.SizeCoin != intent.SizeCoin {
		t.Errorf("intent = %+v", r.Intent)
	}
}

func TestDispatch_Empty(t *testing.T) {
	results := NewDispatcher(1, time.Second).Dispatch(context.Background(), nil, nil)
	if len(results) != 0 {
		t.Errorf("ожидался пустой результат, got %d", len(results))
	}
}
