package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"balancer/internal/exchange"
	"balancer/internal/models"
	"balancer/pkg/utils"
)

// ClientIDPrefix - префикс client id балансирующих ордеров
const ClientIDPrefix = "api_balancing_"

// NewClientID создаёт уникальный client id: префикс + 20 hex символов UUIDv4
func NewClientID() string {
	return ClientIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}

// PlacementResult - результат размещения одного ордера.
// Каждая задача пишет только в свой слот, слияние после барьера.
type PlacementResult struct {
	Intent    models.OrderIntent
	ClientID  string
	Ack       *exchange.OrderAck
	StartedAt time.Time
	LatencyMs int64
	Err       error
}

// OK - ордер принят биржей
func (r PlacementResult) OK() bool {
	return r.Err == nil && r.Ack != nil && r.Ack.ExchangeOrderID != ""
}

// Dispatcher - ПАРАЛЛЕЛЬНОЕ размещение ордеров события
//
// - одна задача на биржу, ошибка одной не отменяет остальные
// - общее время = max(латентность бирж), а не сумма
// - результаты собираются только после завершения всех задач
type Dispatcher struct {
	depthLevel   int
	venueTimeout time.Duration

	clientID func() string
	now      func() time.Time
	log      *utils.Logger
}

// NewDispatcher создаёт диспетчер.
// depthLevel - уровень стакана, с которого берётся цена исполнения.
func NewDispatcher(depthLevel int, venueTimeout time.Duration) *Dispatcher {
	if depthLevel < 1 {
		depthLevel = 1
	}
	return &Dispatcher{
		depthLevel:   depthLevel,
		venueTimeout: venueTimeout,
		clientID:     NewClientID,
		now:          time.Now,
		log:          utils.L().WithComponent("dispatcher"),
	}
}

// Dispatch размещает ордера всех бирж события параллельно и ждёт всех.
// Порядок результатов совпадает с порядком intents.
func (d *Dispatcher) Dispatch(ctx context.Context, venues map[string]exchange.Venue, intents []models.OrderIntent) []PlacementResult {
	results := make([]PlacementResult, len(intents))

	var wg sync.WaitGroup
	for i := range intents {
		wg.Add(1)
		// client id выдаётся до размещения: запись об ордере получает его и при панике
		results[i] = PlacementResult{Intent: intents[i], ClientID: d.clientID(), StartedAt: d.now()}
		go func(slot *PlacementResult) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slot.Ack = nil
					slot.Err = &PlacementError{Venue: slot.Intent.Venue, Symbol: slot.Intent.Symbol, Err: fmt.Errorf("panic: %v", r)}
				}
			}()
			d.place(ctx, venues[slot.Intent.Venue], slot)
		}(&results[i])
	}
	wg.Wait()

	for _, r := range results {
		status := models.OrderStatusProcessing
		if !r.OK() {
			status = models.OrderStatusFailed
		}
		RecordOrder(r.Intent.Venue, status, r.LatencyMs)
	}
	return results
}

// place размещает один ордер в слот res: цена из стакана на заданной глубине, затем CreateOrder
func (d *Dispatcher) place(ctx context.Context, venue exchange.Venue, res *PlacementResult) {
	intent := res.Intent
	log := d.log.With(utils.Venue(intent.Venue), utils.Coin(intent.Coin), utils.ClientID(res.ClientID))

	fail := func(err error) {
		res.Err = &PlacementError{Venue: intent.Venue, Symbol: intent.Symbol, Err: err}
		log.Error("order placement failed", utils.Err(err))
	}

	if venue == nil {
		fail(fmt.Errorf("venue %s is not active", intent.Venue))
		return
	}

	vctx, cancel := withTimeout(ctx, d.venueTimeout)
	defer cancel()

	if res.Intent.LimitPrice <= 0 {
		book, err := venue.GetOrderBook(vctx, intent.Symbol, d.depthLevel)
		if err != nil {
			fail(fmt.Errorf("orderbook: %w", err))
			return
		}
		price := book.PriceAtLevel(intent.Side, d.depthLevel)
		if price <= 0 {
			fail(fmt.Errorf("orderbook for %s is empty", intent.Symbol))
			return
		}
		res.Intent.LimitPrice = price
	}

	req := exchange.OrderRequest{
		Symbol:   intent.Symbol,
		Side:     intent.Side,
		Type:     intent.OrderType,
		Size:     intent.SizeCoin,
		Price:    res.Intent.LimitPrice,
		ClientID: res.ClientID,
	}

	res.StartedAt = d.now()
	ack, err := venue.CreateOrder(vctx, req)
	if err != nil {
		fail(err)
		return
	}
	if ack == nil || ack.ExchangeOrderID == "" {
		fail(exchange.ErrNoOrderID)
		return
	}
	res.Ack = ack

	// латентность считается по времени биржи
	res.LatencyMs = utils.ElapsedMillis(res.StartedAt, ack.Timestamp)

	log.Info("order placed",
		utils.OrderID(ack.ExchangeOrderID),
		utils.Side(intent.Side),
		utils.Size(intent.SizeCoin),
		utils.Price(res.Intent.LimitPrice),
		utils.Latency(res.LatencyMs),
	)
}
