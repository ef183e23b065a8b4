package bot

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"balancer/internal/exchange"
	"balancer/internal/models"
	"balancer/internal/symbols"
	"balancer/pkg/utils"
)

// goodTillTimeVenues - биржи, принимающие только ордера с временем жизни
var goodTillTimeVenues = map[string]bool{
	"dydx": true,
}

// OrderTypeFor возвращает тип ордера для биржи
func OrderTypeFor(venue string) string {
	if goodTillTimeVenues[strings.ToLower(venue)] {
		return models.OrderTypeGTT
	}
	return models.OrderTypeGTC
}

// ParticipantSelectionPolicy выбирает биржи и размеры ордеров для события.
// Биржи, которые не могут участвовать, возвращаются в dropped с причиной.
type ParticipantSelectionPolicy interface {
	Name() string
	Select(ctx context.Context, event *models.RebalanceEvent, exp models.CoinExposure, venues map[string]exchange.Venue) (intents []models.OrderIntent, dropped []models.DroppedVenue)
}

// Plan - событие балансировки и план ордеров по нему
type Plan struct {
	Event   models.RebalanceEvent
	Intents []models.OrderIntent
	Dropped []models.DroppedVenue
}

// Planner строит события балансировки для монет выше порога
type Planner struct {
	policy       ParticipantSelectionPolicy
	thresholdUSD float64

	// checkAvailable - исключать биржи без свободной маржи под ордер
	checkAvailable bool
	venueTimeout   time.Duration

	newID func() string
	now   func() time.Time
}

// NewPlanner создаёт планировщик
func NewPlanner(policy ParticipantSelectionPolicy, thresholdUSD float64, checkAvailable bool, venueTimeout time.Duration) *Planner {
	if policy == nil {
		policy = EqualSplit{}
	}
	return &Planner{
		policy:         policy,
		thresholdUSD:   thresholdUSD,
		checkAvailable: checkAvailable,
		venueTimeout:   venueTimeout,
		newID:          func() string { return uuid.NewString() },
		now:            time.Now,
	}
}

// Policy возвращает политику выбора участников
func (p *Planner) Policy() ParticipantSelectionPolicy { return p.policy }

// SideFor - сторона ордера: чистый лонг продаём, чистый шорт докупаем
func SideFor(netUSD float64) string {
	if netUSD > 0 {
		return models.OrderSideSell
	}
	return models.OrderSideBuy
}

// PlanEvent создаёт событие для монеты и план ордеров.
// Событие создаётся всегда, даже если все биржи исключены.
func (p *Planner) PlanEvent(ctx context.Context, iterationID string, exp models.CoinExposure, venues map[string]exchange.Venue) Plan {
	event := models.RebalanceEvent{
		ID:               p.newID(),
		IterationID:      iterationID,
		Coin:             exp.Coin,
		Side:             SideFor(exp.NetUSD),
		ThresholdUSD:     p.thresholdUSD,
		NetCoinAtTrigger: exp.NetCoin,
		NetUSDAtTrigger:  exp.NetUSD,
		MarkPrice:        exp.MarkPrice,
		Policy:           p.policy.Name(),
		CreatedAt:        p.now().UTC(),
	}

	intents, dropped := p.policy.Select(ctx, &event, exp, venues)

	if p.checkAvailable && len(intents) > 0 {
		intents, dropped = p.filterByAvailable(ctx, event, intents, dropped, venues)
	}

	for _, d := range dropped {
		IntentsDropped.WithLabelValues(d.Venue, d.Reason).Inc()
	}
	EventsTriggered.WithLabelValues(event.Coin, event.Side).Inc()

	return Plan{Event: event, Intents: intents, Dropped: dropped}
}

// filterByAvailable исключает биржи, у которых свободная маржа меньше объёма ордера
func (p *Planner) filterByAvailable(ctx context.Context, event models.RebalanceEvent, intents []models.OrderIntent, dropped []models.DroppedVenue, venues map[string]exchange.Venue) ([]models.OrderIntent, []models.DroppedVenue) {
	available := make([]float64, len(intents))
	errs := make([]error, len(intents))

	var wg sync.WaitGroup
	for i, in := range intents {
		wg.Add(1)
		go func(i int, in models.OrderIntent) {
			defer wg.Done()
			vctx, cancel := withTimeout(ctx, p.venueTimeout)
			defer cancel()
			available[i], errs[i] = venues[in.Venue].GetAvailableBalance(vctx, in.Side)
		}(i, in)
	}
	wg.Wait()

	kept := intents[:0:0]
	for i, in := range intents {
		notional := utils.MulExact(in.SizeCoin, event.MarkPrice)
		if errs[i] != nil || available[i] < notional {
			dropped = append(dropped, models.DroppedVenue{
				Venue:       in.Venue,
				Symbol:      in.Symbol,
				RawSizeCoin: in.RawSizeCoin,
				SizeCoin:    in.SizeCoin,
				Reason:      models.DropInsufficientMargin,
			})
			continue
		}
		kept = append(kept, in)
	}
	return kept, dropped
}

// newIntent заполняет общие поля плана ордера
func newIntent(event *models.RebalanceEvent, venue exchange.Venue, symbol string, raw, size float64) models.OrderIntent {
	return models.OrderIntent{
		Venue:       venue.GetName(),
		Coin:        event.Coin,
		Symbol:      symbol,
		Side:        event.Side,
		RawSizeCoin: raw,
		SizeCoin:    size,
		TakerFee:    venue.TakerFee(),
		OrderType:   OrderTypeFor(venue.GetName()),
	}
}

// sizeForVenue округляет размер вниз до шага лота и проверяет минимум.
// ok=false если после округления размер меньше минимума биржи.
func sizeForVenue(venue exchange.Venue, symbol string, raw float64) (float64, bool) {
	limits, err := venue.GetLimits(symbol)
	if err != nil || limits == nil {
		limits = &exchange.Limits{Symbol: symbol}
	}
	size := utils.RoundToLotSize(raw, limits.QtyStep)
	if size <= 0 || size < limits.MinOrderQty {
		return size, false
	}
	return size, true
}

// ============================================================
// EqualSplit: |netCoin| делится поровну между биржами с позицией
// ============================================================

// EqualSplit делит объём поровну между всеми биржами, где есть позиция по монете.
// Биржа с долей меньше минимума исключается, остальные участвуют.
type EqualSplit struct{}

func (EqualSplit) Name() string { return "equal_split" }

func (EqualSplit) Select(ctx context.Context, event *models.RebalanceEvent, exp models.CoinExposure, venues map[string]exchange.Venue) ([]models.OrderIntent, []models.DroppedVenue) {
	var participants []string
	var dropped []models.DroppedVenue

	for _, name := range exp.Participants() {
		if _, ok := venues[name]; ok {
			participants = append(participants, name)
			continue
		}
		dropped = append(dropped, models.DroppedVenue{Venue: name, Symbol: exp.PerVenue[name].Symbol, Reason: models.DropNoMarket})
	}
	if len(participants) == 0 {
		return nil, dropped
	}

	raw := utils.DivExact(math.Abs(exp.NetCoin), float64(len(participants)))

	var intents []models.OrderIntent
	for _, name := range participants {
		venue := venues[name]
		symbol := exp.PerVenue[name].Symbol
		if symbol == "" {
			symbol, _ = symbols.Symbol(venue.Markets(), exp.Coin)
		}

		size, ok := sizeForVenue(venue, symbol, raw)
		if !ok {
			dropped = append(dropped, models.DroppedVenue{
				Venue:       name,
				Symbol:      symbol,
				RawSizeCoin: raw,
				SizeCoin:    0,
				Reason:      models.DropBelowMinSize,
			})
			continue
		}
		intents = append(intents, newIntent(event, venue, symbol, raw, size))
	}
	return intents, dropped
}

// ============================================================
// BestPrice: весь объём на одну биржу с лучшей ценой
// ============================================================

// BestPrice отправляет весь объём на биржу с лучшей ценой верха стакана:
// минимальный ask для покупки, максимальный bid для продажи.
// Рассматриваются биржи, где монета торгуется и минимум ордера допускает весь объём.
type BestPrice struct {
	VenueTimeout time.Duration
}

func (BestPrice) Name() string { return "best_price" }

type quote struct {
	venue  string
	symbol string
	size   float64
	price  float64
	err    error
}

func (b BestPrice) Select(ctx context.Context, event *models.RebalanceEvent, exp models.CoinExposure, venues map[string]exchange.Venue) ([]models.OrderIntent, []models.DroppedVenue) {
	amount := math.Abs(exp.NetCoin)

	names := make([]string, 0, len(venues))
	for name := range venues {
		names = append(names, name)
	}
	sort.Strings(names)

	var dropped []models.DroppedVenue
	var eligible []quote
	for _, name := range names {
		symbol, ok := symbols.Symbol(venues[name].Markets(), exp.Coin)
		if !ok {
			continue
		}
		size, ok := sizeForVenue(venues[name], symbol, amount)
		if !ok {
			dropped = append(dropped, models.DroppedVenue{
				Venue: name, Symbol: symbol, RawSizeCoin: amount, Reason: models.DropBelowMinSize,
			})
			continue
		}
		eligible = append(eligible, quote{venue: name, symbol: symbol, size: size})
	}

	// верх стакана запрашивается у всех кандидатов параллельно
	var wg sync.WaitGroup
	for i := range eligible {
		wg.Add(1)
		go func(q *quote) {
			defer wg.Done()
			vctx, cancel := withTimeout(ctx, b.VenueTimeout)
			defer cancel()

			book, err := venues[q.venue].GetOrderBook(vctx, q.symbol, 1)
			if err != nil {
				q.err = err
				return
			}
			q.price = book.PriceAtLevel(event.Side, 1)
		}(&eligible[i])
	}
	wg.Wait()

	var best *quote
	for i := range eligible {
		q := &eligible[i]
		if q.err != nil || q.price <= 0 {
			dropped = append(dropped, models.DroppedVenue{
				Venue: q.venue, Symbol: q.symbol, RawSizeCoin: amount, SizeCoin: q.size, Reason: models.DropQuoteUnavailable,
			})
			continue
		}
		if best == nil || betterPrice(event.Side, q.price, best.price) {
			best = q
		}
	}
	if best == nil {
		return nil, dropped
	}

	intent := newIntent(event, venues[best.venue], best.symbol, amount, best.size)
	return []models.OrderIntent{intent}, dropped
}

// betterPrice: для покупки ниже лучше, для продажи выше
func betterPrice(side string, candidate, current float64) bool {
	if side == models.OrderSideBuy {
		return candidate < current
	}
	return candidate > current
}

// NewParticipantPolicy создаёт политику по имени из конфига
func NewParticipantPolicy(name string, venueTimeout time.Duration) ParticipantSelectionPolicy {
	if name == "best_price" {
		return BestPrice{VenueTimeout: venueTimeout}
	}
	return EqualSplit{}
}

// withTimeout - контекст с таймаутом, если он задан
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
