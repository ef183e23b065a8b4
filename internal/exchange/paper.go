package exchange

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

// KindPaper - бумажная биржа в памяти
const KindPaper = "paper"

// PaperSeed - начальное состояние бумажной биржи
type PaperSeed struct {
	Balance   float64               `yaml:"balance"`
	Leverage  float64               `yaml:"leverage"` // для расчёта свободной маржи, по умолчанию 10
	Positions []Position            `yaml:"positions"`
	Books     map[string]*OrderBook `yaml:"books"`  // symbol -> стакан
	Limits    map[string]*Limits    `yaml:"limits"` // symbol -> лимиты
}

// Операции бумажной биржи, для которых можно задать сбой
const (
	OpConnect      = "connect"
	OpPositions    = "positions"
	OpOrderBook    = "orderbook"
	OpBalance      = "balance"
	OpAvailable    = "available"
	OpCancelOrders = "cancel"
	OpCreateOrder  = "create"
)

// Paper - биржа в памяти для dry-run и тестов.
// Ордера исполняются сразу по цене запроса и сдвигают позицию.
type Paper struct {
	name     string
	markets  map[string]string
	takerFee float64

	mu         sync.Mutex
	connected  bool
	balance    float64
	leverage   float64
	positions  map[string]*Position
	books      map[string]*OrderBook
	limits     map[string]*Limits
	openOrders int
	orderSeq   int64
	orders     []OrderRequest
	failures   map[string]error
	ackDelay   time.Duration

	now func() time.Time
}

// NewPaper создаёт пустую бумажную биржу
func NewPaper(name string, markets map[string]string, takerFee float64) *Paper {
	m := make(map[string]string, len(markets))
	for coin, sym := range markets {
		m[strings.ToUpper(coin)] = sym
	}
	return &Paper{
		name:      name,
		markets:   m,
		takerFee:  takerFee,
		leverage:  10,
		positions: make(map[string]*Position),
		books:     make(map[string]*OrderBook),
		limits:    make(map[string]*Limits),
		failures:  make(map[string]error),
		now:       time.Now,
	}
}

// NewPaperFromConfig создаёт бумажную биржу из настроек
func NewPaperFromConfig(cfg VenueConfig) (*Paper, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("paper venue: name is required")
	}
	p := NewPaper(cfg.Name, cfg.Markets, cfg.TakerFee)
	if cfg.Paper == nil {
		return p, nil
	}

	seed := cfg.Paper
	p.balance = seed.Balance
	if seed.Leverage > 0 {
		p.leverage = seed.Leverage
	}
	for _, pos := range seed.Positions {
		p.SetPosition(pos)
	}
	for sym, book := range seed.Books {
		if book == nil {
			continue
		}
		b := *book
		b.Symbol = sym
		p.SetOrderBook(&b)
	}
	for sym, l := range seed.Limits {
		if l == nil {
			continue
		}
		lim := *l
		lim.Symbol = sym
		p.SetLimits(&lim)
	}
	return p, nil
}

// ============ Управление состоянием ============

// SetPosition заменяет позицию по символу
func (p *Paper) SetPosition(pos Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := pos
	c.Size = math.Abs(c.Size)
	p.positions[c.Symbol] = &c
}

// SetOrderBook заменяет стакан по символу
func (p *Paper) SetOrderBook(book *OrderBook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.books[book.Symbol] = book
}

// SetLimits задаёт лимиты по символу
func (p *Paper) SetLimits(l *Limits) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limits[l.Symbol] = l
}

// SetBalance задаёт баланс
func (p *Paper) SetBalance(balance float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balance = balance
}

// SetFailure задаёт ошибку для операции (nil снимает сбой)
func (p *Paper) SetFailure(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, op)
		return
	}
	p.failures[op] = err
}

// SetClock подменяет часы биржи
func (p *Paper) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

// SetAckDelay задаёт задержку подтверждения ордера
func (p *Paper) SetAckDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ackDelay = d
}

// AddOpenOrders добавляет висящие ордера (для проверки CancelAllOrders)
func (p *Paper) AddOpenOrders(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openOrders += n
}

// OpenOrders - количество висящих ордеров
func (p *Paper) OpenOrders() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openOrders
}

// Orders - копия принятых ордеров
func (p *Paper) Orders() []OrderRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]OrderRequest, len(p.orders))
	copy(out, p.orders)
	return out
}

// ============ Venue ============

func (p *Paper) GetName() string { return p.name }

func (p *Paper) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx, OpConnect, false); err != nil {
		return err
	}
	p.connected = true
	return nil
}

func (p *Paper) GetPositions(ctx context.Context) (map[string]*Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx, OpPositions, true); err != nil {
		return nil, err
	}

	out := make(map[string]*Position, len(p.positions))
	for sym, pos := range p.positions {
		if pos.Size == 0 {
			continue
		}
		c := *pos
		out[sym] = &c
	}
	return out, nil
}

func (p *Paper) GetOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx, OpOrderBook, true); err != nil {
		return nil, err
	}

	book, ok := p.books[symbol]
	if !ok {
		return nil, p.wrap("unknown_symbol", fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol))
	}

	out := &OrderBook{Symbol: symbol, Timestamp: p.now()}
	out.Bids = truncateLevels(book.Bids, depth)
	out.Asks = truncateLevels(book.Asks, depth)
	return out, nil
}

func truncateLevels(levels []PriceLevel, depth int) []PriceLevel {
	n := len(levels)
	if depth > 0 && depth < n {
		n = depth
	}
	out := make([]PriceLevel, n)
	copy(out, levels[:n])
	return out
}

func (p *Paper) GetBalance(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx, OpBalance, true); err != nil {
		return 0, err
	}
	return p.balance, nil
}

// GetAvailableBalance - баланс минус маржа под открытые позиции
func (p *Paper) GetAvailableBalance(ctx context.Context, side string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx, OpAvailable, true); err != nil {
		return 0, err
	}

	var used float64
	for _, pos := range p.positions {
		price := pos.EntryPrice
		if book, ok := p.books[pos.Symbol]; ok && !book.IsEmpty() {
			price = (book.BestBid() + book.BestAsk()) / 2
		}
		used += pos.Size * price / p.leverage
	}
	return math.Max(p.balance-used, 0), nil
}

func (p *Paper) CancelAllOrders(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx, OpCancelOrders, true); err != nil {
		return err
	}
	p.openOrders = 0
	return nil
}

// CreateOrder исполняет ордер целиком по цене запроса
func (p *Paper) CreateOrder(ctx context.Context, req OrderRequest) (*OrderAck, error) {
	p.mu.Lock()
	if err := p.check(ctx, OpCreateOrder, true); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if req.Size <= 0 {
		p.mu.Unlock()
		return nil, p.wrap("invalid_size", fmt.Errorf("invalid order size %v", req.Size))
	}
	if l, ok := p.limits[req.Symbol]; ok && req.Size < l.MinOrderQty {
		p.mu.Unlock()
		return nil, p.wrap("min_size", fmt.Errorf("size %v below minimum %v", req.Size, l.MinOrderQty))
	}

	price := req.Price
	if price <= 0 {
		if book, ok := p.books[req.Symbol]; ok {
			price = book.PriceAtLevel(req.Side, 1)
		}
	}
	p.applyFill(req.Symbol, req.Side, req.Size, price)

	p.orderSeq++
	p.orders = append(p.orders, req)
	id := strconv.FormatInt(p.orderSeq, 10)
	delay := p.ackDelay
	now := p.now
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, p.wrap("timeout", ctx.Err())
		}
	}

	return &OrderAck{ExchangeOrderID: id, Timestamp: now(), Price: price}, nil
}

// applyFill сдвигает позицию на исполненный объём. Вызывается под p.mu.
func (p *Paper) applyFill(symbol, side string, size, price float64) {
	pos, ok := p.positions[symbol]
	if !ok {
		pos = &Position{Symbol: symbol}
		p.positions[symbol] = pos
	}

	signed := pos.Size
	if pos.Side == SideShort {
		signed = -signed
	}
	if side == SideBuy {
		signed += size
	} else {
		signed -= size
	}

	switch {
	case signed > 0:
		pos.Side = SideLong
	case signed < 0:
		pos.Side = SideShort
	default:
		pos.Side = ""
	}
	pos.Size = math.Abs(signed)
	pos.HasSizeUSD = false
	pos.SizeUSD = 0
	if price > 0 {
		pos.EntryPrice = price
	}
}

func (p *Paper) Markets() map[string]string {
	out := make(map[string]string, len(p.markets))
	for k, v := range p.markets {
		out[k] = v
	}
	return out
}

func (p *Paper) GetLimits(symbol string) (*Limits, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limits[symbol]
	if !ok {
		return &Limits{Symbol: symbol}, nil
	}
	c := *l
	return &c, nil
}

func (p *Paper) TakerFee() float64 { return p.takerFee }

func (p *Paper) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return nil
}

// check проверяет контекст, сессию и заданные сбои. Вызывается под p.mu.
func (p *Paper) check(ctx context.Context, op string, needSession bool) error {
	if err := ctx.Err(); err != nil {
		return p.wrap("context", err)
	}
	if err, ok := p.failures[op]; ok {
		return p.wrap(op, err)
	}
	if needSession && !p.connected {
		return p.wrap("session", ErrNotConnected)
	}
	return nil
}

func (p *Paper) wrap(code string, err error) error {
	return NewExchangeError(p.name, code, err)
}
