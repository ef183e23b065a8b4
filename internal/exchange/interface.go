package exchange

import (
	"context"
	"errors"
	"time"
)

// Venue определяет минимальный набор возможностей биржи, нужный контуру балансировки.
// Протоколы конкретных бирж (подпись, REST/WS форматы) живут в адаптерах,
// которые регистрируются через Register.
type Venue interface {
	// GetName возвращает имя биржи
	GetName() string

	// Connect открывает сессию (авторизация, загрузка рынков).
	// Вызывается в начале каждой итерации, сессия не переживает итерацию.
	Connect(ctx context.Context) error

	// GetPositions возвращает открытые позиции: symbol -> позиция
	GetPositions(ctx context.Context) (map[string]*Position, error)

	// GetOrderBook получает стакан с заданной глубиной
	GetOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error)

	// GetBalance - баланс фьючерсного аккаунта в USD
	GetBalance(ctx context.Context) (float64, error)

	// GetAvailableBalance - свободная маржа в USD под ордер указанной стороны
	GetAvailableBalance(ctx context.Context, side string) (float64, error)

	// CancelAllOrders снимает все висящие ордера
	CancelAllOrders(ctx context.Context) error

	// CreateOrder размещает ордер. Ответ без id ордера - ошибка ErrNoOrderID.
	CreateOrder(ctx context.Context, req OrderRequest) (*OrderAck, error)

	// Markets - таблица coin -> symbol
	Markets() map[string]string

	// GetLimits - шаг лота и минимальный размер для символа
	GetLimits(symbol string) (*Limits, error)

	// TakerFee - комиссия тейкера (доля, 0.0005 = 0.05%)
	TakerFee() float64

	// Close закрывает сессию
	Close() error
}

// OrderBook представляет стакан ордеров
type OrderBook struct {
	Symbol    string       `json:"symbol" yaml:"symbol"`
	Bids      []PriceLevel `json:"bids" yaml:"bids"` // по убыванию цены
	Asks      []PriceLevel `json:"asks" yaml:"asks"` // по возрастанию цены
	Timestamp time.Time    `json:"timestamp" yaml:"-"`
}

// PriceLevel представляет уровень цены в стакане
type PriceLevel struct {
	Price  float64 `json:"price" yaml:"price"`
	Volume float64 `json:"volume" yaml:"volume"`
}

// BestBid - лучшая цена покупки, 0 если сторона пустая
func (ob *OrderBook) BestBid() float64 {
	if ob == nil || len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk - лучшая цена продажи, 0 если сторона пустая
func (ob *OrderBook) BestAsk() float64 {
	if ob == nil || len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// IsEmpty - в стакане нет хотя бы одной стороны
func (ob *OrderBook) IsEmpty() bool {
	return ob.BestBid() <= 0 || ob.BestAsk() <= 0
}

// PriceAtLevel возвращает цену на уровне level (1 = лучшая) для стороны ордера:
// buy берёт asks, sell берёт bids. Если стакан мельче, берётся самый глубокий уровень.
func (ob *OrderBook) PriceAtLevel(side string, level int) float64 {
	if ob == nil {
		return 0
	}
	levels := ob.Bids
	if side == SideBuy {
		levels = ob.Asks
	}
	if len(levels) == 0 {
		return 0
	}
	if level < 1 {
		level = 1
	}
	if level > len(levels) {
		level = len(levels)
	}
	return levels[level-1].Price
}

// Position - позиция в формате биржи
type Position struct {
	Symbol     string  `json:"symbol" yaml:"symbol"`
	Side       string  `json:"side" yaml:"side"` // "long" или "short"
	Size       float64 `json:"size" yaml:"size"` // в монетах, >= 0
	SizeUSD    float64 `json:"size_usd" yaml:"size_usd"`
	HasSizeUSD bool    `json:"has_size_usd" yaml:"has_size_usd"`
	EntryPrice float64 `json:"entry_price" yaml:"entry_price"`
}

// OrderRequest - параметры ордера
type OrderRequest struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"` // "buy" или "sell"
	Type     string  `json:"type"` // GTC или GTT
	Size     float64 `json:"size"`
	Price    float64 `json:"price"`
	ClientID string  `json:"client_id"`
}

// OrderAck - подтверждение биржи о приёме ордера
type OrderAck struct {
	ExchangeOrderID string    `json:"exchange_order_id"`
	Timestamp       time.Time `json:"timestamp"` // время приёма по часам биржи
	Price           float64   `json:"price"`
}

// Limits содержит торговые ограничения биржи
type Limits struct {
	Symbol      string  `json:"symbol" yaml:"symbol"`
	MinOrderQty float64 `json:"min_order_qty" yaml:"min_order_qty"` // минимальный размер ордера
	QtyStep     float64 `json:"qty_step" yaml:"qty_step"`           // шаг изменения количества (lot size)
	PriceStep   float64 `json:"price_step" yaml:"price_step"`       // шаг цены (tick size)
}

// ExchangeError представляет ошибку от биржи
type ExchangeError struct {
	Exchange string
	Code     string
	Message  string
	Original error
}

func (e *ExchangeError) Error() string {
	if e.Original != nil && e.Message == "" {
		return e.Exchange + ": " + e.Original.Error()
	}
	return e.Exchange + ": " + e.Message
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *ExchangeError) Unwrap() error {
	return e.Original
}

// NewExchangeError оборачивает ошибку биржи
func NewExchangeError(venue, code string, err error) *ExchangeError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &ExchangeError{Exchange: venue, Code: code, Message: msg, Original: err}
}

var (
	// ErrNoOrderID - биржа ответила без id ордера
	ErrNoOrderID = errors.New("no order id assigned")

	// ErrNotConnected - вызов до Connect или после Close
	ErrNotConnected = errors.New("venue session is not connected")

	// ErrUnknownSymbol - символ не торгуется на бирже
	ErrUnknownSymbol = errors.New("unknown symbol")
)

// Side constants for orders
const (
	SideBuy  = "buy"  // покупка (открытие long или закрытие short)
	SideSell = "sell" // продажа (открытие short или закрытие long)
)

// Side constants for positions
const (
	SideLong  = "long"
	SideShort = "short"
)

// Типы ордеров по времени жизни
const (
	OrderTypeGTC = "GTC"
	OrderTypeGTT = "GTT"
)
