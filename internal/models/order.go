package models

import "time"

// Стороны ордера
const (
	OrderSideBuy  = "buy"
	OrderSideSell = "sell"
)

// Статусы записи об ордере. Processing означает "отправлен, ждёт сверки"
// внешним процессом, Failed - биржа не приняла ордер.
const (
	OrderStatusProcessing = "Processing"
	OrderStatusFailed     = "Failed"
)

// Типы ордеров
const (
	OrderTypeGTC = "GTC"
	OrderTypeGTT = "GTT"
)

// Контексты записей аудита
const (
	ContextBalancing     = "balancing"
	ContextPostBalancing = "post-balancing"
)

// OrderIntent - план ордера на одной бирже в рамках события
type OrderIntent struct {
	Venue  string `json:"venue"`
	Coin   string `json:"coin"`
	Symbol string `json:"symbol"`
	Side   string `json:"side"`

	// RawSizeCoin - доля до округления, SizeCoin - после округления вниз до шага лота
	RawSizeCoin float64 `json:"raw_size_coin"`
	SizeCoin    float64 `json:"size_coin"`

	LimitPrice float64 `json:"limit_price"`
	TakerFee   float64 `json:"taker_fee"`
	OrderType  string  `json:"order_type"`
}

// NotionalUSD - ожидаемый объём ордера в USD
func (i OrderIntent) NotionalUSD() float64 {
	return i.SizeCoin * i.LimitPrice
}

// DroppedVenue - биржа, исключённая из события при планировании
type DroppedVenue struct {
	Venue       string  `json:"venue"`
	Symbol      string  `json:"symbol"`
	RawSizeCoin float64 `json:"raw_size_coin"`
	SizeCoin    float64 `json:"size_coin"`
	Reason      string  `json:"reason"`
}

// Причины исключения биржи
const (
	DropBelowMinSize       = "below_min_size"
	DropNoMarket           = "no_market"
	DropQuoteUnavailable   = "quote_unavailable"
	DropInsufficientMargin = "insufficient_available_balance"
)

// OrderRecord - запись аудита после попытки размещения.
// factual_* всегда нулевые: их заполняет внешняя сверка.
type OrderRecord struct {
	ID              string    `json:"id"`
	Datetime        time.Time `json:"datetime"`
	Ts              int64     `json:"ts"`
	Context         string    `json:"context"`
	ParentID        string    `json:"parent_id"`
	ExchangeOrderID string    `json:"exchange_order_id"`
	ClientID        string    `json:"client_id"`
	Type            string    `json:"type"`
	Status          string    `json:"status"`
	Exchange        string    `json:"exchange"`
	Side            string    `json:"side"`
	Symbol          string    `json:"symbol"`

	ExpectPrice      float64 `json:"expect_price"`
	ExpectAmountCoin float64 `json:"expect_amount_coin"`
	ExpectAmountUSD  float64 `json:"expect_amount_usd"`
	ExpectFee        float64 `json:"expect_fee"`

	FactualPrice      float64 `json:"factual_price"`
	FactualAmountCoin float64 `json:"factual_amount_coin"`
	FactualAmountUSD  float64 `json:"factual_amount_usd"`
	FactualFee        float64 `json:"factual_fee"`

	// OrderPlaceTime - латентность размещения в мс (время биржи - время отправки)
	OrderPlaceTime int64  `json:"order_place_time"`
	Error          string `json:"error,omitempty"`
	Env            string `json:"env"`
}
