package models

import "time"

// RebalanceEvent - одна попытка выровнять дисбаланс по монете.
// Создаётся при превышении порога, завершается публикацией записей аудита.
type RebalanceEvent struct {
	ID               string    `json:"id"`
	IterationID      string    `json:"iteration_id"`
	Coin             string    `json:"coin"`
	Side             string    `json:"side"` // buy, sell
	ThresholdUSD     float64   `json:"threshold_usd"`
	NetCoinAtTrigger float64   `json:"net_coin_at_trigger"`
	NetUSDAtTrigger  float64   `json:"net_usd_at_trigger"`
	MarkPrice        float64   `json:"mark_price"`
	Policy           string    `json:"policy"`
	CreatedAt        time.Time `json:"created_at"`
}

// DisbalanceRecord - запись аудита о сработавшем дисбалансе (id = id события)
type DisbalanceRecord struct {
	ID           string    `json:"id"`
	Datetime     time.Time `json:"datetime"`
	Ts           int64     `json:"ts"`
	CoinName     string    `json:"coin_name"`
	Side         string    `json:"side"`
	PositionCoin float64   `json:"position_coin"`
	PositionUSD  float64   `json:"position_usd"`
	Price        float64   `json:"price"`
	Threshold    float64   `json:"threshold"`
	Participants []string  `json:"participants"`
	Status       string    `json:"status"`
	Env          string    `json:"env"`
}

// BalanceCheckTrigger - запрос внешней повторной проверки балансов после балансировки
type BalanceCheckTrigger struct {
	ParentID    string `json:"parent_id"`
	Context     string `json:"context"`
	Env         string `json:"env"`
	ChatID      string `json:"chat_id"`
	TelegramBot string `json:"telegram_bot"`
}

// BalanceSnapshot - баланс и позиции одной биржи на момент итерации
type BalanceSnapshot struct {
	ID               string    `json:"id"`
	Datetime         time.Time `json:"datetime"`
	Ts               int64     `json:"ts"`
	Context          string    `json:"context"`
	ParentID         string    `json:"parent_id"`
	Exchange         string    `json:"exchange"`
	ExchangeBalance  float64   `json:"exchange_balance"`
	AvailableForBuy  float64   `json:"exchange_available_for_buy"`
	AvailableForSell float64   `json:"exchange_available_for_sell"`
	TotalPositionUSD float64   `json:"total_position_usd"`
	AbsPositionUSD   float64   `json:"abs_position_usd"`
	PositionsNum     int       `json:"positions_num"`
	CurrentMargin    float64   `json:"current_margin"`
	Env              string    `json:"env"`
}

// BalanceJump - резкое изменение нетто-экспозиции между итерациями
type BalanceJump struct {
	ID          string    `json:"id"`
	Datetime    time.Time `json:"datetime"`
	Ts          int64     `json:"ts"`
	ParentID    string    `json:"parent_id"`
	Coin        string    `json:"coin"`
	PreviousUSD float64   `json:"previous_usd"`
	CurrentUSD  float64   `json:"current_usd"`
	JumpUSD     float64   `json:"jump_usd"`
	LimitUSD    float64   `json:"limit_usd"`
	Env         string    `json:"env"`
}
