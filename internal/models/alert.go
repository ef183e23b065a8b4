package models

import "time"

// Alert - человекочитаемое предупреждение для оператора
type Alert struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Type      string                 `json:"type"`
	Severity  string                 `json:"severity"` // info, warn, error
	Coin      string                 `json:"coin,omitempty"`
	Venue     string                 `json:"venue,omitempty"`
	EventID   string                 `json:"event_id,omitempty"`
	Message   string                 `json:"message"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
}

// Типы алертов
const (
	AlertOrderMistake        = "ORDER_MISTAKE"        // биржа не приняла ордер
	AlertNoMarket            = "NO_MARKET"            // нет стакана для mark price
	AlertVenueUnavailable    = "VENUE_UNAVAILABLE"    // биржа пропущена в фазе
	AlertBalanceJump         = "BALANCE_JUMP"         // резкий скачок экспозиции
	AlertMultipleDisbalances = "MULTIPLE_DISBALANCES" // больше одной монеты за итерацию
	AlertIterationFailed     = "ITERATION_FAILED"     // итерация прервана
)

// Уровни важности
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)
