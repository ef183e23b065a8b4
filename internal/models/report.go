package models

import "time"

// VenueStatus - результат фаз итерации для одной биржи
type VenueStatus struct {
	Venue            string  `json:"venue"`
	Connected        bool    `json:"connected"`
	OrdersCancelled  bool    `json:"orders_cancelled"`
	PositionsFetched bool    `json:"positions_fetched"`
	Balance          float64 `json:"balance"`
	AvailableBuy     float64 `json:"available_buy"`
	AvailableSell    float64 `json:"available_sell"`
	Error            string  `json:"error,omitempty"`
}

// EventOutcome - событие вместе с планом и результатом отправки
type EventOutcome struct {
	Event   RebalanceEvent `json:"event"`
	Intents []OrderIntent  `json:"intents"`
	Dropped []DroppedVenue `json:"dropped,omitempty"`
	Orders  []OrderRecord  `json:"orders"`
}

// IterationReport - итог одной итерации контура балансировки
type IterationReport struct {
	ID         string                  `json:"id"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	Venues     []VenueStatus           `json:"venues"`
	Exposures  map[string]CoinExposure `json:"exposures"`
	Triggered  []string                `json:"triggered"`
	Events     []EventOutcome          `json:"events"`
	Jumps      []BalanceJump           `json:"jumps,omitempty"`
	Alerts     []Alert                 `json:"alerts"`
	Error      string                  `json:"error,omitempty"`
}

// Duration - длительность итерации
func (r *IterationReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// AddAlert добавляет алерт с текущим временем
func (r *IterationReport) AddAlert(a Alert) {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	r.Alerts = append(r.Alerts, a)
}
