package websocket

import (
	"time"

	"balancer/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeIterationReport - итог итерации контура.
	// Отправляется один раз в конце каждой итерации.
	MessageTypeIterationReport MessageType = "iterationReport"

	// MessageTypeStateChange - смена состояния контура
	MessageTypeStateChange MessageType = "stateChange"

	// MessageTypeAlert - алерт итерации (ордер не принят, нет рынка, биржа недоступна)
	MessageTypeAlert MessageType = "alert"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// IterationReportMessage - краткий итог итерации.
//
// Полный отчёт доступен через GET /api/v1/status, в поток уходит сводка:
// сработавшие монеты, число ордеров и биржи с ошибками.
type IterationReportMessage struct {
	BaseMessage
	Data *IterationSummary `json:"data"`
}

// IterationSummary - сводка итерации для frontend
type IterationSummary struct {
	ID         string `json:"id"`
	DurationMs int64  `json:"duration_ms"`

	// Монеты, по которым дисбаланс превысил порог
	Triggered []string `json:"triggered"`

	OrdersPlaced int `json:"orders_placed"`
	OrdersFailed int `json:"orders_failed"`

	// Биржи, выпавшие из итерации, с причиной
	VenueErrors map[string]string `json:"venue_errors,omitempty"`

	// Нетто-экспозиция в USD по монетам
	NetUSD map[string]float64 `json:"net_usd"`

	Alerts int    `json:"alerts"`
	Error  string `json:"error,omitempty"`
}

// StateChangeMessage - переход контура между состояниями
type StateChangeMessage struct {
	BaseMessage
	From string `json:"from"`
	To   string `json:"to"`
}

// AlertMessage - алерт итерации
type AlertMessage struct {
	BaseMessage
	Data *models.Alert `json:"data"`
}

// ============ Фабричные функции для создания сообщений ============

// NewIterationReportMessage собирает сводку из отчёта итерации
func NewIterationReportMessage(report *models.IterationReport) *IterationReportMessage {
	summary := &IterationSummary{
		ID:         report.ID,
		DurationMs: report.Duration().Milliseconds(),
		Triggered:  report.Triggered,
		NetUSD:     make(map[string]float64, len(report.Exposures)),
		Alerts:     len(report.Alerts),
		Error:      report.Error,
	}
	if summary.Triggered == nil {
		summary.Triggered = []string{}
	}

	for coin, exp := range report.Exposures {
		summary.NetUSD[coin] = exp.NetUSD
	}

	for _, vs := range report.Venues {
		if vs.Error == "" {
			continue
		}
		if summary.VenueErrors == nil {
			summary.VenueErrors = make(map[string]string)
		}
		summary.VenueErrors[vs.Venue] = vs.Error
	}

	for _, ev := range report.Events {
		for _, rec := range ev.Orders {
			if rec.Status == models.OrderStatusFailed {
				summary.OrdersFailed++
			} else {
				summary.OrdersPlaced++
			}
		}
	}

	return &IterationReportMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeIterationReport,
			Timestamp: time.Now(),
		},
		Data: summary,
	}
}

// NewStateChangeMessage создает сообщение о смене состояния
func NewStateChangeMessage(from, to string) *StateChangeMessage {
	return &StateChangeMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeStateChange,
			Timestamp: time.Now(),
		},
		From: from,
		To:   to,
	}
}

// NewAlertMessage создает сообщение алерта
func NewAlertMessage(alert *models.Alert) *AlertMessage {
	return &AlertMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeAlert,
			Timestamp: time.Now(),
		},
		Data: alert,
	}
}
