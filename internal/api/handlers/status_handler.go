package handlers

import (
	"net/http"
	"time"

	"balancer/internal/bot"
	"balancer/internal/config"
	"balancer/internal/models"
)

// LoopController - то, что API видит от контура балансировки.
// Реализуется bot.Engine.
type LoopController interface {
	State() string
	LastReport() *models.IterationReport
	LastExposures() map[string]models.CoinExposure
	Iterations() int64
	Venues() []string
	Trigger() bool
}

// StatusHandler отвечает за endpoints состояния контура
type StatusHandler struct {
	loop LoopController
	cfg  config.BalancingConfig
}

// NewStatusHandler создает handler состояния
func NewStatusHandler(loop LoopController, cfg config.BalancingConfig) *StatusHandler {
	return &StatusHandler{loop: loop, cfg: cfg}
}

// StatusResponse - ответ GET /api/v1/status
type StatusResponse struct {
	State      string                  `json:"state"`
	StateInfo  string                  `json:"state_info"`
	Working    bool                    `json:"working"`
	Iterations int64                   `json:"iterations"`
	LastReport *models.IterationReport `json:"last_report"`
}

// ExposuresResponse - ответ GET /api/v1/exposures
type ExposuresResponse struct {
	IterationID string                         `json:"iteration_id,omitempty"`
	UpdatedAt   *time.Time                     `json:"updated_at,omitempty"`
	Exposures   map[string]models.CoinExposure `json:"exposures"`
}

// VenuesResponse - ответ GET /api/v1/venues
type VenuesResponse struct {
	Venues            []string `json:"venues"`
	ParticipantPolicy string   `json:"participant_policy"`
	ExposurePolicy    string   `json:"exposure_policy"`
	ThresholdUSD      float64  `json:"threshold_usd"`
	MaxSwingUSD       float64  `json:"max_swing_usd,omitempty"`
	IntervalSec       float64  `json:"interval_sec"`
}

// GetStatus возвращает состояние контура и последний отчёт итерации.
//
// GET /api/v1/status
//
// Response 200 OK:
//
//	{
//	  "state": "SLEEPING",
//	  "state_info": "Пауза до следующей итерации",
//	  "working": false,
//	  "iterations": 12,
//	  "last_report": {"id": "...", "triggered": ["BTC"], ...}
//	}
//
// До первой итерации last_report = null.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if h.loop == nil {
		respondError(w, http.StatusServiceUnavailable, "loop_unavailable", "balancing loop not initialized")
		return
	}

	state := h.loop.State()
	respondJSON(w, http.StatusOK, StatusResponse{
		State:      state,
		StateInfo:  bot.StateInfo(state),
		Working:    bot.IsWorking(state),
		Iterations: h.loop.Iterations(),
		LastReport: h.loop.LastReport(),
	})
}

// GetExposures возвращает экспозиции по монетам из последней итерации.
//
// GET /api/v1/exposures
//
// Response 200 OK:
//
//	{
//	  "iteration_id": "...",
//	  "updated_at": "2024-05-01T12:00:00Z",
//	  "exposures": {"BTC": {"net_coin": 0.6, "net_usd": 36000, "mark_price": 60000, ...}}
//	}
func (h *StatusHandler) GetExposures(w http.ResponseWriter, r *http.Request) {
	if h.loop == nil {
		respondError(w, http.StatusServiceUnavailable, "loop_unavailable", "balancing loop not initialized")
		return
	}

	resp := ExposuresResponse{Exposures: h.loop.LastExposures()}
	if resp.Exposures == nil {
		resp.Exposures = map[string]models.CoinExposure{}
	}
	if report := h.loop.LastReport(); report != nil {
		resp.IterationID = report.ID
		finished := report.FinishedAt
		resp.UpdatedAt = &finished
	}

	respondJSON(w, http.StatusOK, resp)
}

// GetVenues возвращает биржи контура и активные политики.
//
// GET /api/v1/venues
func (h *StatusHandler) GetVenues(w http.ResponseWriter, r *http.Request) {
	resp := VenuesResponse{
		Venues:            []string{},
		ParticipantPolicy: h.cfg.ParticipantPolicy,
		ExposurePolicy:    h.cfg.ExposurePolicy,
		ThresholdUSD:      h.cfg.ThresholdUSD,
		MaxSwingUSD:       h.cfg.MaxSwingUSD,
		IntervalSec:       h.cfg.Interval.Seconds(),
	}
	if h.loop != nil {
		resp.Venues = append(resp.Venues, h.loop.Venues()...)
	}

	respondJSON(w, http.StatusOK, resp)
}

// TriggerLoop будит контур из паузы для внеочередной итерации.
//
// POST /api/v1/loop/trigger (basic auth)
//
// Response 202 Accepted:
//
//	{"message": "iteration scheduled"}
//
// Если пробуждение уже запрошено, повторный вызов ничего не меняет:
//
//	{"message": "iteration already scheduled"}
func (h *StatusHandler) TriggerLoop(w http.ResponseWriter, r *http.Request) {
	if h.loop == nil {
		respondError(w, http.StatusServiceUnavailable, "loop_unavailable", "balancing loop not initialized")
		return
	}

	if h.loop.State() == models.StateStopped {
		respondError(w, http.StatusConflict, "loop_stopped", "balancing loop is stopped")
		return
	}

	msg := "iteration scheduled"
	if !h.loop.Trigger() {
		msg = "iteration already scheduled"
	}
	respondJSON(w, http.StatusAccepted, SuccessResponse{Message: msg})
}
