package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"balancer/internal/models"
)

// ============================================================
// Prometheus метрики контура балансировки
// ============================================================
//
// - длительность и результат итераций
// - нетто-экспозиция по монетам
// - ордера и латентность размещения по биржам
// - сбои бирж по фазам

// ============ Метрики итераций ============

// IterationsTotal - итерации по результату (ok, fatal, timeout)
var IterationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "balancer",
		Subsystem: "loop",
		Name:      "iterations_total",
		Help:      "Total number of balancing iterations by result",
	},
	[]string{"result"},
)

// IterationDuration - длительность итерации
var IterationDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "balancer",
		Subsystem: "loop",
		Name:      "iteration_duration_seconds",
		Help:      "Duration of one balancing iteration in seconds",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	},
)

// LoopState - текущее состояние контура (1 у активного состояния)
var LoopStateGauge = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "balancer",
		Subsystem: "loop",
		Name:      "state",
		Help:      "Current loop state (1=active)",
	},
	[]string{"state"},
)

// ============ Метрики экспозиции ============

// NetExposureUSD - нетто-экспозиция по монете
var NetExposureUSD = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "balancer",
		Subsystem: "exposure",
		Name:      "net_usd",
		Help:      "Net signed exposure per coin in USD",
	},
	[]string{"coin"},
)

// EventsTriggered - сработавшие события балансировки
var EventsTriggered = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "balancer",
		Subsystem: "exposure",
		Name:      "events_triggered_total",
		Help:      "Number of rebalance events by coin and side",
	},
	[]string{"coin", "side"},
)

// SwingsBlocked - монеты, пропущенные из-за скачка экспозиции
var SwingsBlocked = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "balancer",
		Subsystem: "exposure",
		Name:      "swings_blocked_total",
		Help:      "Number of coins skipped because exposure jumped between iterations",
	},
	[]string{"coin"},
)

// ============ Метрики ордеров ============

// OrdersTotal - ордера по бирже и статусу
var OrdersTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "balancer",
		Subsystem: "orders",
		Name:      "placed_total",
		Help:      "Number of order placement attempts by venue and status",
	},
	[]string{"venue", "status"}, // Processing, Failed
)

// PlacementLatency - латентность размещения ордера
var PlacementLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "balancer",
		Subsystem: "orders",
		Name:      "placement_latency_ms",
		Help:      "Order placement latency (venue timestamp minus send time) in milliseconds",
		Buckets:   []float64{10, 25, 50, 100, 200, 300, 500, 1000, 2000, 5000},
	},
	[]string{"venue"},
)

// IntentsDropped - биржи, исключённые из события
var IntentsDropped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "balancer",
		Subsystem: "orders",
		Name:      "intents_dropped_total",
		Help:      "Number of venues dropped from a rebalance event by reason",
	},
	[]string{"venue", "reason"},
)

// ============ Метрики бирж ============

// VenueErrors - сбои бирж по фазам
var VenueErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "balancer",
		Subsystem: "venue",
		Name:      "errors_total",
		Help:      "Number of venue call failures by phase",
	},
	[]string{"venue", "phase"},
)

// VenueBalance - баланс на бирже
var VenueBalance = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "balancer",
		Subsystem: "venue",
		Name:      "balance_usd",
		Help:      "Venue balance in USD",
	},
	[]string{"venue"},
)

// ============ Вспомогательные функции ============

var allStates = []string{
	models.StateIdle, models.StateClosingStaleOrders, models.StateRefreshingPositions,
	models.StateAggregating, models.StateRebalancing, models.StateAuditing,
	models.StateSleeping, models.StateStopped,
}

// RecordState выставляет 1 текущему состоянию и 0 остальным
func RecordState(state string) {
	for _, s := range allStates {
		v := 0.0
		if s == state {
			v = 1
		}
		LoopStateGauge.WithLabelValues(s).Set(v)
	}
}

// RecordIteration записывает результат итерации
func RecordIteration(result string, seconds float64) {
	IterationsTotal.WithLabelValues(result).Inc()
	IterationDuration.Observe(seconds)
}

// RecordOrder записывает попытку размещения
func RecordOrder(venue, status string, latencyMs int64) {
	OrdersTotal.WithLabelValues(venue, status).Inc()
	if status == models.OrderStatusProcessing {
		PlacementLatency.WithLabelValues(venue).Observe(float64(latencyMs))
	}
}

// RecordVenueError записывает сбой биржи
func RecordVenueError(venue, phase string) {
	VenueErrors.WithLabelValues(venue, phase).Inc()
}
