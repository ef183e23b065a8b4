package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"balancer/internal/api/handlers"
	"balancer/internal/api/middleware"
	"balancer/internal/config"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Loop      handlers.LoopController
	Balancing config.BalancingConfig
	Security  config.SecurityConfig

	// Разрешённые источники для CORS, пустой список - любые
	AllowedOrigins []string

	// WebSocket endpoint, nil - поток отключён
	Stream http.HandlerFunc
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
//	/health                   - liveness
//	/metrics                  - Prometheus
//	/api/v1/
//	├── GET  /status          - состояние контура и последний отчёт
//	├── GET  /exposures       - экспозиции по монетам
//	├── GET  /venues          - биржи и политики
//	└── POST /loop/trigger    - внеочередная итерация (basic auth)
//	/ws/stream                - WebSocket поток событий
//
// Middleware применяется в следующем порядке:
// 1. CORS (обёртка над роутером, preflight не доходит до handlers)
// 2. Recovery (для всех маршрутов)
// 3. Logging (для всех маршрутов)
// 4. BasicAuth (только /api/v1/loop)
func SetupRoutes(deps *Dependencies) http.Handler {
	if deps == nil {
		deps = &Dependencies{}
	}

	router := mux.NewRouter()

	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)

	statusHandler := handlers.NewStatusHandler(deps.Loop, deps.Balancing)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", statusHandler.GetStatus).Methods(http.MethodGet)
	api.HandleFunc("/exposures", statusHandler.GetExposures).Methods(http.MethodGet)
	api.HandleFunc("/venues", statusHandler.GetVenues).Methods(http.MethodGet)

	loop := api.PathPrefix("/loop").Subrouter()
	loop.Use(middleware.BasicAuth(deps.Security.AdminUsername, deps.Security.AdminPasswordHash))
	loop.HandleFunc("/trigger", statusHandler.TriggerLoop).Methods(http.MethodPost)

	if deps.Stream != nil {
		router.HandleFunc("/ws/stream", deps.Stream)
	}

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return corsHandler(deps.AllowedOrigins).Handler(router)
}

// corsHandler строит CORS по ALLOWED_ORIGINS
func corsHandler(origins []string) *cors.Cors {
	opts := cors.Options{
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           3600,
	}
	if len(origins) == 0 {
		opts.AllowedOrigins = []string{"*"}
		opts.AllowCredentials = false
	} else {
		opts.AllowedOrigins = origins
	}
	return cors.New(opts)
}
