package exchange

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// Значения по умолчанию для REST клиента биржи
const (
	defaultRequestTimeout = 30 * time.Second
	defaultMaxConns       = 8
	venueIdleConnTimeout  = 90 * time.Second
)

// newVenueClient создаёт http.Client одной биржи.
// Итерация обращается к бирже несколько раз подряд, поэтому соединения переиспользуются.
// Дедлайн из ctx запроса короче request_timeout и срабатывает раньше.
func newVenueClient(cfg VenueConfig) *http.Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}

	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:           dialer.DialContext,
			MaxIdleConnsPerHost:   maxConns,
			MaxConnsPerHost:       maxConns,
			IdleConnTimeout:       venueIdleConnTimeout,
			TLSHandshakeTimeout:   timeout,
			ResponseHeaderTimeout: timeout,
			TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
			ForceAttemptHTTP2:     true,
		},
	}
}

type idleCloser interface {
	CloseIdleConnections()
}

// CloseVenues закрывает простаивающие соединения адаптеров при остановке.
// Обёртки (лимитер) снимаются через Unwrap.
func CloseVenues(venues []Venue) {
	for _, v := range venues {
		for v != nil {
			if c, ok := v.(idleCloser); ok {
				c.CloseIdleConnections()
				break
			}
			u, ok := v.(interface{ Unwrap() Venue })
			if !ok {
				break
			}
			v = u.Unwrap()
		}
	}
}
