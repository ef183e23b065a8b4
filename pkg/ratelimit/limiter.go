package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter - token bucket для контроля частоты запросов к API бирж
//
// Использование:
//
//	limiter := NewRateLimiter(10, 20) // 10 req/sec, burst 20
//	err := limiter.Wait(ctx)          // блокирующее ожидание
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter создаёт rate limiter.
// rate <= 0 даёт дефолт 10 req/sec, burst <= 0 даёт 2x rate.
func NewRateLimiter(rps, burst float64) *RateLimiter {
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = rps * 2
	}
	if burst < rps {
		burst = rps
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(rps), int(burst))}
}

// Wait ждёт токен или отмену контекста
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.limiter.Wait(ctx)
}
