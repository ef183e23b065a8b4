package exchange

import (
	"context"

	"balancer/pkg/ratelimit"
)

// rateLimited ограничивает частоту сетевых вызовов биржи
type rateLimited struct {
	Venue
	limiter *ratelimit.RateLimiter
}

// WithRateLimit оборачивает биржу лимитером запросов
func WithRateLimit(v Venue, rps, burst float64) Venue {
	return &rateLimited{Venue: v, limiter: ratelimit.NewRateLimiter(rps, burst)}
}

func (r *rateLimited) wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return NewExchangeError(r.GetName(), "rate_limit", err)
	}
	return nil
}

func (r *rateLimited) Connect(ctx context.Context) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.Venue.Connect(ctx)
}

func (r *rateLimited) GetPositions(ctx context.Context) (map[string]*Position, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.Venue.GetPositions(ctx)
}

func (r *rateLimited) GetOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.Venue.GetOrderBook(ctx, symbol, depth)
}

func (r *rateLimited) GetBalance(ctx context.Context) (float64, error) {
	if err := r.wait(ctx); err != nil {
		return 0, err
	}
	return r.Venue.GetBalance(ctx)
}

func (r *rateLimited) GetAvailableBalance(ctx context.Context, side string) (float64, error) {
	if err := r.wait(ctx); err != nil {
		return 0, err
	}
	return r.Venue.GetAvailableBalance(ctx, side)
}

func (r *rateLimited) CancelAllOrders(ctx context.Context) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.Venue.CancelAllOrders(ctx)
}

func (r *rateLimited) CreateOrder(ctx context.Context, req OrderRequest) (*OrderAck, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.Venue.CreateOrder(ctx, req)
}

// Unwrap возвращает исходную биржу
func (r *rateLimited) Unwrap() Venue {
	return r.Venue
}
