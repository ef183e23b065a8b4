package bot

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"balancer/internal/exchange"
	"balancer/internal/symbols"
	"balancer/pkg/utils"
)

// markBookDepth - глубина стакана для mark price (нужен только верх)
const markBookDepth = 5

// MarkPriceResolver определяет опорную цену монеты как mid-price стакана
// любой биржи, на которой монета торгуется.
// Биржа выбирается случайно, чтобы распределять нагрузку.
// Пустой или недоступный стакан приводит к переходу на следующую биржу.
type MarkPriceResolver struct {
	venues  []exchange.Venue
	timeout time.Duration
	log     *utils.Logger

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// NewMarkPriceResolver создаёт резолвер. rnd == nil - источник от текущего времени.
func NewMarkPriceResolver(venues []exchange.Venue, timeout time.Duration, rnd *rand.Rand) *MarkPriceResolver {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &MarkPriceResolver{
		venues:  venues,
		timeout: timeout,
		log:     utils.L().WithComponent("markprice"),
		rnd:     rnd,
	}
}

// Resolve возвращает mark price и биржу, с которой она взята
func (r *MarkPriceResolver) Resolve(ctx context.Context, coin string) (float64, string, error) {
	type candidate struct {
		venue  exchange.Venue
		symbol string
	}

	var candidates []candidate
	for _, v := range r.venues {
		if sym, ok := symbols.Symbol(v.Markets(), coin); ok {
			candidates = append(candidates, candidate{venue: v, symbol: sym})
		}
	}
	if len(candidates) == 0 {
		return 0, "", &CoinError{Coin: coin, Err: fmt.Errorf("%w: not listed on any venue", ErrNoMarketForCoin)}
	}

	r.rndMu.Lock()
	r.rnd.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	r.rndMu.Unlock()

	for _, c := range candidates {
		book, err := r.fetchBook(ctx, c.venue, c.symbol)
		if err != nil {
			r.log.Warn("orderbook unavailable for mark price",
				utils.Venue(c.venue.GetName()), utils.Coin(coin), utils.Err(err))
			RecordVenueError(c.venue.GetName(), "markprice")
			continue
		}
		mid := utils.MidPrice(book.BestBid(), book.BestAsk())
		if mid <= 0 {
			r.log.Warn("empty orderbook for mark price",
				utils.Venue(c.venue.GetName()), utils.Coin(coin), utils.Symbol(c.symbol))
			continue
		}
		return mid, c.venue.GetName(), nil
	}

	return 0, "", &CoinError{Coin: coin, Err: fmt.Errorf("%w: all %d venues returned empty or failed books", ErrNoMarketForCoin, len(candidates))}
}

func (r *MarkPriceResolver) fetchBook(ctx context.Context, v exchange.Venue, symbol string) (*exchange.OrderBook, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return v.GetOrderBook(ctx, symbol, markBookDepth)
}
