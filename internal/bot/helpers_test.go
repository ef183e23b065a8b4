package bot

import (
	"context"
	"testing"

	"balancer/internal/exchange"
	"balancer/internal/models"
)

// newPaper создаёт бумажную биржу с одной монетой BTC и балансом 100k
func newPaper(t *testing.T, name, symbol string) *exchange.Paper {
	t.Helper()
	p := exchange.NewPaper(name, map[string]string{"BTC": symbol}, 0.0005)
	p.SetBalance(100000)
	p.SetLimits(&exchange.Limits{Symbol: symbol, MinOrderQty: 0.001, QtyStep: 0.001})
	p.SetOrderBook(testBook(symbol, 59990, 60010))
	return p
}

// connectAll открывает сессии бирж
func connectAll(t *testing.T, venues ...*exchange.Paper) {
	t.Helper()
	for _, v := range venues {
		if err := v.Connect(context.Background()); err != nil {
			t.Fatalf("Connect(%s): %v", v.GetName(), err)
		}
	}
}

func testBook(symbol string, bid, ask float64) *exchange.OrderBook {
	return &exchange.OrderBook{
		Symbol: symbol,
		Bids:   []exchange.PriceLevel{{Price: bid, Volume: 10}},
		Asks:   []exchange.PriceLevel{{Price: ask, Volume: 10}},
	}
}

func venueMap(venues ...*exchange.Paper) map[string]exchange.Venue {
	out := make(map[string]exchange.Venue, len(venues))
	for _, v := range venues {
		out[v.GetName()] = v
	}
	return out
}

func pos(venue, symbol, side string, size float64) models.Position {
	return models.Position{Venue: venue, Symbol: symbol, Coin: "BTC", Side: side, AmountCoin: size}
}

// scenarioExposure: LONG 1.0 на x, SHORT 0.4 на y, mark 60000
func scenarioExposure() models.CoinExposure {
	return BuildExposure("BTC", map[string]models.Position{
		"x": pos("x", "BTCUSDT", models.PositionLong, 1.0),
		"y": pos("y", "BTC-USDT-SWAP", models.PositionShort, 0.4),
	}, 60000)
}

func fixedMark(price float64) MarkPriceFunc {
	return func(ctx context.Context, coin string) (float64, error) {
		return price, nil
	}
}
