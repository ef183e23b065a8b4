package bot

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"balancer/internal/exchange"
	"balancer/internal/models"
	"balancer/internal/symbols"
)

// VenueSnapshot - состояние одной биржи, полученное в фазе обновления.
// Err != nil означает, что биржа пропущена в этой итерации.
type VenueSnapshot struct {
	Venue         string
	Positions     map[string]*exchange.Position // symbol -> позиция
	Markets       map[string]string             // coin -> symbol
	Balance       float64
	AvailableBuy  float64
	AvailableSell float64
	Err           error
}

// Aggregate сводит снимки бирж в map[coin]map[venue]Position.
// Биржи с ошибкой пропускаются. Результат не зависит от порядка снимков.
func Aggregate(snapshots []VenueSnapshot) map[string]map[string]models.Position {
	out := make(map[string]map[string]models.Position)

	for _, snap := range snapshots {
		if snap.Err != nil {
			continue
		}
		resolver := symbols.NewResolver(snap.Markets)

		// символы сортируются, чтобы слияние двух символов одной монеты было детерминированным
		syms := make([]string, 0, len(snap.Positions))
		for sym := range snap.Positions {
			syms = append(syms, sym)
		}
		sort.Strings(syms)

		for _, sym := range syms {
			raw := snap.Positions[sym]
			if raw == nil {
				continue
			}
			pos := toModel(snap.Venue, resolver.Coin(sym), raw)
			if !pos.IsOpen() {
				continue
			}

			byVenue, ok := out[pos.Coin]
			if !ok {
				byVenue = make(map[string]models.Position)
				out[pos.Coin] = byVenue
			}
			if prev, ok := byVenue[snap.Venue]; ok {
				pos = mergePositions(prev, pos)
			}
			byVenue[snap.Venue] = pos
		}
	}
	return out
}

// toModel переводит позицию биржи в доменную
func toModel(venue, coin string, p *exchange.Position) models.Position {
	side := models.PositionFlat
	switch strings.ToLower(p.Side) {
	case exchange.SideLong, "buy":
		side = models.PositionLong
	case exchange.SideShort, "sell":
		side = models.PositionShort
	}

	size := decimal.NewFromFloat(p.Size).Abs()
	if size.IsZero() {
		side = models.PositionFlat
	}

	return models.Position{
		Venue:        venue,
		Symbol:       p.Symbol,
		Coin:         coin,
		Side:         side,
		AmountCoin:   size.InexactFloat64(),
		AmountUSD:    decimal.NewFromFloat(p.SizeUSD).Abs().InexactFloat64(),
		HasAmountUSD: p.HasSizeUSD,
		EntryPrice:   p.EntryPrice,
	}
}

// mergePositions складывает две позиции одной монеты на одной бирже
func mergePositions(a, b models.Position) models.Position {
	coin := decimal.NewFromFloat(a.SignedCoin()).Add(decimal.NewFromFloat(b.SignedCoin()))

	merged := a
	merged.AmountCoin = coin.Abs().InexactFloat64()
	switch coin.Sign() {
	case 1:
		merged.Side = models.PositionLong
	case -1:
		merged.Side = models.PositionShort
	default:
		merged.Side = models.PositionFlat
	}

	// USD от биржи используется, только если он есть у обеих частей
	merged.HasAmountUSD = a.HasAmountUSD && b.HasAmountUSD
	if merged.HasAmountUSD {
		usd := decimal.NewFromFloat(a.SignedUSD(0)).Add(decimal.NewFromFloat(b.SignedUSD(0)))
		merged.AmountUSD = usd.Abs().InexactFloat64()
	} else {
		merged.AmountUSD = 0
	}
	return merged
}
