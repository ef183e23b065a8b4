package models

import "sort"

// Направление позиции на бирже
const (
	PositionLong  = "LONG"
	PositionShort = "SHORT"
	PositionFlat  = "FLAT"
)

// Position - позиция на одной бирже по одному символу.
// Живёт одну итерацию, между итерациями не сохраняется.
type Position struct {
	Venue  string `json:"venue"`
	Symbol string `json:"symbol"`
	Coin   string `json:"coin"`
	Side   string `json:"side"` // LONG, SHORT, FLAT

	// AmountCoin - размер позиции в монетах, всегда >= 0 (знак задаёт Side)
	AmountCoin float64 `json:"amount_coin"`

	// AmountUSD - размер в USD, если биржа его сообщает (HasAmountUSD)
	AmountUSD    float64 `json:"amount_usd"`
	HasAmountUSD bool    `json:"has_amount_usd"`

	EntryPrice float64 `json:"entry_price"`
}

// sign: LONG +1, SHORT -1, FLAT 0
func (p Position) sign() float64 {
	switch p.Side {
	case PositionLong:
		return 1
	case PositionShort:
		return -1
	default:
		return 0
	}
}

// SignedCoin - вклад позиции в нетто-экспозицию в монетах
func (p Position) SignedCoin() float64 {
	return p.sign() * abs(p.AmountCoin)
}

// SignedUSD - вклад в нетто-экспозицию в USD.
// USD от биржи авторитетен, иначе amountCoin * markPrice.
func (p Position) SignedUSD(markPrice float64) float64 {
	if p.HasAmountUSD {
		return p.sign() * abs(p.AmountUSD)
	}
	return p.sign() * abs(p.AmountCoin) * markPrice
}

// IsOpen - позиция не FLAT и не нулевая
func (p Position) IsOpen() bool {
	return p.Side != PositionFlat && p.AmountCoin != 0
}

// CoinExposure - агрегат по монете через все биржи
type CoinExposure struct {
	Coin      string              `json:"coin"`
	PerVenue  map[string]Position `json:"per_venue"`
	NetCoin   float64             `json:"net_coin"`
	NetUSD    float64             `json:"net_usd"`
	MarkPrice float64             `json:"mark_price"`
}

// Participants - биржи с открытой позицией по монете, отсортированы по имени
func (e CoinExposure) Participants() []string {
	venues := make([]string, 0, len(e.PerVenue))
	for venue, pos := range e.PerVenue {
		if pos.IsOpen() {
			venues = append(venues, venue)
		}
	}
	sort.Strings(venues)
	return venues
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
