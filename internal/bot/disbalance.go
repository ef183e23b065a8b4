package bot

import (
	"context"
	"sort"

	"balancer/internal/models"
	"balancer/pkg/utils"
)

// DisbalanceResult - итог расчёта дисбаланса за итерацию
type DisbalanceResult struct {
	Exposures map[string]models.CoinExposure
	Triggered []string         // монеты выше порога, по алфавиту
	Skipped   map[string]error // монеты без mark price
	Jumps     []models.BalanceJump
}

// DisbalanceCalculator считает нетто-экспозицию по монетам и отбирает монеты выше порога
type DisbalanceCalculator struct {
	thresholdUSD float64
	policy       ExposurePolicy
}

// NewDisbalanceCalculator создаёт калькулятор
func NewDisbalanceCalculator(thresholdUSD float64, policy ExposurePolicy) *DisbalanceCalculator {
	if policy == nil {
		policy = AbsolutePolicy{}
	}
	return &DisbalanceCalculator{thresholdUSD: thresholdUSD, policy: policy}
}

// Threshold возвращает порог в USD
func (c *DisbalanceCalculator) Threshold() float64 { return c.thresholdUSD }

// Policy возвращает политику проверки порога
func (c *DisbalanceCalculator) Policy() ExposurePolicy { return c.policy }

// Compute считает CoinExposure по каждой монете.
// USD от биржи авторитетен, иначе amountCoin * markPrice.
// Монета без mark price пропускается в этой итерации.
func (c *DisbalanceCalculator) Compute(ctx context.Context, aggregated map[string]map[string]models.Position, markPrice MarkPriceFunc) DisbalanceResult {
	res := DisbalanceResult{
		Exposures: make(map[string]models.CoinExposure, len(aggregated)),
		Skipped:   make(map[string]error),
	}

	coins := make([]string, 0, len(aggregated))
	for coin := range aggregated {
		coins = append(coins, coin)
	}
	sort.Strings(coins)

	for _, coin := range coins {
		perVenue := aggregated[coin]

		mark, err := markPrice(ctx, coin)
		if err != nil {
			res.Skipped[coin] = err
			continue
		}

		res.Exposures[coin] = BuildExposure(coin, perVenue, mark)
	}

	if obs, ok := c.policy.(SwingObserver); ok {
		res.Jumps = obs.Observe(res.Exposures)
	}

	for _, coin := range coins {
		exp, ok := res.Exposures[coin]
		if !ok {
			continue
		}
		NetExposureUSD.WithLabelValues(coin).Set(exp.NetUSD)
		if c.policy.Exceeds(exp, c.thresholdUSD) {
			res.Triggered = append(res.Triggered, coin)
		}
	}
	return res
}

// BuildExposure сводит позиции одной монеты. Суммы точные и не зависят от порядка бирж.
func BuildExposure(coin string, perVenue map[string]models.Position, markPrice float64) models.CoinExposure {
	coinParts := make([]float64, 0, len(perVenue))
	usdParts := make([]float64, 0, len(perVenue))
	copied := make(map[string]models.Position, len(perVenue))

	for venue, pos := range perVenue {
		copied[venue] = pos
		coinParts = append(coinParts, pos.SignedCoin())
		usdParts = append(usdParts, pos.SignedUSD(markPrice))
	}

	return models.CoinExposure{
		Coin:      coin,
		PerVenue:  copied,
		NetCoin:   utils.SumExact(coinParts...),
		NetUSD:    utils.SumExact(usdParts...),
		MarkPrice: markPrice,
	}
}
