package bot

import (
	"context"
	"math"
	"sort"
	"sync"

	"balancer/internal/models"
	"balancer/pkg/utils"
)

// ExposurePolicy решает, требует ли экспозиция монеты балансировки
type ExposurePolicy interface {
	Name() string
	Exceeds(exp models.CoinExposure, thresholdUSD float64) bool
}

// SwingObserver - политика, которой нужна вся картина итерации до проверки порога
type SwingObserver interface {
	Observe(exposures map[string]models.CoinExposure) []models.BalanceJump
}

// AbsolutePolicy - |netUsd| > threshold
type AbsolutePolicy struct{}

func (AbsolutePolicy) Name() string { return "absolute" }

func (AbsolutePolicy) Exceeds(exp models.CoinExposure, thresholdUSD float64) bool {
	return math.Abs(exp.NetUSD) > thresholdUSD
}

// LongOnlyPolicy - netUsd > threshold, чистый шорт не балансируется
type LongOnlyPolicy struct{}

func (LongOnlyPolicy) Name() string { return "long_only" }

func (LongOnlyPolicy) Exceeds(exp models.CoinExposure, thresholdUSD float64) bool {
	return exp.NetUSD > thresholdUSD
}

// SwingGuard пропускает монету, если её экспозиция сдвинулась между итерациями
// больше чем на MaxSwingUSD. Такой скачок обычно означает неполные данные биржи
// или ручную сделку, и балансировать по нему нельзя.
// Память о прошлой итерации - единственное состояние между итерациями.
type SwingGuard struct {
	inner       ExposurePolicy
	maxSwingUSD float64

	mu      sync.Mutex
	prev    map[string]float64
	blocked map[string]bool
}

// NewSwingGuard оборачивает политику
func NewSwingGuard(inner ExposurePolicy, maxSwingUSD float64) *SwingGuard {
	return &SwingGuard{
		inner:       inner,
		maxSwingUSD: maxSwingUSD,
		prev:        make(map[string]float64),
		blocked:     make(map[string]bool),
	}
}

func (g *SwingGuard) Name() string { return g.inner.Name() + "+swing_guard" }

// Observe сравнивает экспозиции с прошлой итерацией и запоминает текущие
func (g *SwingGuard) Observe(exposures map[string]models.CoinExposure) []models.BalanceJump {
	g.mu.Lock()
	defer g.mu.Unlock()

	coins := make([]string, 0, len(exposures))
	for coin := range exposures {
		coins = append(coins, coin)
	}
	sort.Strings(coins)

	var jumps []models.BalanceJump
	blocked := make(map[string]bool)
	next := make(map[string]float64, len(exposures))

	for _, coin := range coins {
		cur := exposures[coin].NetUSD
		next[coin] = cur

		prev, seen := g.prev[coin]
		if !seen {
			continue
		}
		jump := math.Abs(cur - prev)
		if jump > g.maxSwingUSD {
			blocked[coin] = true
			jumps = append(jumps, models.BalanceJump{
				Coin:        coin,
				PreviousUSD: prev,
				CurrentUSD:  cur,
				JumpUSD:     utils.RoundTo(jump, 2),
				LimitUSD:    g.maxSwingUSD,
			})
			SwingsBlocked.WithLabelValues(coin).Inc()
		}
	}

	g.prev = next
	g.blocked = blocked
	return jumps
}

func (g *SwingGuard) Exceeds(exp models.CoinExposure, thresholdUSD float64) bool {
	g.mu.Lock()
	blocked := g.blocked[exp.Coin]
	g.mu.Unlock()

	if blocked {
		return false
	}
	return g.inner.Exceeds(exp, thresholdUSD)
}

// NewExposurePolicy создаёт политику по имени из конфига
func NewExposurePolicy(name string, maxSwingUSD float64) ExposurePolicy {
	var p ExposurePolicy = AbsolutePolicy{}
	if name == "long_only" {
		p = LongOnlyPolicy{}
	}
	if maxSwingUSD > 0 {
		return NewSwingGuard(p, maxSwingUSD)
	}
	return p
}

// MarkPriceFunc возвращает mark price монеты
type MarkPriceFunc func(ctx context.Context, coin string) (float64, error)
