package utils

import "github.com/shopspring/decimal"

// math.go - математические утилиты для балансировки позиций
//
// Объёмы и суммы считаются через decimal: float-деление вида 0.3/0.1
// даёт 2.9999999999999996 и при округлении вниз теряет целый шаг лота.

// RoundToLotSize округляет значение ВНИЗ до ближайшего кратного lotSize.
//
// Округление вниз гарантирует, что ордер не превысит расчётную долю дисбаланса.
//
// Примеры:
//   - RoundToLotSize(0.123456, 0.001) = 0.123
//   - RoundToLotSize(0.3, 0.1) = 0.3
//   - RoundToLotSize(100.5, 1.0) = 100.0
func RoundToLotSize(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	v := decimal.NewFromFloat(value)
	step := decimal.NewFromFloat(lotSize)
	return v.Div(step).Floor().Mul(step).InexactFloat64()
}

// RoundTo округляет до places знаков после запятой (half away from zero)
func RoundTo(value float64, places int32) float64 {
	return decimal.NewFromFloat(value).Round(places).InexactFloat64()
}

// SumExact складывает значения без накопления ошибки float.
// Результат не зависит от порядка слагаемых.
func SumExact(values ...float64) float64 {
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	return sum.InexactFloat64()
}

// MulExact перемножает значения через decimal
func MulExact(a, b float64) float64 {
	return decimal.NewFromFloat(a).Mul(decimal.NewFromFloat(b)).InexactFloat64()
}

// DivExact делит a на b через decimal, при b == 0 возвращает 0
func DivExact(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return decimal.NewFromFloat(a).Div(decimal.NewFromFloat(b)).InexactFloat64()
}

// MidPrice возвращает (ask + bid) / 2. Если одна из сторон пустая - 0.
func MidPrice(bestBid, bestAsk float64) float64 {
	if bestBid <= 0 || bestAsk <= 0 {
		return 0
	}
	return decimal.NewFromFloat(bestBid).Add(decimal.NewFromFloat(bestAsk)).Div(decimal.NewFromInt(2)).InexactFloat64()
}

// EffectiveLeverage - отношение абсолютной позиции к суммарному балансу
func EffectiveLeverage(absPositionUSD, totalBalanceUSD float64) float64 {
	if totalBalanceUSD <= 0 {
		return 0
	}
	return RoundTo(absPositionUSD/totalBalanceUSD, 2)
}
