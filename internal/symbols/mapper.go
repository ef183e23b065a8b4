package symbols

import "strings"

// quoteSuffixes - котировочные валюты, которые отрезаются от "голых" символов.
// Порядок важен: USDT и USDC проверяются раньше USD.
var quoteSuffixes = []string{"USDT", "USDC", "BUSD", "USD", "PERP"}

// multiplierPrefixes - множители контрактов вида 1000PEPEUSDT
var multiplierPrefixes = []string{"1000000", "10000", "1000", "100", "1M", "1K"}

// coinAliases - биржевые названия монет, отличающиеся от общепринятых
var coinAliases = map[string]string{
	"XBT": "BTC",
}

// CoinFromSymbol приводит биржевой символ к названию монеты.
// Поддерживаемые форматы:
//   - через подчёркивание: BTC_USDT, PF_XBTUSD
//   - через дефис: BTC-USD, ETH-USD-PERP, BTC-USDT-SWAP
//   - слитно: BTCUSDT, 1000PEPEUSDT, SHIB1000USDT
func CoinFromSymbol(sym string) string {
	s := strings.ToUpper(strings.TrimSpace(sym))
	s = strings.ReplaceAll(s, "/", "-")

	switch {
	case strings.Contains(s, "_"):
		parts := strings.Split(s, "_")
		// PF_XBTUSD: префикс типа контракта, монета во второй части
		if len(parts) >= 2 && (parts[0] == "PF" || parts[0] == "PI" || parts[0] == "FI") {
			s = stripQuote(parts[1])
		} else {
			s = parts[0]
		}
	case strings.Contains(s, "-"):
		s = strings.Split(s, "-")[0]
	default:
		s = stripQuote(s)
	}

	s = stripMultiplier(s)
	if alias, ok := coinAliases[s]; ok {
		return alias
	}
	return s
}

func stripQuote(s string) string {
	for _, q := range quoteSuffixes {
		if len(s) > len(q) && strings.HasSuffix(s, q) {
			return stripQuote(strings.TrimSuffix(s, q))
		}
	}
	return s
}

func stripMultiplier(s string) string {
	for _, m := range multiplierPrefixes {
		if len(s) > len(m) && strings.HasPrefix(s, m) {
			return s[len(m):]
		}
		// SHIB1000 на bybit
		if len(s) > len(m) && strings.HasSuffix(s, m) && m[0] == '1' {
			return s[:len(s)-len(m)]
		}
	}
	return s
}

// Resolver сопоставляет символы биржи с монетами.
// Явная таблица coin→symbol биржи приоритетнее эвристик.
type Resolver struct {
	bySymbol map[string]string
}

// NewResolver строит обратную таблицу symbol→coin
func NewResolver(coinToSymbol map[string]string) *Resolver {
	r := &Resolver{bySymbol: make(map[string]string, len(coinToSymbol))}
	for coin, sym := range coinToSymbol {
		r.bySymbol[strings.ToUpper(sym)] = strings.ToUpper(coin)
	}
	return r
}

// Coin возвращает монету для символа
func (r *Resolver) Coin(sym string) string {
	if r != nil {
		if coin, ok := r.bySymbol[strings.ToUpper(sym)]; ok {
			return coin
		}
	}
	return CoinFromSymbol(sym)
}

// Symbol возвращает символ биржи для монеты из таблицы (ok=false если монета не листится).
// Регистр монеты в таблице не важен.
func Symbol(coinToSymbol map[string]string, coin string) (string, bool) {
	if sym, ok := coinToSymbol[coin]; ok && sym != "" {
		return sym, true
	}
	for c, sym := range coinToSymbol {
		if strings.EqualFold(c, coin) && sym != "" {
			return sym, true
		}
	}
	return "", false
}
