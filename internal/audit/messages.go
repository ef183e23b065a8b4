package audit

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"balancer/internal/models"
	"balancer/pkg/utils"
)

// venueTotals - сводка позиций одной биржи для сообщения
type venueTotals struct {
	totalUSD int64
	absUSD   int64
	num      int
}

// collectVenueTotals считает TOT/ABS позицию и количество позиций по биржам
func collectVenueTotals(exposures map[string]models.CoinExposure) map[string]*venueTotals {
	out := make(map[string]*venueTotals)
	for _, exp := range exposures {
		for venue, pos := range exp.PerVenue {
			if !pos.IsOpen() {
				continue
			}
			usd := int64(math.Round(pos.SignedUSD(exp.MarkPrice)))
			t, ok := out[venue]
			if !ok {
				t = &venueTotals{}
				out[venue] = t
			}
			t.totalUSD += usd
			if usd < 0 {
				usd = -usd
			}
			t.absUSD += usd
			t.num++
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PositionsSummary - сводка позиций, балансов и дисбалансов итерации
func PositionsSummary(report *models.IterationReport) string {
	var b strings.Builder

	totals := collectVenueTotals(report.Exposures)
	var totPos, absPos int64

	b.WriteString("    POSITIONS:")
	for _, venue := range sortedKeys(totals) {
		t := totals[venue]
		totPos += t.totalUSD
		absPos += t.absUSD
		fmt.Fprintf(&b, "\n  %s", venue)
		fmt.Fprintf(&b, "\nTOT POS, USD: %d", t.totalUSD)
		fmt.Fprintf(&b, "\nABS POS, USD: %d", t.absUSD)
		fmt.Fprintf(&b, "\nPOSITIONS, NUM: %d", t.num)
	}

	var totalBalance float64
	b.WriteString("\n    BALANCES:")
	for _, v := range report.Venues {
		if v.Error != "" {
			continue
		}
		fmt.Fprintf(&b, "\n%s, USD: %d", v.Venue, int64(math.Round(v.Balance)))
		totalBalance += v.Balance
	}

	b.WriteString("\n    TOTAL:")
	fmt.Fprintf(&b, "\nBALANCE, USD: %d", int64(math.Round(totalBalance)))
	fmt.Fprintf(&b, "\nTOT POSITION, USD: %d", totPos)
	fmt.Fprintf(&b, "\nABS POSITION, USD: %d", absPos)
	fmt.Fprintf(&b, "\nEFFECTIVE LEVERAGE: %v", utils.EffectiveLeverage(float64(absPos), totalBalance))

	for _, coin := range report.Triggered {
		exp, ok := report.Exposures[coin]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "\nDISB, %s: %v (USD: %d)", coin, utils.RoundTo(exp.NetCoin, 4), int64(math.Round(exp.NetUSD)))
	}
	return b.String()
}

// BalancingProceed - сообщение о размещённых балансирующих ордерах
func BalancingProceed(outcome models.EventOutcome) string {
	var b strings.Builder
	ev := outcome.Event

	venues := make([]string, 0, len(outcome.Intents))
	for _, in := range outcome.Intents {
		venues = append(venues, in.Venue)
	}

	size := 0.0
	if len(outcome.Intents) > 0 {
		size = outcome.Intents[0].SizeCoin
	}

	b.WriteString("BALANCING PROCEED:\n")
	fmt.Fprintf(&b, "COIN: %s\n", ev.Coin)
	fmt.Fprintf(&b, "SIDE: %s\n", ev.Side)
	fmt.Fprintf(&b, "ORDER SIZE PER EXCHANGE, %s: %v\n", ev.Coin, size)
	fmt.Fprintf(&b, "EXCHANGES: %s\n", strings.Join(venues, "|"))
	if len(outcome.Dropped) > 0 {
		dropped := make([]string, 0, len(outcome.Dropped))
		for _, d := range outcome.Dropped {
			dropped = append(dropped, d.Venue+" ("+d.Reason+")")
		}
		fmt.Fprintf(&b, "DROPPED: %s\n", strings.Join(dropped, "|"))
	}
	return b.String()
}

// FormatAlert - текст алерта для телеграма
func FormatAlert(a models.Alert, env string) string {
	switch a.Type {
	case models.AlertOrderMistake:
		return fmt.Sprintf("ALERT NAME: Order Mistake\nCOIN: %s\nCONTEXT: BOT\nENV: %s\nEXCHANGE: %s\nOrder Id:%v\nError:%s",
			a.Coin, env, a.Venue, a.Meta["order_id"], a.Message)
	case models.AlertNoMarket:
		return fmt.Sprintf("ALERT NAME: No Market\nCOIN: %s\nCONTEXT: BOT\nENV: %s\nError:%s",
			a.Coin, env, a.Message)
	case models.AlertVenueUnavailable:
		return fmt.Sprintf("ALERT NAME: Venue Unavailable\nCONTEXT: BOT\nENV: %s\nEXCHANGE: %s\nPHASE: %v\nError:%s",
			env, a.Venue, a.Meta["phase"], a.Message)
	case models.AlertBalanceJump:
		return fmt.Sprintf("ALERT NAME: Balance Jump\nCOIN: %s\nCONTEXT: BOT\nENV: %s\nPREVIOUS, USD: %v\nCURRENT, USD: %v\nLIMIT, USD: %v",
			a.Coin, env, a.Meta["previous_usd"], a.Meta["current_usd"], a.Meta["limit_usd"])
	case models.AlertMultipleDisbalances:
		return fmt.Sprintf("ALERT: MULTIPLE DISBALANCES\nENV: %s\nCOINS: %s", env, a.Message)
	default:
		return fmt.Sprintf("ALERT NAME: %s\nCONTEXT: BOT\nENV: %s\n%s", a.Type, env, a.Message)
	}
}
