package audit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"balancer/internal/bus"
	"balancer/internal/config"
	"balancer/internal/models"
	"balancer/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TelegramMessage - конверт сообщения для телеграм-бота
type TelegramMessage struct {
	ChatID   string `json:"chat_id"`
	Msg      string `json:"msg"`
	BotToken string `json:"bot_token"`
}

// Stats - итог публикации одной итерации
type Stats struct {
	Published int
	Failed    int
}

// Publisher строит записи аудита итерации и публикует их в шину.
// Публикация best-effort: ошибка одной записи не останавливает остальные.
type Publisher struct {
	transport      bus.Transport
	cfg            config.AuditConfig
	publishTimeout time.Duration

	newID func() string
	now   func() time.Time
	log   *utils.Logger
}

// NewPublisher создаёт публикатор аудита
func NewPublisher(transport bus.Transport, cfg config.AuditConfig, publishTimeout time.Duration) *Publisher {
	if publishTimeout <= 0 {
		publishTimeout = 10 * time.Second
	}
	return &Publisher{
		transport:      transport,
		cfg:            cfg,
		publishTimeout: publishTimeout,
		newID:          uuid.NewString,
		now:            func() time.Time { return time.Now().UTC() },
		log:            utils.L().WithComponent("audit"),
	}
}

// OrderRecord строит запись об ордере после попытки размещения.
// Неудачная попытка получает статус Failed и текст ошибки.
func (p *Publisher) OrderRecord(ev models.RebalanceEvent, intent models.OrderIntent, clientID, exchangeOrderID string, latencyMs int64, placeErr error) models.OrderRecord {
	now := p.now()
	rec := models.OrderRecord{
		ID:               p.newID(),
		Datetime:         now,
		Ts:               now.UnixMilli(),
		Context:          models.ContextBalancing,
		ParentID:         ev.ID,
		ExchangeOrderID:  exchangeOrderID,
		ClientID:         clientID,
		Type:             intent.OrderType,
		Status:           models.OrderStatusProcessing,
		Exchange:         intent.Venue,
		Side:             intent.Side,
		Symbol:           intent.Symbol,
		ExpectPrice:      intent.LimitPrice,
		ExpectAmountCoin: intent.SizeCoin,
		ExpectAmountUSD:  utils.MulExact(intent.SizeCoin, intent.LimitPrice),
		ExpectFee:        intent.TakerFee * intent.SizeCoin * intent.LimitPrice,
		FactualFee:       intent.TakerFee,
		OrderPlaceTime:   latencyMs,
		Env:              p.cfg.Env,
	}
	if placeErr != nil {
		rec.Status = models.OrderStatusFailed
		rec.Error = placeErr.Error()
	}
	return rec
}

// DisbalanceRecord строит запись о сработавшем дисбалансе (id = id события)
func (p *Publisher) DisbalanceRecord(outcome models.EventOutcome) models.DisbalanceRecord {
	ev := outcome.Event
	participants := make([]string, 0, len(outcome.Intents))
	for _, in := range outcome.Intents {
		participants = append(participants, in.Venue)
	}
	return models.DisbalanceRecord{
		ID:           ev.ID,
		Datetime:     ev.CreatedAt.UTC(),
		Ts:           ev.CreatedAt.UnixMilli(),
		CoinName:     ev.Coin,
		Side:         ev.Side,
		PositionCoin: ev.NetCoinAtTrigger,
		PositionUSD:  utils.RoundTo(ev.NetUSDAtTrigger, 1),
		Price:        ev.MarkPrice,
		Threshold:    ev.ThresholdUSD,
		Participants: participants,
		Status:       models.OrderStatusProcessing,
		Env:          p.cfg.Env,
	}
}

// BalanceSnapshots строит снимки балансов по биржам, ответившим в итерации
func (p *Publisher) BalanceSnapshots(report *models.IterationReport) []models.BalanceSnapshot {
	totals := collectVenueTotals(report.Exposures)
	now := p.now()

	out := make([]models.BalanceSnapshot, 0, len(report.Venues))
	for _, v := range report.Venues {
		if v.Error != "" {
			continue
		}
		snap := models.BalanceSnapshot{
			ID:               p.newID(),
			Datetime:         now,
			Ts:               now.UnixMilli(),
			Context:          models.ContextBalancing,
			ParentID:         report.ID,
			Exchange:         v.Venue,
			ExchangeBalance:  v.Balance,
			AvailableForBuy:  v.AvailableBuy,
			AvailableForSell: v.AvailableSell,
			Env:              p.cfg.Env,
		}
		if t, ok := totals[v.Venue]; ok {
			snap.TotalPositionUSD = float64(t.totalUSD)
			snap.AbsPositionUSD = float64(t.absUSD)
			snap.PositionsNum = t.num
			snap.CurrentMargin = utils.EffectiveLeverage(float64(t.absUSD), v.Balance)
		}
		out = append(out, snap)
	}
	return out
}

// session - открытая сессия шины и счётчики итерации
type session struct {
	p     *Publisher
	conn  bus.Conn
	stats Stats
	errs  []error
}

// publish сериализует запись и отправляет её, ошибка только логируется и считается
func (s *session) publish(ctx context.Context, key, id, parentID string, record interface{}) {
	body, err := json.Marshal(record)
	if err == nil {
		pctx, cancel := context.WithTimeout(ctx, s.p.publishTimeout)
		err = s.conn.Publish(pctx, bus.Message{
			RoutingKey: key,
			ID:         id,
			ParentID:   parentID,
			Body:       body,
			Timestamp:  s.p.now(),
		})
		cancel()
	}

	if err != nil {
		s.stats.Failed++
		s.errs = append(s.errs, fmt.Errorf("%s: %w", key, err))
		PublishFailures.WithLabelValues(key).Inc()
		s.p.log.Error("audit publish failed",
			utils.RoutingKey(key),
			utils.String("record_id", id),
			utils.Err(err),
		)
		return
	}
	s.stats.Published++
	PublishedTotal.WithLabelValues(key).Inc()
}

func (s *session) telegram(ctx context.Context, parentID, text string) {
	msg := TelegramMessage{ChatID: s.p.cfg.TelegramChatID, Msg: text, BotToken: s.p.cfg.TelegramToken}
	s.publish(ctx, bus.RouteTelegram, s.p.newID(), parentID, msg)
}

// Publish публикует все записи итерации в одной сессии шины.
// Возвращает статистику и объединённую ошибку неудачных публикаций.
func (p *Publisher) Publish(ctx context.Context, report *models.IterationReport) (Stats, error) {
	if report == nil {
		return Stats{}, nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, p.publishTimeout)
	conn, err := p.transport.Dial(dialCtx)
	cancel()
	if err != nil {
		PublishFailures.WithLabelValues("dial").Inc()
		p.log.Error("audit bus unavailable", utils.String("transport", p.transport.Name()), utils.Err(err))
		return Stats{}, fmt.Errorf("dial %s: %w", p.transport.Name(), err)
	}
	s := &session{p: p, conn: conn}
	defer func() {
		if err := conn.Close(); err != nil {
			p.log.Warn("audit bus close failed", utils.Err(err))
		}
	}()

	s.telegram(ctx, report.ID, PositionsSummary(report))

	for _, snap := range p.BalanceSnapshots(report) {
		s.publish(ctx, bus.RouteBalances, snap.ID, report.ID, snap)
	}

	for _, outcome := range report.Events {
		p.publishEvent(ctx, s, outcome)
	}

	for _, jump := range report.Jumps {
		if jump.ID == "" {
			jump.ID = p.newID()
		}
		if jump.Datetime.IsZero() {
			now := p.now()
			jump.Datetime = now
			jump.Ts = now.UnixMilli()
		}
		if jump.ParentID == "" {
			jump.ParentID = report.ID
		}
		jump.Env = p.cfg.Env
		s.publish(ctx, bus.RouteBalanceJumps, jump.ID, jump.ParentID, jump)
	}

	for _, a := range report.Alerts {
		parent := a.EventID
		if parent == "" {
			parent = report.ID
		}
		s.telegram(ctx, parent, FormatAlert(a, p.cfg.Env))
	}

	p.log.Info("audit published",
		utils.IterationID(report.ID),
		utils.Int("published", s.stats.Published),
		utils.Int("failed", s.stats.Failed),
	)
	return s.stats, errors.Join(s.errs...)
}

// publishEvent публикует записи одного события: дисбаланс, ордера, триггер проверки и сообщение
func (p *Publisher) publishEvent(ctx context.Context, s *session, outcome models.EventOutcome) {
	ev := outcome.Event
	s.publish(ctx, bus.RouteDisbalances, ev.ID, ev.ID, p.DisbalanceRecord(outcome))

	for _, rec := range outcome.Orders {
		s.publish(ctx, bus.RouteOrders, rec.ID, ev.ID, rec)
	}

	// no-op событие: ордеров нет, проверять нечего
	if len(outcome.Orders) == 0 {
		return
	}

	trigger := models.BalanceCheckTrigger{
		ParentID:    ev.ID,
		Context:     models.ContextPostBalancing,
		Env:         p.cfg.Env,
		ChatID:      p.cfg.TelegramChatID,
		TelegramBot: p.cfg.TelegramToken,
	}
	s.publish(ctx, bus.RouteCheckBalance, ev.ID+":"+models.ContextPostBalancing, ev.ID, trigger)
	s.telegram(ctx, ev.ID, BalancingProceed(outcome))
}

// OrderMistakeAlert - алерт о непринятом ордере
func OrderMistakeAlert(ev models.RebalanceEvent, rec models.OrderRecord) models.Alert {
	return models.Alert{
		Type:     models.AlertOrderMistake,
		Severity: models.SeverityError,
		Coin:     ev.Coin,
		Venue:    rec.Exchange,
		EventID:  ev.ID,
		Message:  rec.Error,
		Meta: map[string]interface{}{
			"order_id":  rec.ID,
			"client_id": rec.ClientID,
			"symbol":    rec.Symbol,
		},
	}
}

// MultipleDisbalancesAlert - алерт о нескольких сработавших монетах за итерацию
func MultipleDisbalancesAlert(coins []string) models.Alert {
	return models.Alert{
		Type:     models.AlertMultipleDisbalances,
		Severity: models.SeverityWarn,
		Message:  strings.Join(coins, ", "),
		Meta:     map[string]interface{}{"count": len(coins)},
	}
}

// BalanceJumpAlert - алерт о заблокированном скачке экспозиции
func BalanceJumpAlert(j models.BalanceJump) models.Alert {
	return models.Alert{
		Type:     models.AlertBalanceJump,
		Severity: models.SeverityWarn,
		Coin:     j.Coin,
		Message:  fmt.Sprintf("net exposure jumped by %d USD", int64(math.Round(j.JumpUSD))),
		Meta: map[string]interface{}{
			"previous_usd": int64(math.Round(j.PreviousUSD)),
			"current_usd":  int64(math.Round(j.CurrentUSD)),
			"limit_usd":    j.LimitUSD,
		},
	}
}
