package bot

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"balancer/internal/audit"
	"balancer/internal/config"
	"balancer/internal/exchange"
	"balancer/internal/models"
	"balancer/pkg/utils"
)

// Фазы, в которых биржа может выпасть из итерации
const (
	PhaseConnect   = "connect"
	PhaseCancel    = "cancel_orders"
	PhasePositions = "positions"
	PhaseBalance   = "balance"
)

// Результаты итерации для метрик
const (
	ResultOK      = "ok"
	ResultFatal   = "fatal"
	ResultTimeout = "timeout"
)

// WebSocketHub - интерфейс для отправки данных клиентам
//
// Реализуется пакетом internal/websocket/Hub
type WebSocketHub interface {
	// BroadcastIterationReport отправляет итог итерации
	BroadcastIterationReport(report *models.IterationReport)

	// BroadcastStateChange отправляет смену состояния контура
	BroadcastStateChange(from, to string)

	// BroadcastAlert отправляет алерт итерации
	BroadcastAlert(alert *models.Alert)
}

// Engine - контур балансировки позиций между биржами.
//
// Одна итерация:
// снятие ордеров → позиции и балансы → агрегация → дисбаланс → ордера → аудит → пауза
//
// Параллелизм только внутри фаз (одна задача на биржу), фазы строго последовательны.
// Между итерациями сохраняется только память SwingGuard и последний отчёт для API.
type Engine struct {
	cfg    config.BalancingConfig
	venues []exchange.Venue

	state      *LoopState
	calc       *DisbalanceCalculator
	planner    *Planner
	dispatcher *Dispatcher
	publisher  *audit.Publisher
	wsHub      WebSocketHub

	rnd     *rand.Rand
	trigger chan struct{}

	mu             sync.RWMutex
	lastReport     *models.IterationReport
	lastIterations int64

	newID func() string
	now   func() time.Time
	log   *utils.Logger
}

// NewEngine создаёт контур по настройкам балансировки
func NewEngine(cfg config.BalancingConfig, venues []exchange.Venue, publisher *audit.Publisher, wsHub WebSocketHub) *Engine {
	sorted := make([]exchange.Venue, len(venues))
	copy(sorted, venues)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].GetName() < sorted[j].GetName() })

	e := &Engine{
		cfg:        cfg,
		venues:     sorted,
		calc:       NewDisbalanceCalculator(cfg.ThresholdUSD, NewExposurePolicy(cfg.ExposurePolicy, cfg.MaxSwingUSD)),
		planner:    NewPlanner(NewParticipantPolicy(cfg.ParticipantPolicy, cfg.VenueTimeout), cfg.ThresholdUSD, cfg.CheckAvailableBalance, cfg.VenueTimeout),
		dispatcher: NewDispatcher(cfg.PriceDepthLevel, cfg.VenueTimeout),
		publisher:  publisher,
		wsHub:      wsHub,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
		trigger:    make(chan struct{}, 1),
		newID:      uuid.NewString,
		now:        func() time.Time { return time.Now().UTC() },
		log:        utils.L().WithComponent("engine"),
	}
	e.state = NewLoopState(e.onStateChange)
	RecordState(models.StateIdle)
	return e
}

func (e *Engine) onStateChange(from, to string) {
	RecordState(to)
	e.log.Debug("state changed", utils.String("from", from), utils.State(to))
	if e.wsHub != nil {
		e.wsHub.BroadcastStateChange(from, to)
	}
}

// State возвращает текущее состояние контура
func (e *Engine) State() string {
	return e.state.Get()
}

// LastReport возвращает отчёт последней завершённой итерации (nil до первой)
func (e *Engine) LastReport() *models.IterationReport {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastReport
}

// LastExposures возвращает экспозиции последней итерации
func (e *Engine) LastExposures() map[string]models.CoinExposure {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastReport == nil {
		return map[string]models.CoinExposure{}
	}
	return e.lastReport.Exposures
}

// Iterations - количество завершённых итераций
func (e *Engine) Iterations() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastIterations
}

// Venues - имена бирж контура
func (e *Engine) Venues() []string {
	names := make([]string, 0, len(e.venues))
	for _, v := range e.venues {
		names = append(names, v.GetName())
	}
	return names
}

// Trigger будит контур из паузы. Повторные вызовы до пробуждения схлопываются.
func (e *Engine) Trigger() bool {
	select {
	case e.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run крутит итерации до отмены ctx.
// Отмена не прерывает текущую итерацию: она доигрывается с ограничением ITERATION_TIMEOUT.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("balancing loop started",
		utils.Float64("threshold_usd", e.cfg.ThresholdUSD),
		utils.Dur("interval", e.cfg.Interval),
		utils.String("participant_policy", e.planner.Policy().Name()),
		utils.String("exposure_policy", e.calc.Policy().Name()),
		utils.Int("venues", len(e.venues)),
	)

	for {
		if ctx.Err() != nil {
			break
		}

		e.RunIteration(ctx)

		if !e.sleep(ctx) {
			break
		}
		e.state.ForceTransition(models.StateIdle)
	}

	e.state.ForceTransition(models.StateStopped)
	e.log.Info("balancing loop stopped")
	return nil
}

// sleep - прерываемая пауза между итерациями. false - контур остановлен.
func (e *Engine) sleep(ctx context.Context) bool {
	timer := time.NewTimer(e.cfg.Interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-e.trigger:
		e.log.Info("loop woken by trigger")
		return true
	}
}

// RunIteration выполняет одну полную итерацию и возвращает её отчёт.
// Итерация всегда заканчивается в SLEEPING.
func (e *Engine) RunIteration(parent context.Context) (report *models.IterationReport) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), e.cfg.IterationTimeout)
	defer cancel()

	report = &models.IterationReport{
		ID:        e.newID(),
		StartedAt: e.now(),
		Exposures: map[string]models.CoinExposure{},
	}
	log := e.log.With(utils.IterationID(report.ID))
	result := ResultOK
	audited := false

	if e.state.Get() == models.StateSleeping {
		e.state.ForceTransition(models.StateIdle)
	}

	defer func() {
		if r := recover(); r != nil {
			err := newFatal("panic: %v", r)
			result = ResultFatal
			report.Error = err.Error()
			report.AddAlert(models.Alert{
				ID:       e.newID(),
				Type:     models.AlertIterationFailed,
				Severity: models.SeverityError,
				Message:  err.Error(),
			})
			log.Error("iteration aborted", utils.Err(err))
		}

		// сессии не переживают итерацию
		e.closeSessions(e.venues)
		if result == ResultOK && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			result = ResultTimeout
		}
		// итерация прервана до аудита: ордера и алерты всё равно уходят в шину
		if !audited && (len(report.Events) > 0 || len(report.Alerts) > 0) {
			e.audit(parent, report)
		}
		e.finish(report, result)
	}()

	e.enter(models.StateClosingStaleOrders)
	sessions := e.prepareVenues(ctx, report)

	e.enter(models.StateRefreshingPositions)
	snapshots := e.refresh(ctx, sessions, report)

	e.enter(models.StateAggregating)
	active := make(map[string]exchange.Venue, len(snapshots))
	activeList := make([]exchange.Venue, 0, len(snapshots))
	for i, snap := range snapshots {
		if snap.Err == nil {
			active[snap.Venue] = sessions[i]
			activeList = append(activeList, sessions[i])
		}
	}

	marks := NewMarkPriceResolver(activeList, e.cfg.VenueTimeout, e.rnd)
	res := e.calc.Compute(ctx, Aggregate(snapshots), func(ctx context.Context, coin string) (float64, error) {
		price, _, err := marks.Resolve(ctx, coin)
		return price, err
	})
	report.Exposures = res.Exposures
	report.Triggered = res.Triggered
	report.Jumps = res.Jumps
	e.collectCalcAlerts(report, res)

	e.enter(models.StateRebalancing)
	for _, coin := range res.Triggered {
		outcome := e.rebalance(ctx, report.ID, res.Exposures[coin], active, report)
		report.Events = append(report.Events, outcome)
	}

	e.enter(models.StateAuditing)
	audited = true
	e.audit(parent, report)
	return report
}

// audit публикует записи итерации на контексте без дедлайна итерации:
// выставленные ордера должны попасть в шину, даже если время итерации вышло.
// Каждая операция шины ограничена таймаутом публикатора.
func (e *Engine) audit(parent context.Context, report *models.IterationReport) {
	if e.publisher == nil {
		return
	}
	log := e.log.With(utils.IterationID(report.ID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("audit aborted", utils.Any("panic", r))
		}
	}()

	if _, err := e.publisher.Publish(context.WithoutCancel(parent), report); err != nil {
		log.Warn("audit trail incomplete", utils.Err(err))
	}
}

// enter переводит контур в следующую фазу
func (e *Engine) enter(state string) {
	if err := e.state.TryTransition(state); err != nil {
		panic(err)
	}
}

// finish закрывает итерацию: отчёт, метрики, пауза
func (e *Engine) finish(report *models.IterationReport, result string) {
	report.FinishedAt = e.now()
	e.state.ForceTransition(models.StateSleeping)
	RecordIteration(result, report.Duration().Seconds())

	e.mu.Lock()
	e.lastReport = report
	e.lastIterations++
	e.mu.Unlock()

	if e.wsHub != nil {
		e.wsHub.BroadcastIterationReport(report)
		for i := range report.Alerts {
			e.wsHub.BroadcastAlert(&report.Alerts[i])
		}
	}

	e.log.Info("iteration finished",
		utils.IterationID(report.ID),
		utils.String("result", result),
		utils.Int("triggered", len(report.Triggered)),
		utils.Int("events", len(report.Events)),
		utils.Int("alerts", len(report.Alerts)),
		utils.String("duration", utils.FormatDuration(report.Duration())),
	)
}

// venueFailure отмечает сбой биржи в фазе: метрика, лог, алерт
func (e *Engine) venueFailure(report *models.IterationReport, venue, phase string, err error) error {
	verr := &VenueError{Venue: venue, Phase: phase, Err: err}
	RecordVenueError(venue, phase)
	e.log.Warn("venue skipped", utils.Venue(venue), utils.String("phase", phase), utils.Err(err))
	report.AddAlert(models.Alert{
		ID:       e.newID(),
		Type:     models.AlertVenueUnavailable,
		Severity: models.SeverityWarn,
		Venue:    venue,
		Message:  err.Error(),
		Meta:     map[string]interface{}{"phase": phase},
	})
	return verr
}

// prepareVenues открывает сессии и снимает висящие ордера на всех биржах параллельно.
// Возвращает биржи с открытой сессией.
func (e *Engine) prepareVenues(ctx context.Context, report *models.IterationReport) []exchange.Venue {
	statuses := make([]models.VenueStatus, len(e.venues))
	connectErrs := make([]error, len(e.venues))
	cancelErrs := make([]error, len(e.venues))

	var wg sync.WaitGroup
	for i, v := range e.venues {
		wg.Add(1)
		go func(i int, v exchange.Venue) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					statuses[i].Connected = false
					connectErrs[i] = fmt.Errorf("panic: %v", r)
				}
			}()
			statuses[i] = models.VenueStatus{Venue: v.GetName()}

			vctx, cancel := withTimeout(ctx, e.cfg.VenueTimeout)
			defer cancel()

			if err := v.Connect(vctx); err != nil {
				connectErrs[i] = err
				return
			}
			statuses[i].Connected = true

			if err := v.CancelAllOrders(vctx); err != nil {
				cancelErrs[i] = err
				return
			}
			statuses[i].OrdersCancelled = true
		}(i, v)
	}
	wg.Wait()

	var sessions []exchange.Venue
	for i, v := range e.venues {
		name := v.GetName()
		switch {
		case connectErrs[i] != nil:
			statuses[i].Error = e.venueFailure(report, name, PhaseConnect, connectErrs[i]).Error()
			continue
		case cancelErrs[i] != nil:
			// биржа остаётся в итерации, пропускается только эта фаза
			e.venueFailure(report, name, PhaseCancel, cancelErrs[i])
		}
		sessions = append(sessions, v)
	}

	report.Venues = statuses
	return sessions
}

// refresh получает позиции и балансы параллельно, одна задача на биржу.
// Каждая задача пишет только в свой слот.
func (e *Engine) refresh(ctx context.Context, sessions []exchange.Venue, report *models.IterationReport) []VenueSnapshot {
	snapshots := make([]VenueSnapshot, len(sessions))
	balanceErrs := make([]error, len(sessions))

	var wg sync.WaitGroup
	for i, v := range sessions {
		wg.Add(1)
		go func(i int, v exchange.Venue) {
			defer wg.Done()
			snap := &snapshots[i]
			defer func() {
				if r := recover(); r != nil {
					snap.Err = fmt.Errorf("panic: %v", r)
				}
			}()
			snap.Venue = v.GetName()
			snap.Markets = v.Markets()

			vctx, cancel := withTimeout(ctx, e.cfg.VenueTimeout)
			defer cancel()

			positions, err := v.GetPositions(vctx)
			if err != nil {
				snap.Err = err
				return
			}
			snap.Positions = positions

			var balErrs []error
			var berr error
			if snap.Balance, berr = v.GetBalance(vctx); berr != nil {
				balErrs = append(balErrs, berr)
			}
			if snap.AvailableBuy, berr = v.GetAvailableBalance(vctx, exchange.SideBuy); berr != nil {
				balErrs = append(balErrs, berr)
			}
			if snap.AvailableSell, berr = v.GetAvailableBalance(vctx, exchange.SideSell); berr != nil {
				balErrs = append(balErrs, berr)
			}
			balanceErrs[i] = errors.Join(balErrs...)
		}(i, v)
	}
	wg.Wait()

	byName := make(map[string]int, len(report.Venues))
	for i, st := range report.Venues {
		byName[st.Venue] = i
	}

	for i, snap := range snapshots {
		idx := byName[snap.Venue]
		st := &report.Venues[idx]

		if snap.Err != nil {
			snapshots[i].Err = e.venueFailure(report, snap.Venue, PhasePositions, snap.Err)
			st.Error = snapshots[i].Err.Error()
			continue
		}
		st.PositionsFetched = true
		st.Balance = snap.Balance
		st.AvailableBuy = snap.AvailableBuy
		st.AvailableSell = snap.AvailableSell
		VenueBalance.WithLabelValues(snap.Venue).Set(snap.Balance)

		if balanceErrs[i] != nil {
			RecordVenueError(snap.Venue, PhaseBalance)
			e.log.Warn("venue balance unavailable", utils.Venue(snap.Venue), utils.Err(balanceErrs[i]))
		}
	}
	return snapshots
}

// collectCalcAlerts добавляет алерты расчёта: монеты без рынка, скачки, несколько дисбалансов
func (e *Engine) collectCalcAlerts(report *models.IterationReport, res DisbalanceResult) {
	skipped := make([]string, 0, len(res.Skipped))
	for coin := range res.Skipped {
		skipped = append(skipped, coin)
	}
	sort.Strings(skipped)

	for _, coin := range skipped {
		err := res.Skipped[coin]
		e.log.Warn("coin skipped", utils.Coin(coin), utils.Err(err))
		report.AddAlert(models.Alert{
			ID:       e.newID(),
			Type:     models.AlertNoMarket,
			Severity: models.SeverityWarn,
			Coin:     coin,
			Message:  err.Error(),
		})
	}

	for _, j := range res.Jumps {
		a := audit.BalanceJumpAlert(j)
		a.ID = e.newID()
		report.AddAlert(a)
	}

	if len(res.Triggered) > 1 {
		a := audit.MultipleDisbalancesAlert(res.Triggered)
		a.ID = e.newID()
		report.AddAlert(a)
		e.log.Warn("multiple disbalances", utils.String("coins", strings.Join(res.Triggered, ",")))
	}
}

// rebalance планирует и размещает ордера одного события.
// Записи ордеров собираются только после завершения всех задач размещения.
func (e *Engine) rebalance(ctx context.Context, iterationID string, exp models.CoinExposure, active map[string]exchange.Venue, report *models.IterationReport) models.EventOutcome {
	plan := e.planner.PlanEvent(ctx, iterationID, exp, active)
	log := e.log.With(utils.EventID(plan.Event.ID), utils.Coin(exp.Coin))

	log.Info("disbalance triggered",
		utils.NetCoin(exp.NetCoin),
		utils.NetUSD(exp.NetUSD),
		utils.Price(exp.MarkPrice),
		utils.Side(plan.Event.Side),
		utils.Int("intents", len(plan.Intents)),
		utils.Int("dropped", len(plan.Dropped)),
	)

	outcome := models.EventOutcome{Event: plan.Event, Dropped: plan.Dropped}
	if len(plan.Intents) == 0 {
		log.Warn("no venue admits the order size, event is a no-op")
		return outcome
	}

	results := e.dispatcher.Dispatch(ctx, active, plan.Intents)

	for _, r := range results {
		outcome.Intents = append(outcome.Intents, r.Intent)

		var orderID string
		if r.Ack != nil {
			orderID = r.Ack.ExchangeOrderID
		}
		rec := e.orderRecord(plan.Event, r, orderID)
		outcome.Orders = append(outcome.Orders, rec)

		if r.Err != nil {
			a := audit.OrderMistakeAlert(plan.Event, rec)
			a.ID = e.newID()
			report.AddAlert(a)
		}
	}
	return outcome
}

func (e *Engine) orderRecord(ev models.RebalanceEvent, r PlacementResult, orderID string) models.OrderRecord {
	if e.publisher != nil {
		return e.publisher.OrderRecord(ev, r.Intent, r.ClientID, orderID, r.LatencyMs, r.Err)
	}
	rec := models.OrderRecord{
		ID:              e.newID(),
		ParentID:        ev.ID,
		ClientID:        r.ClientID,
		ExchangeOrderID: orderID,
		Exchange:        r.Intent.Venue,
		Status:          models.OrderStatusProcessing,
	}
	if r.Err != nil {
		rec.Status = models.OrderStatusFailed
		rec.Error = r.Err.Error()
	}
	return rec
}

// closeSessions закрывает сессии бирж в конце итерации
func (e *Engine) closeSessions(sessions []exchange.Venue) {
	for _, v := range sessions {
		if err := v.Close(); err != nil {
			e.log.Warn("venue close failed", utils.Venue(v.GetName()), utils.Err(err))
		}
	}
}

// String - краткое описание контура для логов
func (e *Engine) String() string {
	return fmt.Sprintf("engine(%s, threshold=%v, venues=%d)", e.planner.Policy().Name(), e.cfg.ThresholdUSD, len(e.venues))
}
