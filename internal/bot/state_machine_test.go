package bot

import (
	"errors"
	"testing"

	"balancer/internal/models"
)

// ============================================================
// Тесты переходов контура
// ============================================================

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		// Штатный порядок фаз
		{"IDLE → CLOSING_STALE_ORDERS", models.StateIdle, models.StateClosingStaleOrders, true},
		{"CLOSING → REFRESHING", models.StateClosingStaleOrders, models.StateRefreshingPositions, true},
		{"REFRESHING → AGGREGATING", models.StateRefreshingPositions, models.StateAggregating, true},
		{"AGGREGATING → REBALANCING", models.StateAggregating, models.StateRebalancing, true},
		{"REBALANCING → AUDITING", models.StateRebalancing, models.StateAuditing, true},
		{"AUDITING → SLEEPING", models.StateAuditing, models.StateSleeping, true},
		{"SLEEPING → IDLE", models.StateSleeping, models.StateIdle, true},
		{"SLEEPING → STOPPED", models.StateSleeping, models.StateStopped, true},

		// Прерванная итерация
		{"CLOSING → SLEEPING", models.StateClosingStaleOrders, models.StateSleeping, true},
		{"REBALANCING → SLEEPING", models.StateRebalancing, models.StateSleeping, true},

		// Недопустимые
		{"IDLE → REFRESHING (пропуск отмены ордеров)", models.StateIdle, models.StateRefreshingPositions, false},
		{"REFRESHING → CLOSING (назад)", models.StateRefreshingPositions, models.StateClosingStaleOrders, false},
		{"AUDITING → REBALANCING", models.StateAuditing, models.StateRebalancing, false},
		{"AGGREGATING → AUDITING", models.StateAggregating, models.StateAuditing, false},
		{"STOPPED → IDLE", models.StateStopped, models.StateIdle, false},
		{"неизвестное состояние", "UNKNOWN", models.StateIdle, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestCanTransition_AllWorkingStatesCanSleep(t *testing.T) {
	for _, s := range allStates {
		if IsWorking(s) && !CanTransition(s, models.StateSleeping) {
			t.Errorf("из %s нельзя уйти в SLEEPING", s)
		}
	}
}

func TestStateInfo(t *testing.T) {
	for _, s := range allStates {
		if StateInfo(s) == "Неизвестное состояние" {
			t.Errorf("нет описания для %s", s)
		}
	}
	if StateInfo("UNKNOWN") != "Неизвестное состояние" {
		t.Error("для неизвестного состояния ожидалось дефолтное описание")
	}
}

func TestIsWorking(t *testing.T) {
	tests := []struct {
		state string
		want  bool
	}{
		{models.StateIdle, false},
		{models.StateClosingStaleOrders, true},
		{models.StateRebalancing, true},
		{models.StateAuditing, true},
		{models.StateSleeping, false},
		{models.StateStopped, false},
	}
	for _, tt := range tests {
		if got := IsWorking(tt.state); got != tt.want {
			t.Errorf("IsWorking(%s) = %v, want %v", tt.state, got, tt.want)
		}
	}
}

// ============================================================
// Тесты LoopState
// ============================================================

func TestLoopState_TryTransition(t *testing.T) {
	var changes []string
	s := NewLoopState(func(from, to string) {
		changes = append(changes, from+"->"+to)
	})

	if s.Get() != models.StateIdle {
		t.Fatalf("начальное состояние %s, want IDLE", s.Get())
	}

	if err := s.TryTransition(models.StateClosingStaleOrders); err != nil {
		t.Fatalf("валидный переход вернул ошибку: %v", err)
	}

	err := s.TryTransition(models.StateAuditing)
	var terr *StateTransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("ожидалась StateTransitionError, got %v", err)
	}
	if terr.From != models.StateClosingStaleOrders || terr.To != models.StateAuditing {
		t.Errorf("неверные поля ошибки: %+v", terr)
	}
	if s.Get() != models.StateClosingStaleOrders {
		t.Errorf("состояние изменилось после ошибки: %s", s.Get())
	}

	if len(changes) != 1 || changes[0] != "IDLE->CLOSING_STALE_ORDERS" {
		t.Errorf("onChange вызван неверно: %v", changes)
	}
}

func TestLoopState_ForceTransition(t *testing.T) {
	calls := 0
	s := NewLoopState(func(from, to string) { calls++ })

	s.ForceTransition(models.StateSleeping)
	s.ForceTransition(models.StateSleeping) // то же состояние - без уведомления

	if s.Get() != models.StateSleeping {
		t.Errorf("state = %s, want SLEEPING", s.Get())
	}
	if calls != 1 {
		t.Errorf("onChange вызван %d раз, want 1", calls)
	}
}
