package bot

import (
	"fmt"
	"sync"

	"balancer/internal/models"
)

// ValidTransitions определяет допустимые переходы между состояниями.
// Отмена висящих ордеров строго раньше обновления позиций.
// Из любого рабочего состояния можно уйти в SLEEPING, если итерация прервана.
var ValidTransitions = map[string][]string{
	models.StateIdle:                {models.StateClosingStaleOrders, models.StateSleeping, models.StateStopped},
	models.StateClosingStaleOrders:  {models.StateRefreshingPositions, models.StateSleeping},
	models.StateRefreshingPositions: {models.StateAggregating, models.StateSleeping},
	models.StateAggregating:         {models.StateRebalancing, models.StateSleeping},
	models.StateRebalancing:         {models.StateAuditing, models.StateSleeping},
	models.StateAuditing:            {models.StateSleeping},
	models.StateSleeping:            {models.StateIdle, models.StateStopped},
	models.StateStopped:             {}, // терминальное
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// StateInfo возвращает описание состояния для UI
func StateInfo(s string) string {
	switch s {
	case models.StateIdle:
		return "Ожидание начала итерации"
	case models.StateClosingStaleOrders:
		return "Снятие висящих ордеров на всех биржах..."
	case models.StateRefreshingPositions:
		return "Получение позиций и балансов..."
	case models.StateAggregating:
		return "Расчёт дисбаланса по монетам"
	case models.StateRebalancing:
		return "Размещение балансирующих ордеров..."
	case models.StateAuditing:
		return "Публикация записей аудита"
	case models.StateSleeping:
		return "Пауза до следующей итерации"
	case models.StateStopped:
		return "Контур остановлен"
	default:
		return "Неизвестное состояние"
	}
}

// IsWorking возвращает true если итерация выполняется
func IsWorking(s string) bool {
	switch s {
	case models.StateClosingStaleOrders, models.StateRefreshingPositions,
		models.StateAggregating, models.StateRebalancing, models.StateAuditing:
		return true
	}
	return false
}

// StateTransitionError - ошибка недопустимого перехода
type StateTransitionError struct {
	From string
	To   string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition %s -> %s", e.From, e.To)
}

// LoopState - текущее состояние контура, безопасно для чтения из API
type LoopState struct {
	mu    sync.RWMutex
	state string

	onChange func(from, to string)
}

// NewLoopState создаёт состояние IDLE
func NewLoopState(onChange func(from, to string)) *LoopState {
	return &LoopState{state: models.StateIdle, onChange: onChange}
}

// Get возвращает текущее состояние
func (s *LoopState) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// TryTransition выполняет переход, если он допустим
func (s *LoopState) TryTransition(to string) error {
	s.mu.Lock()
	from := s.state
	if !CanTransition(from, to) {
		s.mu.Unlock()
		return &StateTransitionError{From: from, To: to}
	}
	s.state = to
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(from, to)
	}
	return nil
}

// ForceTransition выставляет состояние без проверки
func (s *LoopState) ForceTransition(to string) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()

	if s.onChange != nil && from != to {
		s.onChange(from, to)
	}
}
