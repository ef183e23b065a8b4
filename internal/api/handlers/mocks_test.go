package handlers

import (
	"sync"

	"balancer/internal/models"
)

// MockLoop - тестовая реализация LoopController
type MockLoop struct {
	mu         sync.Mutex
	state      string
	report     *models.IterationReport
	iterations int64
	venues     []string
	pending    bool
	triggers   int
}

func NewMockLoop(venues ...string) *MockLoop {
	return &MockLoop{state: models.StateSleeping, venues: venues}
}

func (m *MockLoop) SetReport(r *models.IterationReport, iterations int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.report = r
	m.iterations = iterations
}

func (m *MockLoop) SetState(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

func (m *MockLoop) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *MockLoop) LastReport() *models.IterationReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.report
}

func (m *MockLoop) LastExposures() map[string]models.CoinExposure {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.report == nil {
		return map[string]models.CoinExposure{}
	}
	return m.report.Exposures
}

func (m *MockLoop) Iterations() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.iterations
}

func (m *MockLoop) Venues() []string { return m.venues }

// Trigger ведёт себя как Engine: второе пробуждение до обработки схлопывается
func (m *MockLoop) Trigger() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers++
	if m.pending {
		return false
	}
	m.pending = true
	return true
}
