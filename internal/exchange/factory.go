package exchange

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// VenueConfig - настройки одной биржи из файла бирж
type VenueConfig struct {
	Name       string `yaml:"name"`
	Kind       string `yaml:"kind"` // адаптер; по умолчанию совпадает с Name
	APIKey     string `yaml:"api_key"`
	Secret     string `yaml:"secret"`
	Passphrase string `yaml:"passphrase"`

	// BaseURL переопределяет адрес REST API (testnet, прокси)
	BaseURL string `yaml:"base_url"`

	// REST клиент: верхняя граница запроса и размер пула соединений
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxConns       int           `yaml:"max_conns"`

	// Markets - таблица coin -> symbol
	Markets  map[string]string `yaml:"markets"`
	TakerFee float64           `yaml:"taker_fee"`

	// Ограничение частоты запросов (0 = без ограничения)
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst float64 `yaml:"rate_limit_burst"`

	// Paper - начальное состояние для бумажной биржи
	Paper *PaperSeed `yaml:"paper"`
}

// KindOrName возвращает тип адаптера
func (c VenueConfig) KindOrName() string {
	if c.Kind != "" {
		return strings.ToLower(c.Kind)
	}
	return strings.ToLower(c.Name)
}

// Constructor создаёт биржу по настройкам
type Constructor func(cfg VenueConfig) (Venue, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{
		KindPaper: func(cfg VenueConfig) (Venue, error) { return NewPaperFromConfig(cfg) },
	}
)

// Register регистрирует адаптер биржи. Повторная регистрация заменяет старый.
func Register(kind string, c Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(kind)] = c
}

// NewVenue создает экземпляр биржи по настройкам
func NewVenue(cfg VenueConfig) (Venue, error) {
	kind := cfg.KindOrName()

	registryMu.RLock()
	c, ok := registry[kind]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unsupported exchange kind: %s", kind)
	}

	v, err := c(cfg)
	if err != nil {
		return nil, fmt.Errorf("create venue %s: %w", cfg.Name, err)
	}

	if cfg.RateLimitRPS > 0 {
		v = WithRateLimit(v, cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	return v, nil
}

// IsSupported проверяет, зарегистрирован ли адаптер
func IsSupported(kind string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[strings.ToLower(kind)]
	return ok
}

// SupportedKinds - список зарегистрированных адаптеров
func SupportedKinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
