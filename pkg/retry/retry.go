package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Повторы нужны только при старте: брокер или база аудита могут подниматься
// одновременно с процессом. Внутри итерации упавшая операция ждёт следующей итерации.

// Config - экспоненциальный backoff: InitialDelay * Multiplier^n, не больше MaxDelay, ± Jitter
type Config struct {
	MaxAttempts  int // включая первую, <= 0 - пока не отменён ctx
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // 0..1

	// OnRetry вызывается перед паузой, attempt начинается с 1
	OnRetry func(attempt int, err error, delay time.Duration)
}

// StartupConfig - проверка инфраструктуры при старте, около минуты ожидания
func StartupConfig() Config {
	return Config{
		MaxAttempts:  6,
		InitialDelay: time.Second,
		MaxDelay:     15 * time.Second,
		Multiplier:   2,
		Jitter:       0.2,
	}
}

func (c Config) delay(attempt int) time.Duration {
	initial := c.InitialDelay
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	mult := c.Multiplier
	if mult < 1 {
		mult = 2
	}

	d := float64(initial) * math.Pow(mult, float64(attempt))
	if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	if j := math.Min(math.Max(c.Jitter, 0), 1); j > 0 {
		d += d * j * (rand.Float64()*2 - 1)
	}
	return time.Duration(d)
}

// permanentError - ошибка, после которой повторять бессмысленно
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent помечает ошибку как неповторяемую: Do вернёт её сразу
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do повторяет operation до успеха, неповторяемой ошибки, исчерпания попыток или отмены ctx.
// Возвращает последнюю ошибку операции.
func Do(ctx context.Context, operation func() error, cfg Config) error {
	var lastErr error
	for attempt := 0; cfg.MaxAttempts <= 0 || attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if cfg.MaxAttempts > 0 && attempt == cfg.MaxAttempts-1 {
			break
		}

		d := cfg.delay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, d)
		}

		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		}
	}
	return lastErr
}
