package bus

import (
	"context"
	"errors"
	"time"

	"balancer/pkg/retry"
	"balancer/pkg/utils"
)

// Ping проверяет при старте, что к транспорту можно подключиться.
// Внутри итерации повторов нет, здесь - экспоненциальный backoff.
// Ошибка настроек (ErrMisconfigured) не повторяется.
func Ping(ctx context.Context, t Transport, cfg retry.Config) error {
	log := utils.L().WithComponent("bus")
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Warn("bus not reachable",
			utils.String("transport", t.Name()),
			utils.Int("attempt", attempt),
			utils.Dur("next_in", delay),
			utils.Err(err))
	}

	return retry.Do(ctx, func() error {
		conn, err := t.Dial(ctx)
		if errors.Is(err, ErrMisconfigured) {
			return retry.Permanent(err)
		}
		if err != nil {
			return err
		}
		return conn.Close()
	}, cfg)
}
