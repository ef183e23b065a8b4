package bot

import (
	"errors"
	"fmt"
)

// Классы ошибок контура балансировки
var (
	// ErrVenueUnavailable - вызов биржи не удался, биржа пропускается в текущей фазе
	ErrVenueUnavailable = errors.New("venue unavailable")

	// ErrNoMarketForCoin - ни одна биржа не дала стакан для mark price
	ErrNoMarketForCoin = errors.New("no market for coin")

	// ErrOrderPlacementFailed - ордер не размещён или биржа не вернула id
	ErrOrderPlacementFailed = errors.New("order placement failed")

	// ErrIterationFatal - непредвиденная ошибка вне изоляции по биржам, итерация прерывается
	ErrIterationFatal = errors.New("iteration fatal")
)

// VenueError - ошибка конкретной биржи в конкретной фазе
type VenueError struct {
	Venue string
	Phase string
	Err   error
}

func (e *VenueError) Error() string {
	return fmt.Sprintf("venue %s unavailable in %s: %v", e.Venue, e.Phase, e.Err)
}

func (e *VenueError) Unwrap() []error {
	return []error{ErrVenueUnavailable, e.Err}
}

// CoinError - ошибка, относящаяся к монете
type CoinError struct {
	Coin string
	Err  error
}

func (e *CoinError) Error() string {
	return fmt.Sprintf("coin %s: %v", e.Coin, e.Err)
}

func (e *CoinError) Unwrap() error {
	return e.Err
}

// PlacementError - ошибка размещения ордера на бирже
type PlacementError struct {
	Venue  string
	Symbol string
	Err    error
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("place order on %s %s: %v", e.Venue, e.Symbol, e.Err)
}

func (e *PlacementError) Unwrap() []error {
	return []error{ErrOrderPlacementFailed, e.Err}
}

// newFatal оборачивает панику или непредвиденную ошибку итерации
func newFatal(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrIterationFatal, fmt.Sprintf(format, args...))
}
