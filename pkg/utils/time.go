package utils

import "time"

// FormatDuration печатает длительность итерации с точностью до секунды.
// Отрицательные значения берутся по модулю.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	return d.Truncate(time.Second).String()
}

// ElapsedMillis - разница end-start в миллисекундах.
// Нулевой end означает "сейчас".
func ElapsedMillis(start, end time.Time) int64 {
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(start).Milliseconds()
}
