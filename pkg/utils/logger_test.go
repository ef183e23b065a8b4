package utils

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

// readLines возвращает непустые строки файла лога
func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// ============================================================
// Поля итерации в JSON
// ============================================================

func TestInitLogger_IterationFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "balancer.log")
	logger := InitLogger(LogConfig{Level: "info", Format: "json", Output: path})

	log := logger.WithComponent("engine").With(IterationID("it-1"))
	log.With(EventID("ev-1"), RoutingKey("orders")).Info("order dispatched",
		Venue("bybit"), Coin("BTC"), Latency(42))
	logger.Sync()

	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("ожидали 1 запись, получили %d", len(lines))
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("запись не JSON: %v", err)
	}

	want := map[string]interface{}{
		"message":      "order dispatched",
		"level":        "info",
		"component":    "engine",
		"iteration_id": "it-1",
		"event_id":     "ev-1",
		"routing_key":  "orders",
		"venue":        "bybit",
		"coin":         "BTC",
		"latency_ms":   float64(42),
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, ожидали %v", k, entry[k], v)
		}
	}
	if _, ok := entry["ts"]; !ok {
		t.Error("нет поля ts")
	}
}

func TestInitLogger_ChildDoesNotLeak(t *testing.T) {
	path := filepath.Join(t.TempDir(), "balancer.log")
	logger := InitLogger(LogConfig{Format: "json", Output: path})

	audit := logger.WithComponent("audit")
	audit.With(IterationID("it-1")).Info("first")
	audit.Info("second")
	logger.Sync()

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("ожидали 2 записи, получили %d", len(lines))
	}
	var second map[string]interface{}
	json.Unmarshal([]byte(lines[1]), &second)
	if _, ok := second["iteration_id"]; ok {
		t.Error("iteration_id дочернего логгера попал в родительский")
	}
	if second["component"] != "audit" {
		t.Errorf("component = %v", second["component"])
	}
}

// ============================================================
// Уровни и формат
// ============================================================

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"fatal", zapcore.FatalLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseLevel(tt.in); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, ожидали %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestInitLogger_LevelFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "balancer.log")
	logger := InitLogger(LogConfig{Level: "warn", Format: "json", Output: path})

	logger.Debug("sleeping")
	logger.Info("iteration finished")
	logger.Warn("audit trail incomplete")
	logger.Sync()

	lines := readLines(t, path)
	if len(lines) != 1 || !strings.Contains(lines[0], "audit trail incomplete") {
		t.Errorf("при уровне warn ожидали только предупреждение, получили %v", lines)
	}
}

func TestInitLogger_TextFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "balancer.log")
	logger := InitLogger(LogConfig{Format: "text", Output: path})

	logger.WithComponent("bus").Info("bus connected")
	logger.Sync()

	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("ожидали 1 запись, получили %d", len(lines))
	}
	if !strings.Contains(lines[0], "\tinfo\t") || !strings.Contains(lines[0], "bus connected") {
		t.Errorf("неожиданная текстовая запись: %q", lines[0])
	}
	if json.Valid([]byte(lines[0])) {
		t.Error("текстовый формат не должен быть JSON")
	}
}

// ============================================================
// Вывод и ротация
// ============================================================

func TestInitLogger_UnwritableOutput(t *testing.T) {
	logger := InitLogger(LogConfig{Output: filepath.Join(t.TempDir(), "missing", "balancer.log")})
	if logger == nil {
		t.Fatal("InitLogger вернул nil")
	}
	// пишет в stderr
	logger.Info("fallback")
}

func TestNewRotator(t *testing.T) {
	tests := []struct {
		name        string
		cfg         LogConfig
		wantSize    int
		wantBackups int
		wantAge     int
	}{
		{"по умолчанию", LogConfig{Output: "/var/log/balancer.log"}, 100, 0, 0},
		{"из настроек", LogConfig{Output: "/var/log/balancer.log", MaxSizeMB: 20, MaxBackups: 5, MaxAgeDays: 14}, 20, 5, 14},
		{"отрицательный размер", LogConfig{Output: "/var/log/balancer.log", MaxSizeMB: -1}, 100, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRotator(tt.cfg)
			if r.Filename != tt.cfg.Output {
				t.Errorf("Filename = %q", r.Filename)
			}
			if r.MaxSize != tt.wantSize || r.MaxBackups != tt.wantBackups || r.MaxAge != tt.wantAge {
				t.Errorf("ротация = %d/%d/%d, ожидали %d/%d/%d",
					r.MaxSize, r.MaxBackups, r.MaxAge, tt.wantSize, tt.wantBackups, tt.wantAge)
			}
			if !r.Compress {
				t.Error("архивы должны сжиматься")
			}
		})
	}
}

// ============================================================
// Глобальный логгер
// ============================================================

func TestInitGlobalLogger(t *testing.T) {
	old := L()
	defer SetGlobalLogger(old)

	path := filepath.Join(t.TempDir(), "balancer.log")
	l := InitGlobalLogger(LogConfig{Format: "json", Output: path})
	if L() != l {
		t.Fatal("L() должен возвращать логгер из InitGlobalLogger")
	}

	L().WithComponent("main").Info("balancer started")
	l.Sync()
	if lines := readLines(t, path); len(lines) != 1 {
		t.Errorf("ожидали 1 запись, получили %d", len(lines))
	}
}
