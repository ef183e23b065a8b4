package utils

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig - настройки логгера
type LogConfig struct {
	Level  string // debug, info, warn, error, fatal
	Format string // json или text
	Output string // stdout, stderr или путь к файлу

	// Ротация файла (только если Output - путь к файлу)
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Field - поле структурного лога
type Field = zap.Field

// Logger - обёртка над zap.Logger с доменными хелперами
type Logger struct {
	*zap.Logger
}

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// InitLogger создаёт логгер по конфигурации.
// Невалидный путь вывода не считается ошибкой: логгер пишет в stderr.
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.MessageKey = "message"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "text" || strings.ToLower(cfg.Format) == "console" {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, openOutput(cfg), zap.NewAtomicLevelAt(level))

	l := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{Logger: l}
}

// openOutput выбирает writer: stdout/stderr или файл с ротацией
func openOutput(cfg LogConfig) zapcore.WriteSyncer {
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		return zapcore.Lock(os.Stdout)
	case "stderr":
		return zapcore.Lock(os.Stderr)
	}

	// lumberjack создаёт файл лениво, поэтому проверяем доступность заранее
	f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return zapcore.Lock(os.Stderr)
	}
	f.Close()

	// /dev/null и подобные устройства не ротируются
	if info, err := os.Stat(cfg.Output); err == nil && !info.Mode().IsRegular() {
		df, err := os.OpenFile(cfg.Output, os.O_WRONLY, 0)
		if err != nil {
			return zapcore.Lock(os.Stderr)
		}
		return zapcore.Lock(df)
	}

	return zapcore.AddSync(newRotator(cfg))
}

// newRotator настраивает ротацию файла лога, размер по умолчанию 100 МБ
func newRotator(cfg LogConfig) *lumberjack.Logger {
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	return &lumberjack.Logger{
		Filename:   cfg.Output,
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ============ Глобальный логгер ============

// GetGlobalLogger возвращает глобальный логгер, создавая дефолтный при первом вызове
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{Level: "info", Format: "json"})
	}
	return globalLogger
}

// L - короткий алиас для GetGlobalLogger
func L() *Logger {
	return GetGlobalLogger()
}

// InitGlobalLogger создаёт логгер и делает его глобальным
func InitGlobalLogger(cfg LogConfig) *Logger {
	l := InitLogger(cfg)
	SetGlobalLogger(l)
	return l
}

// SetGlobalLogger заменяет глобальный логгер
func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// ============ Методы Logger ============

// With возвращает дочерний логгер с полями
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

func (l *Logger) WithComponent(name string) *Logger {
	return l.With(Component(name))
}

// ============ Конструкторы доменных полей ============

func Venue(name string) zap.Field     { return zap.String("venue", name) }
func Coin(coin string) zap.Field      { return zap.String("coin", coin) }
func Symbol(symbol string) zap.Field  { return zap.String("symbol", symbol) }
func EventID(id string) zap.Field     { return zap.String("event_id", id) }
func IterationID(id string) zap.Field { return zap.String("iteration_id", id) }
func OrderID(id string) zap.Field     { return zap.String("order_id", id) }
func ClientID(id string) zap.Field    { return zap.String("client_id", id) }
func Price(p float64) zap.Field       { return zap.Float64("price", p) }
func Size(s float64) zap.Field        { return zap.Float64("size", s) }
func NetUSD(v float64) zap.Field      { return zap.Float64("net_usd", v) }
func NetCoin(v float64) zap.Field     { return zap.Float64("net_coin", v) }
func Side(side string) zap.Field      { return zap.String("side", side) }
func State(state string) zap.Field    { return zap.String("state", state) }
func Latency(ms int64) zap.Field      { return zap.Int64("latency_ms", ms) }
func RoutingKey(key string) zap.Field { return zap.String("routing_key", key) }
func Component(name string) zap.Field { return zap.String("component", name) }

// Переэкспорт стандартных конструкторов, чтобы не импортировать zap везде
var (
	String  = zap.String
	Int     = zap.Int
	Int64   = zap.Int64
	Float64 = zap.Float64
	Err     = zap.Error
	Any     = zap.Any
	Dur     = zap.Duration
)
