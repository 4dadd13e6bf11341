package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap sugared logger so callers only see the key/value API
type Logger struct {
	*zap.SugaredLogger
}

// New creates a logger for the given level ("debug", "info", ...) and mode
// ("development" or "production")
func New(level, mode string) (*Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch mode {
	case "development":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "production", "":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("invalid log mode %q", mode)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	base, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return &Logger{SugaredLogger: base.Sugar()}, nil
}

// NewNop returns a logger that discards everything. Useful in tests.
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// Close flushes buffered log entries
func (l *Logger) Close() {
	// Sync on stdout/stderr returns EINVAL on some platforms; nothing to do about it
	_ = l.Sync()
}

// MaskPhoneNumber hides every digit of a phone number except the last four
func MaskPhoneNumber(phoneNumber string) string {
	if len(phoneNumber) <= 4 {
		return "****"
	}

	head := phoneNumber[:len(phoneNumber)-4]
	var b strings.Builder
	b.Grow(len(phoneNumber))
	for _, r := range head {
		if r >= '0' && r <= '9' {
			b.WriteByte('*')
			continue
		}
		b.WriteRune(r)
	}
	b.WriteString(phoneNumber[len(phoneNumber)-4:])

	return b.String()
}
