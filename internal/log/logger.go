package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger threaded through the quote, routing and
// swap subsystems. Backed by zap; a no-op implementation is available for
// tests and for callers that embed the library without logging.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

type zapLogger struct {
	*zap.Logger
}

// NewLogger builds a production or development zap logger at the given level.
func NewLogger(isProduction bool, level string) (Logger, error) {
	parsedLevel := zapcore.InfoLevel
	if level != "" {
		var err error
		parsedLevel, err = zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
	}

	cfg := zap.NewDevelopmentConfig()
	if isProduction {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(parsedLevel)

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{logger}, nil
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger {
	return &zapLogger{zap.NewNop()}
}
