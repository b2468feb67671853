package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapLogger adapts a zap SugaredLogger to the Logger interface so the rest of
// the codebase never sees zap types.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger creates a console zap logger at the given level ("debug",
// "info", "warn", "error"; empty defaults to info).
func NewZapLogger(level string) Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))

	logger, err := cfg.Build()
	if err != nil {
		// Config above is static, Build can only fail on bad output paths.
		logger = zap.NewNop()
	}

	return &zapLogger{sugar: logger.Sugar()}
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (z *zapLogger) Debugf(msg string, args ...interface{}) {
	z.sugar.Debugf(msg, args...)
}

func (z *zapLogger) Infof(msg string, args ...interface{}) {
	z.sugar.Infof(msg, args...)
}

func (z *zapLogger) Warnf(msg string, args ...interface{}) {
	z.sugar.Warnf(msg, args...)
}

func (z *zapLogger) Errorf(msg string, args ...interface{}) {
	z.sugar.Errorf(msg, args...)
}
