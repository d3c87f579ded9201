package logger

import (
	"context"

	"github.com/counterpos/counterpos/internal/config"
	"github.com/counterpos/counterpos/internal/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.SugaredLogger to provide logging functionality
type Logger struct {
	*zap.SugaredLogger
}

// L is the process-wide logger for scripts and package init code.
// Everything else receives a *Logger through dependency injection.
var L *Logger

func init() {
	L, _ = NewLogger(config.GetDefaultConfig())
}

// NewLogger creates and returns a new Logger instance
func NewLogger(cfg *config.Configuration) (*Logger, error) {
	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.TimeKey = "timestamp"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.Level = zap.NewAtomicLevelAt(levelFor(cfg.Logging.Level))

	if cfg.Deployment.Mode == types.ModeLocal {
		zapConfig.Encoding = "console"
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{
		SugaredLogger: zapLogger.Sugar(),
	}, nil
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// WithContext returns a logger annotated with the request and tenant of ctx
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := make([]interface{}, 0, 6)
	if requestID := types.GetRequestID(ctx); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}
	if tenantID := types.GetTenantID(ctx); tenantID != "" {
		fields = append(fields, "tenant_id", tenantID)
	}
	if userID := types.GetUserID(ctx); userID != "" {
		fields = append(fields, "user_id", userID)
	}
	if len(fields) == 0 {
		return l
	}
	return &Logger{SugaredLogger: l.SugaredLogger.With(fields...)}
}

func levelFor(level types.LogLevel) zapcore.Level {
	switch level {
	case types.LogLevelDebug:
		return zapcore.DebugLevel
	case types.LogLevelWarn:
		return zapcore.WarnLevel
	case types.LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
