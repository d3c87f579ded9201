package testutil

import (
	"github.com/counterpos/counterpos/internal/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// NewObservedLogger returns a logger whose entries at or above level can be
// inspected by the test
func NewObservedLogger(level zapcore.Level) (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return &logger.Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}
