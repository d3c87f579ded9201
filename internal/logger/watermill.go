package logger

import (
	"github.com/ThreeDotsLabs/watermill"
)

// watermillAdapter routes watermill's router and pubsub logs through zap.
// Watermill info logs are chatty per message, so they go out at debug level.
type watermillAdapter struct {
	log    *Logger
	fields watermill.LogFields
}

// Watermill returns a watermill.LoggerAdapter backed by l
func (l *Logger) Watermill() watermill.LoggerAdapter {
	return &watermillAdapter{log: l}
}

func (a *watermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Errorw(msg, append(a.kv(fields), "error", err)...)
}

func (a *watermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Debugw(msg, a.kv(fields)...)
}

func (a *watermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debugw(msg, a.kv(fields)...)
}

func (a *watermillAdapter) Trace(msg string, fields watermill.LogFields) {}

func (a *watermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillAdapter{log: a.log, fields: a.fields.Add(fields)}
}

func (a *watermillAdapter) kv(fields watermill.LogFields) []interface{} {
	all := a.fields.Add(fields)
	out := make([]interface{}, 0, len(all)*2)
	for k, v := range all {
		out = append(out, k, v)
	}
	return out
}
