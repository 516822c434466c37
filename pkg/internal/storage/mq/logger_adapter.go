package mq

import (
	"maps"
	"slices"

	watermill "github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// watermillLogger 把 watermill 的日志写入 component=mq 的 zerolog logger.
// watermill 的 Debug 输出按消息粒度，统一降一级到 Trace.
type watermillLogger struct {
	l zerolog.Logger
}

// NewLogger 创建 watermill 日志适配器.
func NewLogger(l *zerolog.Logger) watermill.LoggerAdapter {
	return watermillLogger{l: l.With().Str("component", "mq").Logger()}
}

func (w watermillLogger) emit(ev *zerolog.Event, msg string, fields watermill.LogFields) {
	// 字段按名排序，日志行稳定可比对
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		ev = ev.Interface(k, fields[k])
	}

	ev.Msg(msg)
}

func (w watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.emit(w.l.Error().Err(err), msg, fields)
}

func (w watermillLogger) Info(msg string, fields watermill.LogFields) {
	w.emit(w.l.Info(), msg, fields)
}

func (w watermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.emit(w.l.Trace(), msg, fields)
}

func (w watermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.emit(w.l.Trace(), msg, fields)
}

func (w watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return watermillLogger{l: w.l.With().Fields(map[string]any(fields)).Logger()}
}
