package plugin

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Logging writes one log entry per event: failures at error level, slow
// statements at warn, everything else at debug.
type Logging struct {
	Logger        *zap.Logger
	SlowThreshold time.Duration
}

func NewLogging(logger *zap.Logger, slow time.Duration) *Logging {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logging{Logger: logger, SlowThreshold: slow}
}

func (l *Logging) BeforeStatement(ctx context.Context, _ *Event) context.Context {
	return ctx
}

func (l *Logging) AfterStatement(_ context.Context, ev *Event) {
	fields := []zap.Field{
		zap.String("verb", ev.Verb),
		zap.Duration("elapsed", ev.Elapsed),
		zap.Int64("rows", ev.Rows),
	}
	if ev.Command != "" {
		fields = append(fields, zap.String("sql", ev.Command))
	}
	if ev.TxID != "" {
		fields = append(fields, zap.String("tx", ev.TxID))
	}

	if ev.Err != nil {
		fields = append(fields, zap.Error(ev.Err))
		l.Logger.Error("statement failed", fields...)
		return
	}
	if l.SlowThreshold > 0 && ev.Elapsed > l.SlowThreshold {
		l.Logger.Warn("slow statement", fields...)
		return
	}
	l.Logger.Debug("statement", fields...)
}
