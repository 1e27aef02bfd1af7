// File: internal/plugin/hooks.go
package plugin

import (
	"context"
	"time"
)

// Event describes one round-trip issued through a Session: a verb call or a
// transaction lifecycle step (begin, commit, rollback).
type Event struct {
	Verb    string
	Command string
	Args    []any
	TxID    string
	Rows    int64
	Err     error
	Start   time.Time
	Elapsed time.Duration
}

// Hooks defines lifecycle callbacks around statement execution. Before may
// return a derived context which is used for the call and passed to After.
type Hooks interface {
	BeforeStatement(ctx context.Context, ev *Event) context.Context
	AfterStatement(ctx context.Context, ev *Event)
}

// Chain fans callbacks out to several Hooks in order.
type Chain []Hooks

func (c Chain) BeforeStatement(ctx context.Context, ev *Event) context.Context {
	for _, h := range c {
		ctx = h.BeforeStatement(ctx, ev)
	}
	return ctx
}

// AfterStatement runs in reverse order so wrappers unwind like defers.
func (c Chain) AfterStatement(ctx context.Context, ev *Event) {
	for i := len(c) - 1; i >= 0; i-- {
		c[i].AfterStatement(ctx, ev)
	}
}

// Status labels an event outcome for metrics and spans.
func (ev *Event) Status() string {
	if ev.Err != nil {
		return "error"
	}
	return "ok"
}
