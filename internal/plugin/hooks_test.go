package plugin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingHooks struct {
	name string
	log  *[]string
}

func (r recordingHooks) BeforeStatement(ctx context.Context, _ *Event) context.Context {
	*r.log = append(*r.log, "before:"+r.name)
	return ctx
}

func (r recordingHooks) AfterStatement(_ context.Context, _ *Event) {
	*r.log = append(*r.log, "after:"+r.name)
}

func TestChain_Order(t *testing.T) {
	var log []string
	chain := Chain{recordingHooks{"a", &log}, recordingHooks{"b", &log}}

	ev := &Event{Verb: "exec"}
	ctx := chain.BeforeStatement(context.Background(), ev)
	chain.AfterStatement(ctx, ev)

	assert.Equal(t, []string{"before:a", "before:b", "after:b", "after:a"}, log)
}

func TestLogging_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewLogging(zap.New(core), 100*time.Millisecond)

	l.AfterStatement(context.Background(), &Event{Verb: "insert", Command: "INSERT INTO brands", Rows: 1, Elapsed: time.Millisecond})
	l.AfterStatement(context.Background(), &Event{Verb: "queryRows", Command: "SELECT", Elapsed: time.Second, TxID: "tx-1"})
	l.AfterStatement(context.Background(), &Event{Verb: "exec", Command: "CREATE TABLE", Err: errors.New("boom")})

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "tx-1", entries[1].ContextMap()["tx"])
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "boom", entries[2].ContextMap()["error"])
}

func TestMetrics_CountsAndOpenTransactions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	ctx := context.Background()
	m.AfterStatement(ctx, &Event{Verb: "begin"})
	m.AfterStatement(ctx, &Event{Verb: "insert", Rows: 1})
	m.AfterStatement(ctx, &Event{Verb: "insert", Err: errors.New("dup")})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpenTx))

	m.AfterStatement(ctx, &Event{Verb: "commit", Err: errors.New("rejected")})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpenTx))
	m.AfterStatement(ctx, &Event{Verb: "rollback"})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.OpenTx))

	m.AfterStatement(ctx, &Event{Verb: "begin"})
	m.AfterStatement(ctx, &Event{Verb: "rollback", Err: errors.New("conn reset")})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.OpenTx))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Statements.WithLabelValues("insert", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Statements.WithLabelValues("insert", "error")))

	// Registering twice on the same registry is rejected.
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

type fakeTracer struct {
	embedded.Tracer
	inner   trace.Tracer
	started []string
}

func (f *fakeTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	f.started = append(f.started, name)
	return f.inner.Start(ctx, name, opts...)
}

func TestTracing_OneSpanPerEvent(t *testing.T) {
	ft := &fakeTracer{inner: noop.NewTracerProvider().Tracer("test")}
	tr := NewTracing(ft, "postgresql")

	for _, verb := range []string{"begin", "insert", "commit"} {
		ev := &Event{Verb: verb, Command: "x", TxID: "tx-1"}
		ctx := tr.BeforeStatement(context.Background(), ev)
		tr.AfterStatement(ctx, ev)
	}
	assert.Equal(t, []string{"dal.begin", "dal.insert", "dal.commit"}, ft.started)
}
