package plugin

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/TechXTT/dal"

// Tracing opens one span per event.
type Tracing struct {
	tracer trace.Tracer
	system string
}

// NewTracing uses tracer, or the global provider's tracer when nil.
func NewTracing(tracer trace.Tracer, system string) *Tracing {
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Tracing{tracer: tracer, system: system}
}

func (t *Tracing) BeforeStatement(ctx context.Context, ev *Event) context.Context {
	ctx, span := t.tracer.Start(ctx, "dal."+ev.Verb, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("db.system", t.system),
		attribute.String("db.operation", ev.Verb),
	)
	if ev.Command != "" {
		span.SetAttributes(attribute.String("db.statement", ev.Command))
	}
	if ev.TxID != "" {
		span.SetAttributes(attribute.String("dal.tx_id", ev.TxID))
	}
	return ctx
}

func (t *Tracing) AfterStatement(ctx context.Context, ev *Event) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Int64("db.rows_affected", ev.Rows))
	if ev.Err != nil {
		span.RecordError(ev.Err)
		span.SetStatus(codes.Error, ev.Err.Error())
	}
	span.End()
}
