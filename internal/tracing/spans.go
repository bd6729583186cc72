package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Span attribute keys for register core spans.
const (
	AttrRegisterID  attribute.Key = "register.id"
	AttrTenantID    attribute.Key = "register.tenant_id"
	AttrHeight      attribute.Key = "register.height"
	AttrTxID        attribute.Key = "tx.id"
	AttrDocketID    attribute.Key = "docket.id"
	AttrDocketState attribute.Key = "docket.state"
	AttrTxCount     attribute.Key = "docket.tx_count"
	AttrPage        attribute.Key = "query.page"
	AttrPageSize    attribute.Key = "query.page_size"
	AttrResultCount attribute.Key = "query.total_count"
)

// SpanPrefix namespaces every span name.
const SpanPrefix = "register."

var noopTracer = noop.NewTracerProvider().Tracer("noop")

// Start opens a span named SpanPrefix+operation. A nil tracer yields a
// non-recording span so callers never need to branch.
func Start(ctx context.Context, tracer trace.Tracer, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tracer == nil {
		tracer = noopTracer
	}
	return tracer.Start(ctx, SpanPrefix+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// End records err on span (if any), sets the status and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
