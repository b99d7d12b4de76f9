package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "taskcrew"

// StartCycleSpan starts a span for one dispatch cycle of a business.
func StartCycleSpan(ctx context.Context, businessID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "dispatch.cycle",
		trace.WithAttributes(attribute.String("business.id", businessID)),
	)
}

// StartTaskSpan starts a span for processing one claimed task.
func StartTaskSpan(ctx context.Context, taskID, taskType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "dispatch.task",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("task.type", taskType),
		),
	)
}

// StartWorkerSpan starts a client span for a worker invocation.
func StartWorkerSpan(ctx context.Context, role, taskID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "worker.invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("worker.role", role),
			attribute.String("task.id", taskID),
		),
	)
}
