package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "taskcrew"

// Metrics holds all taskcrew metric instruments.
type Metrics struct {
	TasksClaimed   metric.Int64Counter
	TasksCompleted metric.Int64Counter
	TasksReview    metric.Int64Counter
	TasksFailed    metric.Int64Counter
	CycleDuration  metric.Float64Histogram
	WorkerDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.TasksClaimed, err = meter.Int64Counter("taskcrew.tasks.claimed",
		metric.WithDescription("Number of tasks claimed by the dispatcher"))
	if err != nil {
		return nil, err
	}

	m.TasksCompleted, err = meter.Int64Counter("taskcrew.tasks.completed",
		metric.WithDescription("Number of tasks completed directly"))
	if err != nil {
		return nil, err
	}

	m.TasksReview, err = meter.Int64Counter("taskcrew.tasks.review",
		metric.WithDescription("Number of tasks parked for review"))
	if err != nil {
		return nil, err
	}

	m.TasksFailed, err = meter.Int64Counter("taskcrew.tasks.failed",
		metric.WithDescription("Number of tasks failed"))
	if err != nil {
		return nil, err
	}

	m.CycleDuration, err = meter.Float64Histogram("taskcrew.dispatch.duration_seconds",
		metric.WithDescription("Dispatch cycle duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.WorkerDuration, err = meter.Float64Histogram("taskcrew.worker.duration_seconds",
		metric.WithDescription("Worker call duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordClaimed counts claimed tasks for a business.
func (m *Metrics) RecordClaimed(ctx context.Context, businessID string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.TasksClaimed.Add(ctx, int64(n), metric.WithAttributes(attribute.String("business.id", businessID)))
}

// RecordOutcome counts one recorded outcome by kind ("completed", "needs_review", "failed").
func (m *Metrics) RecordOutcome(ctx context.Context, role, kind string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("role", role))
	switch kind {
	case "completed":
		m.TasksCompleted.Add(ctx, 1, attrs)
	case "needs_review":
		m.TasksReview.Add(ctx, 1, attrs)
	default:
		m.TasksFailed.Add(ctx, 1, attrs)
	}
}

// RecordCycle records the duration of one dispatch cycle.
func (m *Metrics) RecordCycle(ctx context.Context, seconds float64) {
	if m == nil {
		return
	}
	m.CycleDuration.Record(ctx, seconds)
}

// RecordWorkerCall records the duration of one worker invocation.
func (m *Metrics) RecordWorkerCall(ctx context.Context, role string, seconds float64, ok bool) {
	if m == nil {
		return
	}
	m.WorkerDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("role", role),
		attribute.Bool("success", ok),
	))
}
