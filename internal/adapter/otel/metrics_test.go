package otel

import (
	"context"
	"testing"

	"github.com/Strob0t/taskcrew/internal/config"
)

func TestNewMetricsNoopProvider(t *testing.T) {
	m, err := NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	ctx := context.Background()
	m.RecordClaimed(ctx, "b1", 3)
	m.RecordOutcome(ctx, "writer", "needs_review")
	m.RecordOutcome(ctx, "scout", "failed")
	m.RecordCycle(ctx, 0.5)
	m.RecordWorkerCall(ctx, "scout", 0.1, true)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordClaimed(context.Background(), "b1", 1)
	m.RecordOutcome(context.Background(), "writer", "completed")
	m.RecordCycle(context.Background(), 1)
	m.RecordWorkerCall(context.Background(), "writer", 1, false)
}

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.OTEL{Enabled: false})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSpansWithoutProvider(t *testing.T) {
	ctx, span := StartCycleSpan(context.Background(), "b1")
	_, child := StartWorkerSpan(ctx, "writer", "t1")
	child.End()
	span.End()
}
