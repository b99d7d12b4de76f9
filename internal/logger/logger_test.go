package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/Strob0t/taskcrew/internal/config"
)

func TestNew(t *testing.T) {
	cfg := config.Logging{Level: "debug", Service: "test-svc"}
	l, closer := New(cfg)
	defer closer.Close()
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNewAsync(t *testing.T) {
	cfg := config.Logging{Level: "debug", Service: "test-svc", Async: true}
	l, closer := New(cfg)
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	closer.Close()
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"unknown", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input).String()
			if got != tt.want {
				t.Errorf("parseLevel(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	if RequestID(ctx) != "" || TaskID(ctx) != "" || Role(ctx) != "" {
		t.Fatal("empty context should carry no identifiers")
	}

	ctx = WithTask(WithRequestID(ctx, "req-123"), "task-7", "")
	if got := RequestID(ctx); got != "req-123" {
		t.Errorf("RequestID = %q", got)
	}
	if got := TaskID(ctx); got != "task-7" {
		t.Errorf("TaskID = %q", got)
	}
	if got := Role(ctx); got != "" {
		t.Errorf("Role = %q, want empty", got)
	}
}

func TestContextHandler(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		args []any
		want map[string]any
	}{
		{
			name: "request id",
			ctx:  WithRequestID(context.Background(), "req-9"),
			args: []any{"task_id", "t1"},
			want: map[string]any{"request_id": "req-9", "task_id": "t1"},
		},
		{
			name: "task from context",
			ctx:  WithTask(context.Background(), "t2", "scout"),
			want: map[string]any{"task_id": "t2", "role": "scout"},
		},
		{
			name: "explicit task wins",
			ctx:  WithTask(context.Background(), "t2", ""),
			args: []any{"task_id", "t3"},
			want: map[string]any{"task_id": "t3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := slog.New(&ContextHandler{Handler: slog.NewJSONHandler(&buf, nil)}).With("service", "test")
			l.InfoContext(tt.ctx, "task claimed", tt.args...)

			if n := bytes.Count(buf.Bytes(), []byte(`"task_id"`)); n > 1 {
				t.Fatalf("task_id written %d times: %s", n, buf.String())
			}
			var rec map[string]any
			if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
				t.Fatalf("decode log line: %v", err)
			}
			if rec["service"] != "test" {
				t.Errorf("service = %v", rec["service"])
			}
			for k, v := range tt.want {
				if rec[k] != v {
					t.Errorf("%s = %v, want %v", k, rec[k], v)
				}
			}
		})
	}
}

func TestAsyncHandlerReportsDrops(t *testing.T) {
	var buf bytes.Buffer
	// No room in the buffer and the record is written only after Close.
	ah := &AsyncHandler{inner: slog.NewJSONHandler(&buf, nil), st: &asyncState{ch: make(chan queued)}}
	slog.New(ah).Info("lost")
	if ah.DroppedCount() != 1 {
		t.Fatalf("dropped = %d, want 1", ah.DroppedCount())
	}
	ah.Close()
	ah.Close()

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if rec["msg"] != "log records dropped" || rec["dropped"] != float64(1) {
		t.Errorf("unexpected record %v", rec)
	}
}
