package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Closer flushes buffered output.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// queued carries a record together with the handler that must write it, so
// attributes bound with WithAttrs survive the hop to the writer goroutine.
type queued struct {
	h   slog.Handler
	rec slog.Record
}

// asyncState is shared by an AsyncHandler and every handler derived from it.
type asyncState struct {
	ch      chan queued
	wg      sync.WaitGroup
	dropped atomic.Int64
	once    sync.Once
}

// AsyncHandler moves record formatting and writing off the dispatch path.
// When the buffer is full records are dropped and counted rather than
// blocking a dispatch cycle.
type AsyncHandler struct {
	inner slog.Handler
	st    *asyncState
}

// NewAsyncHandler starts workers goroutines draining a buffer of size records.
func NewAsyncHandler(inner slog.Handler, size, workers int) *AsyncHandler {
	st := &asyncState{ch: make(chan queued, size)}
	for range max(workers, 1) {
		st.wg.Add(1)
		go st.drain()
	}
	return &AsyncHandler{inner: inner, st: st}
}

func (st *asyncState) drain() {
	defer st.wg.Done()
	for q := range st.ch {
		_ = q.h.Handle(context.Background(), q.rec)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle queues a clone of rec.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.st.ch <- queued{h: h.inner, rec: rec.Clone()}:
	default:
		h.st.dropped.Add(1)
	}
	return nil
}

// WithAttrs derives a handler that shares the buffer.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), st: h.st}
}

// WithGroup derives a handler that shares the buffer.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), st: h.st}
}

// DroppedCount returns how many records were lost to a full buffer.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.st.dropped.Load()
}

// Close drains the buffer and, if anything was dropped, writes one final
// warning with the count. Safe to call more than once.
func (h *AsyncHandler) Close() {
	h.st.once.Do(func() {
		close(h.st.ch)
		h.st.wg.Wait()
		if n := h.st.dropped.Load(); n > 0 {
			rec := slog.NewRecord(time.Now(), slog.LevelWarn, "log records dropped", 0)
			rec.AddAttrs(slog.Int64("dropped", n))
			_ = h.inner.Handle(context.Background(), rec)
		}
	})
}
