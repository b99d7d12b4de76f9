package nats

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/taskcrew/internal/domain"
	"github.com/Strob0t/taskcrew/internal/domain/agent"
	"github.com/Strob0t/taskcrew/internal/domain/task"
	"github.com/Strob0t/taskcrew/internal/logger"
	"github.com/Strob0t/taskcrew/internal/port/messagequeue"
	"github.com/Strob0t/taskcrew/internal/port/notifier"
	"github.com/Strob0t/taskcrew/internal/port/worker"
)

// fakeQueue records publishes and answers requests from a canned reply.
type fakeQueue struct {
	mu        sync.Mutex
	published map[string][]byte
	requested string
	reply     []byte
	replyErr  error
	subject   string
	handler   messagequeue.Handler
}

func (f *fakeQueue) Publish(_ context.Context, subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.published == nil {
		f.published = map[string][]byte{}
	}
	f.published[subject] = data
	return nil
}

func (f *fakeQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subject, f.handler = subject, h
	return func() {}, nil
}

func (f *fakeQueue) Request(_ context.Context, subject string, _ []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = subject
	return f.reply, f.replyErr
}

func (f *fakeQueue) Close() error      { return nil }
func (f *fakeQueue) IsConnected() bool { return true }

func TestNotifierPublishesPerBusiness(t *testing.T) {
	q := &fakeQueue{}
	n := NewNotifier(q)

	err := n.Notify(context.Background(), notifier.Change{TaskID: "t1", BusinessID: "b1", NewStatus: task.StatusReview})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}

	data, ok := q.published["tasks.changed.b1"]
	if !ok {
		t.Fatalf("nothing published on tasks.changed.b1: %v", q.published)
	}
	if err := messagequeue.Validate("tasks.changed.b1", data); err != nil {
		t.Fatalf("published payload fails its own schema: %v", err)
	}
	var p messagequeue.TaskChangedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatal(err)
	}
	if p.TaskID != "t1" || p.NewStatus != "review" {
		t.Errorf("unexpected payload %+v", p)
	}
}

type sinkFunc func(notifier.Change) error

func (f sinkFunc) Name() string { return "sink" }

func (f sinkFunc) Notify(_ context.Context, c notifier.Change) error { return f(c) }

func TestRelayDeliversPublishedChanges(t *testing.T) {
	q := &fakeQueue{}
	var got []notifier.Change
	stop, err := Relay(context.Background(), q, sinkFunc(func(c notifier.Change) error {
		got = append(got, c)
		return nil
	}))
	if err != nil {
		t.Fatalf("Relay: %v", err)
	}
	defer stop()
	if q.subject != "tasks.changed.>" {
		t.Fatalf("subscribed to %q, want tasks.changed.>", q.subject)
	}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sent := notifier.Change{TaskID: "t1", BusinessID: "b1", NewStatus: task.StatusRunning, At: at}
	if err := NewNotifier(q).Notify(context.Background(), sent); err != nil {
		t.Fatal(err)
	}
	subject := messagequeue.TaskChangedSubject("b1")
	if err := q.handler(context.Background(), subject, q.published[subject]); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(got) != 1 || got[0].TaskID != "t1" || got[0].NewStatus != task.StatusRunning || !got[0].At.Equal(at) {
		t.Errorf("relayed %+v, want %+v", got, sent)
	}

	if err := q.handler(context.Background(), subject, []byte(`{"task_id":1}`)); err == nil {
		t.Error("undecodable change should be refused for redelivery")
	}
}

func TestInvoker(t *testing.T) {
	req := worker.Request{Role: agent.RoleScout, Action: "research", BusinessID: "b1", TaskID: "t1", Input: json.RawMessage(`{}`)}

	tests := []struct {
		name     string
		reply    string
		replyErr error
		wantErr  bool
		wantData string
	}{
		{name: "success", reply: `{"success":true,"data":{"leads":3}}`, wantData: `{"leads":3}`},
		{name: "worker failure", reply: `{"success":false,"error":"rate limited"}`, wantErr: true},
		{name: "malformed reply", reply: `not json`, wantErr: true},
		{name: "transport error", replyErr: errors.New("no responders"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQueue{reply: []byte(tt.reply), replyErr: tt.replyErr}
			resp, err := NewInvoker(q, time.Second).Invoke(context.Background(), req)

			if q.requested != "workers.scout" {
				t.Errorf("requested subject %q, want workers.scout", q.requested)
			}
			if tt.wantErr {
				if !errors.Is(err, domain.ErrInvocation) {
					t.Fatalf("expected ErrInvocation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(resp.Data) != tt.wantData {
				t.Errorf("data = %s, want %s", resp.Data, tt.wantData)
			}
		})
	}
}

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *Queue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	q, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := q.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return q
}

func TestQueue_PublishSubscribe(t *testing.T) {
	q := testConnect(t)
	subject := messagequeue.TaskChangedSubject("it-" + t.Name())

	var (
		mu       sync.Mutex
		received *messagequeue.TaskChangedPayload
		gotReqID string
		done     = make(chan struct{})
		once     sync.Once
	)

	stop, err := q.Subscribe(context.Background(), subject, func(ctx context.Context, _ string, d []byte) error {
		var got messagequeue.TaskChangedPayload
		if err := json.Unmarshal(d, &got); err != nil {
			return err
		}
		mu.Lock()
		received = &got
		gotReqID = logger.RequestID(ctx)
		mu.Unlock()
		once.Do(func() { close(done) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	data := []byte(`{"task_id":"t1","business_id":"b1","new_status":"running"}`)
	ctx := logger.WithRequestID(context.Background(), "req-abc-123")
	if err := q.Publish(ctx, subject, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()
	if received == nil || received.TaskID != "t1" {
		t.Fatalf("unexpected message %+v", received)
	}
	if gotReqID != "req-abc-123" {
		t.Errorf("request ID = %q, want req-abc-123", gotReqID)
	}
}

func TestQueue_RequestReply(t *testing.T) {
	q := testConnect(t)
	subject := messagequeue.WorkerSubject("oracle")

	stop, err := q.Respond(subject, func(_ context.Context, data []byte) []byte {
		var req worker.Request
		_ = json.Unmarshal(data, &req)
		out, _ := json.Marshal(worker.Response{Success: true, Data: json.RawMessage(`{"echo":"` + req.TaskID + `"}`)})
		return out
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	defer stop()

	resp, err := NewInvoker(q, 5*time.Second).Invoke(context.Background(), worker.Request{
		Role: agent.RoleOracle, Action: "analyze", BusinessID: "b1", TaskID: "t9", Input: json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if string(resp.Data) != `{"echo":"t9"}` {
		t.Errorf("data = %s", resp.Data)
	}
}
