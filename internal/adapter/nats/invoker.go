package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Strob0t/taskcrew/internal/port/messagequeue"
	"github.com/Strob0t/taskcrew/internal/port/worker"
)

func init() {
	worker.Register("nats", func(opts worker.Options) (worker.Invoker, error) {
		if opts.NATSURL == "" {
			return nil, fmt.Errorf("nats invoker: nats url is required")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		q, err := Connect(ctx, opts.NATSURL)
		if err != nil {
			return nil, err
		}
		return NewInvoker(q, opts.Timeout), nil
	})
}

// Invoker calls workers over NATS request/reply on workers.{role}.
type Invoker struct {
	q       messagequeue.Queue
	timeout time.Duration
}

// NewInvoker creates an Invoker. A zero timeout relies on the caller's context.
func NewInvoker(q messagequeue.Queue, timeout time.Duration) *Invoker {
	return &Invoker{q: q, timeout: timeout}
}

// Invoke implements worker.Invoker.
func (i *Invoker) Invoke(ctx context.Context, req worker.Request) (worker.Response, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return worker.Response{}, &worker.InvocationError{Role: req.Role, TaskID: req.TaskID, Message: "encode request", Err: err}
	}

	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	raw, err := i.q.Request(ctx, messagequeue.WorkerSubject(string(req.Role)), data)
	if err != nil {
		return worker.Response{}, &worker.InvocationError{Role: req.Role, TaskID: req.TaskID, Err: err}
	}

	var resp worker.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return worker.Response{}, &worker.InvocationError{
			Role: req.Role, TaskID: req.TaskID,
			Message: fmt.Sprintf("%s worker returned malformed response", req.Role), Err: err,
		}
	}
	if err := worker.Check(req, resp); err != nil {
		return resp, err
	}
	return resp, nil
}
