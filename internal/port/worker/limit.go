package worker

import (
	"context"

	"github.com/Strob0t/taskcrew/internal/resilience"
)

type limited struct {
	next    Invoker
	limiter *resilience.Limiter
}

// Limited wraps inv so that at most n calls are in flight at once, across
// every role and business. n <= 0 returns inv unchanged. A caller whose
// context ends while waiting gets an *InvocationError.
func Limited(inv Invoker, n int) Invoker {
	if n <= 0 {
		return inv
	}
	return &limited{next: inv, limiter: resilience.NewLimiter(n)}
}

func (l *limited) Invoke(ctx context.Context, req Request) (Response, error) {
	var resp Response
	var callErr error
	err := l.limiter.Run(ctx, func() error {
		resp, callErr = l.next.Invoke(ctx, req)
		return nil
	})
	if err != nil {
		return Response{}, &InvocationError{Role: req.Role, TaskID: req.TaskID, Message: "waiting for a worker slot", Err: err}
	}
	return resp, callErr
}

// BreakerStates forwards to the wrapped invoker.
func (l *limited) BreakerStates() map[string]string {
	return BreakerStates(l.next)
}
