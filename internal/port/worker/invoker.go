// Package worker defines the worker invocation port (interface) and its wire envelope.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Strob0t/taskcrew/internal/domain"
	"github.com/Strob0t/taskcrew/internal/domain/agent"
)

// Request is the envelope sent to a worker.
type Request struct {
	Role       agent.Role      `json:"role"`
	Action     string          `json:"action"`
	BusinessID string          `json:"businessId"`
	TaskID     string          `json:"taskId"`
	Input      json.RawMessage `json:"input"`
}

// Response is the envelope a worker returns.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Invoker calls a worker. A call may block for as long as the worker takes;
// implementations add no retry unless configured to. Any failure, including a
// response with Success=false, is returned as *InvocationError.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (Response, error)
}

// CircuitReporter is implemented by invokers that guard each role with a
// circuit breaker.
type CircuitReporter interface {
	BreakerStates() map[string]string
}

// BreakerStates returns the circuit state per role of inv, or nil when inv
// keeps no breakers.
func BreakerStates(inv Invoker) map[string]string {
	if r, ok := inv.(CircuitReporter); ok {
		return r.BreakerStates()
	}
	return nil
}

// InvocationError wraps a failed worker call.
type InvocationError struct {
	Role       agent.Role
	TaskID     string
	StatusCode int    // HTTP status, 0 when not applicable
	Message    string // worker-reported or transport message
	Err        error  // underlying transport error, may be nil
}

func (e *InvocationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s worker returned status %d", e.Role, e.StatusCode)
	}
	return fmt.Sprintf("%s worker failed", e.Role)
}

// Unwrap exposes both the transport error and domain.ErrInvocation.
func (e *InvocationError) Unwrap() []error {
	if e.Err != nil {
		return []error{domain.ErrInvocation, e.Err}
	}
	return []error{domain.ErrInvocation}
}

// Check converts a decoded response into an error when the worker reported
// failure. Transports call it after decoding.
func Check(req Request, resp Response) error {
	if resp.Success {
		return nil
	}
	msg := resp.Error
	if msg == "" {
		msg = fmt.Sprintf("%s worker reported failure", req.Role)
	}
	return &InvocationError{Role: req.Role, TaskID: req.TaskID, Message: msg}
}
