package task

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/Strob0t/taskcrew/internal/domain"
)

// Status represents the current state of a task.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusReview    Status = "review"
	StatusApproved  Status = "approved"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusReview, StatusApproved,
		StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal returns true if no automatic transition leaves s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Event names one edge family of the lifecycle.
type Event string

const (
	EventClaim       Event = "claim"        // queued -> running
	EventComplete    Event = "complete"     // running -> completed
	EventNeedsReview Event = "needs_review" // running -> review
	EventFail        Event = "fail"         // running -> failed
	EventApprove     Event = "approve"      // review -> approved
	EventReject      Event = "reject"       // review -> failed
	EventPublish     Event = "publish"      // approved -> completed
	EventCancel      Event = "cancel"       // queued|running|review -> cancelled
	EventRequeue     Event = "requeue"      // failed -> queued, administrative only
)

type edge struct {
	from []Status
	to   Status
}

var edges = map[Event]edge{
	EventClaim:       {from: []Status{StatusQueued}, to: StatusRunning},
	EventComplete:    {from: []Status{StatusRunning}, to: StatusCompleted},
	EventNeedsReview: {from: []Status{StatusRunning}, to: StatusReview},
	EventFail:        {from: []Status{StatusRunning}, to: StatusFailed},
	EventApprove:     {from: []Status{StatusReview}, to: StatusApproved},
	EventReject:      {from: []Status{StatusReview}, to: StatusFailed},
	EventPublish:     {from: []Status{StatusApproved}, to: StatusCompleted},
	EventCancel:      {from: []Status{StatusQueued, StatusRunning, StatusReview}, to: StatusCancelled},
	EventRequeue:     {from: []Status{StatusFailed}, to: StatusQueued},
}

// From returns the statuses the event may be applied to.
func (e Event) From() []Status {
	return slices.Clone(edges[e].from)
}

// To returns the status the event moves a task into.
func (e Event) To() Status {
	return edges[e].to
}

// Allowed reports whether e may be applied to a task currently in s.
func (e Event) Allowed(s Status) bool {
	ed, ok := edges[e]
	return ok && slices.Contains(ed.from, s)
}

// CanTransition reports whether any event moves a task from one status to another.
// The administrative requeue edge is excluded.
func CanTransition(from, to Status) bool {
	for ev, ed := range edges {
		if ev == EventRequeue {
			continue
		}
		if ed.to == to && slices.Contains(ed.from, from) {
			return true
		}
	}
	return false
}

// TransitionError reports a guarded mutation that did not match the current status.
type TransitionError struct {
	TaskID  string
	Event   Event
	Current Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("task %s: cannot %s from %s", e.TaskID, e.Event, e.Current)
}

// Unwrap lets callers match with errors.Is(err, domain.ErrInvalidTransition).
func (e *TransitionError) Unwrap() error { return domain.ErrInvalidTransition }

// Mutation carries the data an event writes alongside the status change.
type Mutation struct {
	Output json.RawMessage
	Error  string
}

// Apply performs event e on t in place, maintaining the timestamp invariants:
// started_at is written only by the claim, completed_at only on entry into a
// terminal status. It returns a *TransitionError when e is not allowed.
func Apply(t *Task, e Event, m Mutation, now time.Time) error {
	if !e.Allowed(t.Status) {
		return &TransitionError{TaskID: t.ID, Event: e, Current: t.Status}
	}
	to := e.To()

	switch e {
	case EventClaim:
		t.StartedAt = &now
	case EventComplete, EventNeedsReview, EventPublish:
		if m.Output != nil {
			t.Output = m.Output
		}
	case EventFail, EventReject:
		t.ErrorMessage = m.Error
	case EventRequeue:
		t.StartedAt = nil
		t.CompletedAt = nil
		t.ErrorMessage = ""
		t.Output = nil
	}

	if to.IsTerminal() {
		t.CompletedAt = &now
	}
	t.Status = to
	t.UpdatedAt = now
	return nil
}

// OutcomeKind is the classification of a finished unit of work.
type OutcomeKind string

const (
	OutcomeCompleted   OutcomeKind = "completed"
	OutcomeNeedsReview OutcomeKind = "needs_review"
	OutcomeFailed      OutcomeKind = "failed"
)

// Outcome is what the dispatcher records for a running task.
type Outcome struct {
	Kind   OutcomeKind     `json:"kind"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Completed builds a terminal success outcome.
func Completed(output json.RawMessage) Outcome {
	return Outcome{Kind: OutcomeCompleted, Output: output}
}

// NeedsReview builds an outcome that parks the task for sign-off.
func NeedsReview(output json.RawMessage) Outcome {
	return Outcome{Kind: OutcomeNeedsReview, Output: output}
}

// Failed builds a terminal failure outcome.
func Failed(msg string) Outcome {
	return Outcome{Kind: OutcomeFailed, Error: msg}
}

// Event maps the outcome onto its lifecycle event.
func (o Outcome) Event() (Event, error) {
	switch o.Kind {
	case OutcomeCompleted:
		return EventComplete, nil
	case OutcomeNeedsReview:
		return EventNeedsReview, nil
	case OutcomeFailed:
		return EventFail, nil
	}
	return "", fmt.Errorf("%w: unknown outcome %q", domain.ErrValidation, o.Kind)
}

// Mutation returns the payload the outcome writes.
func (o Outcome) Mutation() Mutation {
	return Mutation{Output: o.Output, Error: o.Error}
}
