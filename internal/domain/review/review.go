// Package review decides whether a finished unit of work is final or needs sign-off.
package review

import (
	"encoding/json"

	"github.com/Strob0t/taskcrew/internal/domain/agent"
	"github.com/Strob0t/taskcrew/internal/domain/business"
	"github.com/Strob0t/taskcrew/internal/domain/task"
)

// Result is what the worker call produced: either output or an error.
type Result struct {
	Output json.RawMessage
	Err    error
}

// Classify maps a worker result onto an outcome.
//
// Output from content-producing roles always goes to review, whatever the
// business's autonomy level. Every other role completes directly, also
// regardless of autonomy. The asymmetry is intentional until product says
// otherwise; autonomy is accepted so callers do not change when that happens.
func Classify(role agent.Role, res Result, _ business.Autonomy) task.Outcome {
	if res.Err != nil {
		return task.Failed(res.Err.Error())
	}
	if role.ContentProducing() {
		return task.NeedsReview(res.Output)
	}
	return task.Completed(res.Output)
}

// Policy holds the optional review extensions.
type Policy struct {
	// AutoApproveFullAuto approves review-bound work immediately for
	// full-auto businesses. Off by default.
	AutoApproveFullAuto bool
}

// AutoApprove reports whether a task that just entered review should be
// approved without waiting for a person.
func (p Policy) AutoApprove(o task.Outcome, autonomy business.Autonomy) bool {
	return p.AutoApproveFullAuto &&
		o.Kind == task.OutcomeNeedsReview &&
		autonomy == business.AutonomyFullAuto
}
