package review

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/Strob0t/taskcrew/internal/domain/agent"
	"github.com/Strob0t/taskcrew/internal/domain/business"
	"github.com/Strob0t/taskcrew/internal/domain/task"
)

var autonomyLevels = []business.Autonomy{
	business.AutonomySupervised,
	business.AutonomySemiAuto,
	business.AutonomyFullAuto,
}

func TestClassifyFailure(t *testing.T) {
	for _, role := range agent.Roster {
		got := Classify(role, Result{Err: errors.New("worker down")}, business.AutonomyFullAuto)
		if got.Kind != task.OutcomeFailed || got.Error != "worker down" {
			t.Errorf("%s: expected failed outcome with message, got %+v", role, got)
		}
	}
}

func TestClassifyContentRolesAlwaysReview(t *testing.T) {
	out := json.RawMessage(`{"text":"draft"}`)
	for _, role := range []agent.Role{agent.RoleWriter, agent.RoleArtist} {
		for _, a := range autonomyLevels {
			got := Classify(role, Result{Output: out}, a)
			if got.Kind != task.OutcomeNeedsReview {
				t.Errorf("%s/%s: expected needs_review, got %s", role, a, got.Kind)
			}
			if string(got.Output) != string(out) {
				t.Errorf("%s/%s: output not carried", role, a)
			}
		}
	}
}

func TestClassifyOtherRolesComplete(t *testing.T) {
	for _, role := range agent.Roster {
		if role.ContentProducing() {
			continue
		}
		for _, a := range autonomyLevels {
			if got := Classify(role, Result{}, a); got.Kind != task.OutcomeCompleted {
				t.Errorf("%s/%s: expected completed, got %s", role, a, got.Kind)
			}
		}
	}
}

func TestAutoApprove(t *testing.T) {
	needs := task.NeedsReview(nil)
	tests := []struct {
		name     string
		policy   Policy
		outcome  task.Outcome
		autonomy business.Autonomy
		want     bool
	}{
		{"disabled", Policy{}, needs, business.AutonomyFullAuto, false},
		{"full auto", Policy{AutoApproveFullAuto: true}, needs, business.AutonomyFullAuto, true},
		{"semi auto", Policy{AutoApproveFullAuto: true}, needs, business.AutonomySemiAuto, false},
		{"supervised", Policy{AutoApproveFullAuto: true}, needs, business.AutonomySupervised, false},
		{"completed outcome", Policy{AutoApproveFullAuto: true}, task.Completed(nil), business.AutonomyFullAuto, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.AutoApprove(tt.outcome, tt.autonomy); got != tt.want {
				t.Errorf("AutoApprove = %v, want %v", got, tt.want)
			}
		})
	}
}
