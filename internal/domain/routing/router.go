// Package routing maps tasks onto the worker role that handles them.
package routing

import (
	"fmt"

	"github.com/Strob0t/taskcrew/internal/domain"
	"github.com/Strob0t/taskcrew/internal/domain/agent"
	"github.com/Strob0t/taskcrew/internal/domain/task"
)

// table is the static type -> role assignment.
var table = map[task.Type]agent.Role{
	task.TypeStrategy: agent.RoleCommander,
	task.TypeReview:   agent.RoleCommander,
	task.TypeResearch: agent.RoleScout,
	task.TypeIntel:    agent.RoleSpy,
	task.TypeWrite:    agent.RoleWriter,
	task.TypeDesign:   agent.RoleArtist,
	task.TypePublish:  agent.RoleBroadcaster,
	task.TypeEngage:   agent.RoleAmbassador,
	task.TypeAnalyze:  agent.RoleOracle,
}

// Error reports a task for which no role can be resolved. It is a
// configuration problem, never a transient one.
type Error struct {
	TaskID     string
	Type       task.Type
	AssignedTo agent.Role
}

func (e *Error) Error() string {
	if e.AssignedTo != "" {
		return fmt.Sprintf("no worker for task %s: unknown role %q", e.TaskID, e.AssignedTo)
	}
	return fmt.Sprintf("no worker for task %s: unknown task type %q", e.TaskID, e.Type)
}

// Unwrap lets callers match with errors.Is(err, domain.ErrRouting).
func (e *Error) Unwrap() error { return domain.ErrRouting }

// Resolve returns the role that should handle t: the explicit assignment when
// present, otherwise the default for the task's type.
func Resolve(t *task.Task) (agent.Role, error) {
	if t.AssignedTo != "" {
		if !t.AssignedTo.Valid() {
			return "", &Error{TaskID: t.ID, Type: t.Type, AssignedTo: t.AssignedTo}
		}
		return t.AssignedTo, nil
	}
	if r, ok := table[t.Type]; ok {
		return r, nil
	}
	return "", &Error{TaskID: t.ID, Type: t.Type}
}

// DefaultRole returns the role that handles tasks of type tt.
func DefaultRole(tt task.Type) (agent.Role, bool) {
	r, ok := table[tt]
	return r, ok
}

// TypesFor returns the canonical task types routed to r by default, in the
// order of task.Types.
func TypesFor(r agent.Role) []task.Type {
	var out []task.Type
	for _, tt := range task.Types {
		if table[tt] == r {
			out = append(out, tt)
		}
	}
	return out
}

// Assign fills an empty AssignedTo on req with the default role for its
// type, so the persisted row records who will handle it.
func Assign(req *task.CreateRequest) {
	if req.AssignedTo != "" {
		return
	}
	if r, ok := table[req.Type]; ok {
		req.AssignedTo = r
	}
}
