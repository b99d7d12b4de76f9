package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Strob0t/taskcrew/internal/domain/agent"
	"github.com/Strob0t/taskcrew/internal/domain/routing"
	contract "github.com/Strob0t/taskcrew/internal/port/worker"
)

// Echo answers every request with what it received. Development only.
func Echo(_ context.Context, req contract.Request) (json.RawMessage, error) {
	return json.Marshal(map[string]any{
		"role":   req.Role,
		"action": req.Action,
		"taskId": req.TaskID,
		"echo":   req.Input,
	})
}

// NewEchoMux returns a table for role with Echo registered for every task
// type the role handles.
func NewEchoMux(role agent.Role, log *slog.Logger) *Mux {
	m := NewMux(role, log)
	for _, t := range routing.TypesFor(role) {
		m.Handle(t, Echo)
	}
	return m
}
