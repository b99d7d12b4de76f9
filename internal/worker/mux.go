// Package worker is the worker-side half of the worker contract: a handler
// table keyed by task type for one role, served over HTTP or NATS.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/Strob0t/taskcrew/internal/domain/agent"
	"github.com/Strob0t/taskcrew/internal/domain/routing"
	"github.com/Strob0t/taskcrew/internal/domain/task"
	"github.com/Strob0t/taskcrew/internal/logger"
	contract "github.com/Strob0t/taskcrew/internal/port/worker"
)

// maxRequestBytes caps the size of an incoming worker request.
const maxRequestBytes = 4 << 20

// HandlerFunc performs one kind of work and returns its output.
type HandlerFunc func(ctx context.Context, req contract.Request) (json.RawMessage, error)

// Mux dispatches worker requests for one role by task type.
type Mux struct {
	role     agent.Role
	handlers map[task.Type]HandlerFunc
	log      *slog.Logger
}

// NewMux creates an empty table for role.
func NewMux(role agent.Role, log *slog.Logger) *Mux {
	if log == nil {
		log = slog.Default()
	}
	return &Mux{role: role, handlers: make(map[task.Type]HandlerFunc), log: log}
}

// Role returns the role this table serves.
func (m *Mux) Role() agent.Role { return m.role }

// Handle registers h for t, replacing any previous handler.
func (m *Mux) Handle(t task.Type, h HandlerFunc) {
	m.handlers[t] = h
}

// Validate reports every task type routed to the role that has no handler.
func (m *Mux) Validate() error {
	var missing []string
	for _, t := range routing.TypesFor(m.role) {
		if _, ok := m.handlers[t]; !ok {
			missing = append(missing, string(t))
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("%s worker has no handler for: %s", m.role, strings.Join(missing, ", "))
	}
	return nil
}

// Invoke runs the handler for req.Action in process. It implements the
// worker invoker contract, so a Mux can stand in for a remote worker.
func (m *Mux) Invoke(ctx context.Context, req contract.Request) (contract.Response, error) {
	h, err := m.lookup(req)
	if err != nil {
		return contract.Response{Success: false, Error: err.Error()}, nil
	}
	data, err := h(logger.WithTask(ctx, req.TaskID, string(m.role)), req)
	if err != nil {
		return contract.Response{Success: false, Error: err.Error()}, nil
	}
	return contract.Response{Success: true, Data: data}, nil
}

var errUnknownAction = errors.New("unknown action")

func (m *Mux) lookup(req contract.Request) (HandlerFunc, error) {
	if req.Role != "" && req.Role != m.role {
		return nil, fmt.Errorf("request for %s sent to %s worker", req.Role, m.role)
	}
	t, err := task.ParseType(req.Action)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errUnknownAction, req.Action)
	}
	h, ok := m.handlers[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownAction, req.Action)
	}
	return h, nil
}

// ServeHTTP decodes a worker request, runs its handler and writes the
// {success, data, error} envelope.
func (m *Mux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeEnvelope(w, http.StatusMethodNotAllowed, contract.Response{Error: "method not allowed"})
		return
	}

	var req contract.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, contract.Response{Error: "invalid request body"})
		return
	}

	h, err := m.lookup(req)
	if err != nil {
		writeEnvelope(w, http.StatusBadRequest, contract.Response{Error: err.Error()})
		return
	}

	ctx := logger.WithTask(r.Context(), req.TaskID, string(m.role))
	data, err := h(ctx, req)
	if err != nil {
		m.log.WarnContext(ctx, "worker handler failed", "action", req.Action, "error", err)
		writeEnvelope(w, http.StatusInternalServerError, contract.Response{Error: err.Error()})
		return
	}
	writeEnvelope(w, http.StatusOK, contract.Response{Success: true, Data: data})
}

// Respond runs one raw request envelope and returns the encoded reply. It
// serves request/reply transports such as NATS.
func (m *Mux) Respond(ctx context.Context, data []byte) []byte {
	var req contract.Request
	var resp contract.Response
	if err := json.Unmarshal(data, &req); err != nil {
		resp = contract.Response{Error: "invalid request body"}
	} else {
		resp, _ = m.Invoke(ctx, req)
		if !resp.Success {
			m.log.WarnContext(logger.WithTask(ctx, req.TaskID, string(m.role)), "worker request failed", "action", req.Action, "error", resp.Error)
		}
	}
	out, err := json.Marshal(resp)
	if err != nil {
		return []byte(`{"success":false,"error":"encode reply"}`)
	}
	return out
}

func writeEnvelope(w http.ResponseWriter, status int, resp contract.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

var _ contract.Invoker = (*Mux)(nil)
