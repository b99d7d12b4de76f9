package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Strob0t/taskcrew/internal/domain/business"
	"github.com/Strob0t/taskcrew/internal/domain/message"
	"github.com/Strob0t/taskcrew/internal/domain/task"
	"github.com/Strob0t/taskcrew/internal/service"
)

// Handlers holds the services the HTTP routes call.
type Handlers struct {
	Businesses  *service.BusinessService
	Tasks       *service.TaskService
	Dispatcher  *service.Dispatcher
	QueueStatus *service.QueueStatusService

	// Stream serves the dashboard change stream on /ws. Optional.
	Stream http.Handler
	// Ping reports backend health for /health. Optional.
	Ping func(context.Context) error
	// Breakers reports the worker circuit state per role for /health. Optional.
	Breakers func() map[string]string
}

// Health reports liveness, and store reachability when Ping is set. Open
// worker circuits are listed but do not make the control plane unhealthy.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if h.Breakers != nil {
		if states := h.Breakers(); len(states) > 0 {
			body["workers"] = states
		}
	}
	if h.Ping != nil {
		if err := h.Ping(r.Context()); err != nil {
			body["status"] = "degraded"
			body["error"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// --- Businesses ---

// CreateBusiness handles POST /api/v1/businesses
func (h *Handlers) CreateBusiness(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[business.CreateRequest](w, r, defaultBodyLimit)
	if !ok {
		return
	}
	b, err := h.Businesses.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// ListBusinesses handles GET /api/v1/businesses
func (h *Handlers) ListBusinesses(w http.ResponseWriter, r *http.Request) {
	list, err := h.Businesses.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if list == nil {
		list = []business.Business{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetBusiness handles GET /api/v1/businesses/{id}
func (h *Handlers) GetBusiness(w http.ResponseWriter, r *http.Request) {
	b, err := h.Businesses.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type autonomyRequest struct {
	Autonomy business.Autonomy `json:"autonomy_level"`
}

// SetAutonomy handles PUT /api/v1/businesses/{id}/autonomy
func (h *Handlers) SetAutonomy(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[autonomyRequest](w, r, defaultBodyLimit)
	if !ok {
		return
	}
	b, err := h.Businesses.SetAutonomy(r.Context(), urlParam(r, "id"), req.Autonomy)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// --- Business-scoped tasks ---

// EnqueueTask handles POST /api/v1/businesses/{id}/tasks
func (h *Handlers) EnqueueTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[task.CreateRequest](w, r, defaultBodyLimit)
	if !ok {
		return
	}
	req.BusinessID = urlParam(r, "id")
	t, err := h.Tasks.Enqueue(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// ListTasks handles GET /api/v1/businesses/{id}/tasks
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	q := r.URL.Query()
	f := task.ListFilter{
		Status:     task.Status(q.Get("status")),
		CampaignID: q.Get("campaign_id"),
		Limit:      limit,
	}
	list, err := h.Tasks.List(r.Context(), urlParam(r, "id"), f)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilTasks(list))
}

// ProcessQueue handles POST /api/v1/businesses/{id}/process-queue
func (h *Handlers) ProcessQueue(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Dispatcher.ProcessQueue(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// GetQueueStatus handles GET /api/v1/businesses/{id}/queue-status
func (h *Handlers) GetQueueStatus(w http.ResponseWriter, r *http.Request) {
	qs, err := h.QueueStatus.QueueStatus(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, qs)
}

// ListRoles handles GET /api/v1/businesses/{id}/roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.QueueStatus.Roles(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

// --- Tasks ---

// GetTask handles GET /api/v1/tasks/{id}
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tasks.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ListChildren handles GET /api/v1/tasks/{id}/children
func (h *Handlers) ListChildren(w http.ResponseWriter, r *http.Request) {
	list, err := h.Tasks.Children(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilTasks(list))
}

// ListMessages handles GET /api/v1/tasks/{id}/messages
func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.Tasks.Messages(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if msgs == nil {
		msgs = []message.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// ProcessTask handles POST /api/v1/tasks/{id}/process. A worker failure is a
// recorded outcome, not a request error, so it still answers 200.
func (h *Handlers) ProcessTask(w http.ResponseWriter, r *http.Request) {
	res, err := h.Dispatcher.ProcessSingle(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ApproveTask handles POST /api/v1/tasks/{id}/approve
func (h *Handlers) ApproveTask(w http.ResponseWriter, r *http.Request) {
	h.writeTask(w, func() (*task.Task, error) {
		return h.Tasks.Approve(r.Context(), urlParam(r, "id"))
	})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// RejectTask handles POST /api/v1/tasks/{id}/reject
func (h *Handlers) RejectTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readOptionalJSON[rejectRequest](w, r, defaultBodyLimit)
	if !ok {
		return
	}
	h.writeTask(w, func() (*task.Task, error) {
		return h.Tasks.Reject(r.Context(), urlParam(r, "id"), req.Reason)
	})
}

// CancelTask handles POST /api/v1/tasks/{id}/cancel
func (h *Handlers) CancelTask(w http.ResponseWriter, r *http.Request) {
	h.writeTask(w, func() (*task.Task, error) {
		return h.Tasks.Cancel(r.Context(), urlParam(r, "id"))
	})
}

type publishRequest struct {
	Output json.RawMessage `json:"output,omitempty"`
}

// PublishTask handles POST /api/v1/tasks/{id}/publish
func (h *Handlers) PublishTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readOptionalJSON[publishRequest](w, r, defaultBodyLimit)
	if !ok {
		return
	}
	h.writeTask(w, func() (*task.Task, error) {
		return h.Tasks.Publish(r.Context(), urlParam(r, "id"), req.Output)
	})
}

// RequeueTask handles POST /api/v1/tasks/{id}/requeue
func (h *Handlers) RequeueTask(w http.ResponseWriter, r *http.Request) {
	h.writeTask(w, func() (*task.Task, error) {
		return h.Tasks.Requeue(r.Context(), urlParam(r, "id"))
	})
}

func (h *Handlers) writeTask(w http.ResponseWriter, fn func() (*task.Task, error)) {
	t, err := fn()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func nonNilTasks(list []task.Task) []task.Task {
	if list == nil {
		return []task.Task{}
	}
	return list
}
