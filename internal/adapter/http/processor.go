package http

import (
	"net/http"
)

// Task-processor actions.
const (
	ActionProcessQueue   = "process_queue"
	ActionProcessSingle  = "process_single"
	ActionGetQueueStatus = "get_queue_status"
)

type processorRequest struct {
	Action     string `json:"action"`
	BusinessID string `json:"businessId"`
	TaskID     string `json:"taskId"`
}

type processorResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TaskProcessor handles POST /api/v1/task-processor, the action envelope
// older dashboards call instead of the resource routes.
func (h *Handlers) TaskProcessor(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[processorRequest](w, r, defaultBodyLimit)
	if !ok {
		return
	}
	ctx := r.Context()

	switch req.Action {
	case ActionProcessQueue:
		if req.BusinessID == "" {
			writeEnvelopeError(w, http.StatusBadRequest, "businessId is required")
			return
		}
		sum, err := h.Dispatcher.ProcessQueue(ctx, req.BusinessID)
		if err != nil {
			writeEnvelopeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, processorResponse{Success: true, Data: sum})

	case ActionProcessSingle:
		if req.TaskID == "" {
			writeEnvelopeError(w, http.StatusBadRequest, "taskId is required")
			return
		}
		res, err := h.Dispatcher.ProcessSingle(ctx, req.TaskID)
		if err != nil {
			writeEnvelopeDomainError(w, err)
			return
		}
		if !res.Success {
			writeEnvelopeError(w, http.StatusInternalServerError, res.Error)
			return
		}
		writeJSON(w, http.StatusOK, processorResponse{Success: true, Data: res.Data})

	case ActionGetQueueStatus:
		if req.BusinessID == "" {
			writeEnvelopeError(w, http.StatusBadRequest, "businessId is required")
			return
		}
		qs, err := h.QueueStatus.QueueStatus(ctx, req.BusinessID)
		if err != nil {
			writeEnvelopeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, processorResponse{Success: true, Data: qs})

	default:
		writeEnvelopeError(w, http.StatusBadRequest, "Unknown action: "+req.Action)
	}
}

func writeEnvelopeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, processorResponse{Success: false, Error: msg})
}

func writeEnvelopeDomainError(w http.ResponseWriter, err error) {
	status, msg := domainStatus(err)
	writeEnvelopeError(w, status, msg)
}
