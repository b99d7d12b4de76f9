package messagequeue

import "time"

// TaskChangedPayload is the schema for tasks.changed.{business_id} messages.
type TaskChangedPayload struct {
	TaskID     string    `json:"task_id"`
	BusinessID string    `json:"business_id"`
	NewStatus  string    `json:"new_status"`
	At         time.Time `json:"at,omitzero"`
}

// WorkerRequestPayload is the schema for workers.{role} requests.
type WorkerRequestPayload struct {
	Role       string `json:"role"`
	Action     string `json:"action"`
	BusinessID string `json:"businessId"`
	TaskID     string `json:"taskId"`
}
