// Package message defines the per-task audit trail of worker activity.
package message

import (
	"encoding/json"
	"time"
)

// Message is one entry in a task's activity log.
type Message struct {
	ID         string          `json:"id"`
	TaskID     string          `json:"task_id"`
	BusinessID string          `json:"business_id"`
	From       string          `json:"from_role"`
	To         string          `json:"to_role,omitempty"`
	Body       string          `json:"message"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// FromDispatcher is the sender recorded for entries written by the core itself.
const FromDispatcher = "dispatcher"
