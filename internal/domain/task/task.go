// Package task defines the Task domain entity and its lifecycle.
package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Strob0t/taskcrew/internal/domain"
	"github.com/Strob0t/taskcrew/internal/domain/agent"
)

// Priority bounds. Higher priorities are dispatched first.
const (
	MinPriority     = 1
	MaxPriority     = 10
	DefaultPriority = 5
)

// Type is the closed set of work categories.
type Type string

const (
	TypeStrategy Type = "strategy"
	TypeResearch Type = "research"
	TypeIntel    Type = "intel"
	TypeWrite    Type = "write"
	TypeDesign   Type = "design"
	TypePublish  Type = "publish"
	TypeEngage   Type = "engage"
	TypeAnalyze  Type = "analyze"
	TypeReview   Type = "review"
)

// Types lists every canonical task type.
var Types = []Type{
	TypeStrategy, TypeResearch, TypeIntel, TypeWrite, TypeDesign,
	TypePublish, TypeEngage, TypeAnalyze, TypeReview,
}

// aliases maps the verbs accepted from older clients onto canonical types.
var aliases = map[string]Type{
	"plan":       TypeStrategy,
	"discover":   TypeResearch,
	"qualify":    TypeResearch,
	"competitor": TypeIntel,
	"trends":     TypeIntel,
	"content":    TypeWrite,
	"email":      TypeWrite,
	"image":      TypeDesign,
	"visual":     TypeDesign,
	"schedule":   TypePublish,
	"send":       TypePublish,
	"respond":    TypeEngage,
	"nurture":    TypeEngage,
	"report":     TypeAnalyze,
	"metrics":    TypeAnalyze,
}

// Valid reports whether t is a canonical task type.
func (t Type) Valid() bool {
	switch t {
	case TypeStrategy, TypeResearch, TypeIntel, TypeWrite, TypeDesign,
		TypePublish, TypeEngage, TypeAnalyze, TypeReview:
		return true
	}
	return false
}

// ParseType accepts a canonical type or one of its aliases.
func ParseType(s string) (Type, error) {
	if t := Type(s); t.Valid() {
		return t, nil
	}
	if t, ok := aliases[s]; ok {
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown task type %q", domain.ErrValidation, s)
}

// Task is a unit of work owned by a business and, once dispatched, by one worker role.
type Task struct {
	ID           string          `json:"id"`
	BusinessID   string          `json:"business_id"`
	ParentTaskID string          `json:"parent_task_id,omitempty"`
	CampaignID   string          `json:"campaign_id,omitempty"`
	Type         Type            `json:"type"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	AssignedTo   agent.Role      `json:"assigned_to,omitempty"`
	CreatedBy    string          `json:"created_by"`
	Priority     int             `json:"priority"`
	Status       Status          `json:"status"`
	Input        json.RawMessage `json:"input"`
	Output       json.RawMessage `json:"output,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// CreateRequest holds the fields needed to enqueue a new task.
type CreateRequest struct {
	BusinessID   string          `json:"business_id"`
	ParentTaskID string          `json:"parent_task_id,omitempty"`
	CampaignID   string          `json:"campaign_id,omitempty"`
	Type         Type            `json:"type"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	AssignedTo   agent.Role      `json:"assigned_to,omitempty"`
	CreatedBy    string          `json:"created_by,omitempty"`
	Priority     int             `json:"priority,omitempty"`
	Input        json.RawMessage `json:"input,omitempty"`
}

// Validate normalises the request (alias types, default priority, creator and
// input) and rejects anything the store must never persist.
func (r *CreateRequest) Validate() error {
	if r.BusinessID == "" {
		return fmt.Errorf("%w: business_id is required", domain.ErrValidation)
	}
	t, err := ParseType(string(r.Type))
	if err != nil {
		return err
	}
	r.Type = t
	if r.Title == "" {
		return fmt.Errorf("%w: title is required", domain.ErrValidation)
	}
	if r.Priority == 0 {
		r.Priority = DefaultPriority
	}
	if r.Priority < MinPriority || r.Priority > MaxPriority {
		return fmt.Errorf("%w: priority must be between %d and %d, got %d",
			domain.ErrValidation, MinPriority, MaxPriority, r.Priority)
	}
	if r.AssignedTo != "" && !r.AssignedTo.Valid() {
		return fmt.Errorf("%w: unknown role %q", domain.ErrValidation, r.AssignedTo)
	}
	if r.CreatedBy == "" {
		r.CreatedBy = agent.CreatorHuman
	}
	if !agent.ValidCreator(r.CreatedBy) {
		return fmt.Errorf("%w: unknown creator %q", domain.ErrValidation, r.CreatedBy)
	}
	in, err := NormalizePayload(r.Type, r.Input)
	if err != nil {
		return err
	}
	r.Input = in
	return nil
}

// ListFilter narrows a task listing. Zero values mean "no filter".
type ListFilter struct {
	Status     Status
	CampaignID string
	Limit      int
}

// QueueStatus summarises the live part of a business's queue.
type QueueStatus struct {
	Queued   int                `json:"queued"`
	Running  int                `json:"running"`
	Review   int                `json:"review"`
	Approved int                `json:"approved"`
	ByRole   map[agent.Role]int `json:"by_role"`
}

// RoleActivity is the raw per-role input for the derived role status projection.
type RoleActivity struct {
	Role           agent.Role `json:"role"`
	Running        int        `json:"running"`
	LastStatus     Status     `json:"last_status,omitempty"`
	LastFinishedAt *time.Time `json:"last_finished_at,omitempty"`
}
