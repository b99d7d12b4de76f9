// Package business defines the tenant entity that owns tasks, and its autonomy setting.
package business

import (
	"fmt"
	"time"

	"github.com/Strob0t/taskcrew/internal/domain"
)

// Autonomy controls how much human sign-off a business requires.
type Autonomy string

const (
	AutonomySupervised Autonomy = "supervised"
	AutonomySemiAuto   Autonomy = "semi-auto"
	AutonomyFullAuto   Autonomy = "full-auto"
)

// Valid reports whether a is a known autonomy level.
func (a Autonomy) Valid() bool {
	switch a {
	case AutonomySupervised, AutonomySemiAuto, AutonomyFullAuto:
		return true
	}
	return false
}

// Business is the isolation boundary for every task and role query.
type Business struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Autonomy  Autonomy  `json:"autonomy_level"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateRequest holds the fields required to register a business.
type CreateRequest struct {
	Name     string   `json:"name"`
	Autonomy Autonomy `json:"autonomy_level,omitempty"`
}

// Validate checks the request and fills the default autonomy level.
func (r *CreateRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if r.Autonomy == "" {
		r.Autonomy = AutonomySupervised
	}
	if !r.Autonomy.Valid() {
		return fmt.Errorf("%w: unknown autonomy level %q", domain.ErrValidation, r.Autonomy)
	}
	return nil
}
