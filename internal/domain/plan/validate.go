package plan

import (
	"errors"
	"fmt"

	"github.com/Strob0t/taskcrew/internal/domain"
	"github.com/Strob0t/taskcrew/internal/domain/task"
)

var (
	ErrNoItems       = errors.New("plan has no items")
	ErrItemTitle     = errors.New("item title is required")
	ErrItemType      = errors.New("item type is invalid")
	ErrItemRole      = errors.New("item role is invalid")
	ErrItemNotObject = errors.New("item input must be a JSON object")
)

// Validate checks every item before anything is spawned, so a bad plan
// creates no children at all.
func Validate(items []Item) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: %w", domain.ErrValidation, ErrNoItems)
	}
	for i, it := range items {
		if it.Title == "" {
			return fmt.Errorf("%w: item %d: %w", domain.ErrValidation, i, ErrItemTitle)
		}
		if _, err := task.ParseType(string(it.Type)); err != nil {
			return fmt.Errorf("%w: item %d (%q): %w", domain.ErrValidation, i, it.Type, ErrItemType)
		}
		if it.AssignTo != "" && !it.AssignTo.Valid() {
			return fmt.Errorf("%w: item %d (%q): %w", domain.ErrValidation, i, it.AssignTo, ErrItemRole)
		}
	}
	return nil
}

// ClampPriority pulls an item priority into the task range. Zero stays zero
// so the task default applies.
func ClampPriority(p int) int {
	if p == 0 {
		return 0
	}
	return max(task.MinPriority, min(p, task.MaxPriority))
}
