// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates the caller supplied malformed or out-of-range input.
var ErrValidation = errors.New("validation failed")

// ErrInvalidTransition indicates a status change that the task lifecycle does not allow
// from the task's current status. The stored record is left untouched.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrRouting indicates no worker role could be resolved for a task.
var ErrRouting = errors.New("routing failed")

// ErrInvocation indicates a worker call failed or reported success=false.
var ErrInvocation = errors.New("worker invocation failed")

// ErrPersistence indicates the task store is unavailable.
var ErrPersistence = errors.New("task store unavailable")
