package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Strob0t/taskcrew/internal/domain"
)

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

// SQLSTATE codes the store maps onto domain errors.
const (
	codeInvalidText      = "22P02" // malformed uuid literal
	codeForeignKey       = "23503"
	codeCheckViolation   = "23514"
	codeNotNullViolation = "23502"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// nullIfEmpty returns nil for empty strings (for nullable columns).
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// derefString returns "" for NULL.
func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// nullJSON returns nil for an empty document so the column stays NULL.
func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// orEmpty returns items unchanged if non-nil, or an empty slice if nil.
// Useful to ensure JSON serialization produces [] instead of null.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// notFoundWrap checks whether err is pgx.ErrNoRows (or an id that cannot be a
// uuid) and, if so, wraps domain.ErrNotFound with the given message. Any other
// error is a backend failure and wraps domain.ErrPersistence.
func notFoundWrap(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) || pgCode(err) == codeInvalidText {
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	}
	return persistenceWrap(err, "%s", msg)
}

// persistenceWrap marks err as a storage failure, keeping it in the chain.
func persistenceWrap(err error, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %w", fmt.Sprintf(format, args...), domain.ErrPersistence, err)
}

// validationWrap maps constraint violations onto domain.ErrValidation and
// everything else onto domain.ErrPersistence.
func validationWrap(err error, format string, args ...any) error {
	switch pgCode(err) {
	case codeInvalidText, codeForeignKey, codeCheckViolation, codeNotNullViolation:
		return fmt.Errorf("%s: %w: %v", fmt.Sprintf(format, args...), domain.ErrValidation, err)
	}
	return persistenceWrap(err, format, args...)
}
