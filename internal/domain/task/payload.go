package task

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Strob0t/taskcrew/internal/domain"
)

var emptyObject = json.RawMessage(`{}`)

// NormalizePayload returns raw as a JSON object, substituting {} when it is
// empty or null. Fields are never interpreted; they belong to the worker.
func NormalizePayload(t Type, raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = emptyObject
	}
	if trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: %s input must be a JSON object", domain.ErrValidation, t)
	}
	return json.RawMessage(trimmed), nil
}

// WrapOutput returns worker data in storable form. Objects pass through
// unchanged, empty data becomes nil and any other JSON value is wrapped as
// {"data": value}.
func WrapOutput(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '{' {
		return json.RawMessage(trimmed)
	}
	wrapped, err := json.Marshal(map[string]json.RawMessage{"data": trimmed})
	if err != nil {
		return nil
	}
	return wrapped
}
