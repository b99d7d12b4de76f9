package task

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/Strob0t/taskcrew/internal/domain"
)

func TestNormalizePayload(t *testing.T) {
	got, err := NormalizePayload(TypeWrite, nil)
	if err != nil || string(got) != "{}" {
		t.Fatalf("expected {}, got %s (%v)", got, err)
	}
	got, err = NormalizePayload(TypeWrite, json.RawMessage("  null "))
	if err != nil || string(got) != "{}" {
		t.Fatalf("expected {} for null, got %s (%v)", got, err)
	}
	if _, err := NormalizePayload(TypeWrite, json.RawMessage(`"text"`)); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for string payload, got %v", err)
	}
}

func TestNormalizePayloadKeepsFieldsOpaque(t *testing.T) {
	in := json.RawMessage(` {"channel":"","weird":[1,{"x":null}]} `)
	got, err := NormalizePayload(TypePublish, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != `{"channel":"","weird":[1,{"x":null}]}` {
		t.Errorf("payload = %s", got)
	}
	if _, err := NormalizePayload(TypePublish, json.RawMessage(`{"a":`)); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for truncated object, got %v", err)
	}
}

func TestWrapOutput(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"text":"Y"}`, `{"text":"Y"}`},
		{``, ``},
		{`null`, ``},
		{`"hello"`, `{"data":"hello"}`},
		{`[1,2]`, `{"data":[1,2]}`},
	}
	for _, tt := range tests {
		got := WrapOutput(json.RawMessage(tt.in))
		if string(got) != tt.want {
			t.Errorf("WrapOutput(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
