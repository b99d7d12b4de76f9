package messagequeue

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		data    string
		wantErr string
	}{
		{"valid change", TaskChangedSubject("b1"), `{"task_id":"t1","business_id":"b1","new_status":"running"}`, ""},
		{"change missing status", TaskChangedSubject("b1"), `{"task_id":"t1","business_id":"b1"}`, "required"},
		{"change wrong field type", TaskChangedSubject("b1"), `{"task_id":1}`, "schema validation failed"},
		{"valid worker request", WorkerSubject("writer"), `{"role":"writer","action":"write","businessId":"b1","taskId":"t1","input":{}}`, ""},
		{"worker request missing task", WorkerSubject("writer"), `{"role":"writer","action":"write"}`, "required"},
		{"invalid json", TaskChangedSubject("b1"), `{not json`, "invalid JSON"},
		{"unknown subject any json", "other.subject", `[1,2,3]`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.subject, []byte(tt.data))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSubjects(t *testing.T) {
	if got := TaskChangedSubject("b1"); got != "tasks.changed.b1" {
		t.Errorf("TaskChangedSubject = %q", got)
	}
	if got := WorkerSubject("oracle"); got != "workers.oracle" {
		t.Errorf("WorkerSubject = %q", got)
	}
}
