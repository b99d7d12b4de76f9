package messagequeue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects only need valid JSON.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch {
	case strings.HasPrefix(subject, SubjectTaskChanged+"."):
		var p TaskChangedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.TaskID == "" || p.BusinessID == "" || p.NewStatus == "" {
			return fmt.Errorf("schema validation failed for %s: task_id, business_id and new_status are required", subject)
		}
	case strings.HasPrefix(subject, SubjectWorkers+"."):
		var p WorkerRequestPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.TaskID == "" || p.Action == "" {
			return fmt.Errorf("schema validation failed for %s: taskId and action are required", subject)
		}
	}
	return nil
}
