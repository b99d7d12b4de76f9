package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/taskcrew/internal/domain"
	"github.com/Strob0t/taskcrew/internal/domain/message"
)

// AppendMessage adds an entry to a task's activity log. The business id is
// taken from the task row.
func (s *Store) AppendMessage(ctx context.Context, m message.Message) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO agent_messages (task_id, business_id, from_role, to_role, message, metadata)
		SELECT t.id, t.business_id, $2, $3, $4, $5::jsonb
		FROM tasks t WHERE t.id = $1`,
		m.TaskID, m.From, nullIfEmpty(m.To), m.Body, nullJSON(m.Metadata))
	if err != nil {
		return notFoundWrap(err, "append message to %s", m.TaskID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("append message to %s: %w", m.TaskID, domain.ErrNotFound)
	}
	return nil
}

// ListMessages returns a task's activity log in append order.
func (s *Store) ListMessages(ctx context.Context, taskID string) ([]message.Message, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, taskID).Scan(&exists); err != nil {
		return nil, notFoundWrap(err, "list messages of %s", taskID)
	}
	if !exists {
		return nil, fmt.Errorf("list messages of %s: %w", taskID, domain.ErrNotFound)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, task_id, business_id, from_role, COALESCE(to_role, ''), message, metadata, created_at
		FROM agent_messages WHERE task_id = $1 ORDER BY created_at, id`, taskID)
	if err != nil {
		return nil, persistenceWrap(err, "list messages of %s", taskID)
	}
	defer rows.Close()

	out := []message.Message{}
	for rows.Next() {
		var (
			m    message.Message
			meta []byte
		)
		if err := rows.Scan(&m.ID, &m.TaskID, &m.BusinessID, &m.From, &m.To, &m.Body, &meta, &m.CreatedAt); err != nil {
			return nil, persistenceWrap(err, "scan message")
		}
		if len(meta) > 0 {
			m.Metadata = meta
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceWrap(err, "list messages of %s", taskID)
	}
	return out, nil
}
