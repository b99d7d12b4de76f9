package logger

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	taskIDKey
	roleKey
)

// WithRequestID stores the HTTP request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the stored request ID or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithTask marks ctx as working on one task for one agent role. Either value
// may be empty.
func WithTask(ctx context.Context, taskID, role string) context.Context {
	if taskID != "" {
		ctx = context.WithValue(ctx, taskIDKey, taskID)
	}
	if role != "" {
		ctx = context.WithValue(ctx, roleKey, role)
	}
	return ctx
}

// TaskID returns the task stored by WithTask or "".
func TaskID(ctx context.Context) string {
	id, _ := ctx.Value(taskIDKey).(string)
	return id
}

// Role returns the agent role stored by WithTask or "".
func Role(ctx context.Context) string {
	r, _ := ctx.Value(roleKey).(string)
	return r
}
