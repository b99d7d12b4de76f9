package ws

import (
	"context"
	"encoding/json"

	"github.com/Strob0t/taskcrew/internal/port/notifier"
)

// EventTaskChanged is the message type of every task status change.
const EventTaskChanged = "task.changed"

// BroadcastEvent marshals a typed event and sends it to the clients of businessID.
func (h *Hub) BroadcastEvent(ctx context.Context, businessID, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.BroadcastToBusiness(ctx, businessID, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}

// Name implements notifier.Notifier.
func (h *Hub) Name() string { return "ws" }

// Notify implements notifier.Notifier. Slow or gone clients are dropped,
// never reported as an error.
func (h *Hub) Notify(ctx context.Context, c notifier.Change) error {
	h.BroadcastEvent(ctx, c.BusinessID, EventTaskChanged, c)
	return nil
}
