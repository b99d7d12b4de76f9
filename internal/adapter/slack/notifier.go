// Package slack posts review and failure alerts to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Strob0t/taskcrew/internal/domain/task"
	"github.com/Strob0t/taskcrew/internal/port/notifier"
)

const providerName = "slack"

// Notifier is a change sink that alerts a channel when a task needs a person:
// it entered review or it failed. Other changes are ignored.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
}

// NewNotifier creates a Slack notifier with the given webhook URL.
func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *Notifier) Name() string { return providerName }

// slackMessage is the Slack Block Kit message payload.
type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Notify implements notifier.Notifier.
func (n *Notifier) Notify(ctx context.Context, c notifier.Change) error {
	header, ok := alertHeader(c.NewStatus)
	if !ok {
		return nil
	}

	msg := slackMessage{
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: header}},
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf("Task `%s`", c.TaskID)}},
			{Type: "context", Elements: []slackText{
				{Type: "mrkdwn", Text: fmt.Sprintf("_Business: %s_", c.BusinessID)},
			}},
		},
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req) //nolint:gosec // webhook URL from trusted config
	if err != nil {
		return fmt.Errorf("slack send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("slack API %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

func alertHeader(s task.Status) (string, bool) {
	switch s {
	case task.StatusReview:
		return "[REVIEW] Task awaiting sign-off", true
	case task.StatusFailed:
		return "[ERROR] Task failed", true
	default:
		return "", false
	}
}
