package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/adpulse/adpulse/internal/httputil"
)

// SlackNotifier posts notifications to a workspace's incoming webhook.
// The webhook URL is per-workspace, so one notifier serves every workspace.
type SlackNotifier struct {
	client     *http.Client
	webhookURL func(workspaceID string) (string, bool)
}

// NewSlackNotifier builds a notifier that resolves webhook URLs through
// lookup, typically backed by the workspace repository.
func NewSlackNotifier(lookup func(workspaceID string) (string, bool)) *SlackNotifier {
	return &SlackNotifier{
		client:     httputil.ScraperClient(),
		webhookURL: lookup,
	}
}

type slackMessage struct {
	Text string `json:"text"`
}

func (n *SlackNotifier) Send(ctx context.Context, notification Notification) error {
	url, ok := n.webhookURL(notification.WorkspaceID)
	if !ok || url == "" {
		// Workspace has no Slack integration; not an error.
		return nil
	}

	body, err := json.Marshal(slackMessage{Text: formatSlackText(notification)})
	if err != nil {
		return fmt.Errorf("marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook: status=%d", resp.StatusCode)
	}

	return nil
}

func formatSlackText(n Notification) string {
	switch n.Type {
	case NotificationCreditsLow:
		return fmt.Sprintf(":warning: %s", n.Message)
	case NotificationCreditsCritical, NotificationCreditsEmpty:
		return fmt.Sprintf(":rotating_light: %s", n.Message)
	case NotificationAutomationRun:
		return fmt.Sprintf(":robot_face: %s", n.Message)
	default:
		return n.Message
	}
}

// Fanout sends each notification to every wrapped notifier, collecting
// errors rather than stopping at the first.
type Fanout struct {
	notifiers []Notifier
}

func NewFanout(notifiers ...Notifier) *Fanout {
	return &Fanout{notifiers: notifiers}
}

func (f *Fanout) Send(ctx context.Context, notification Notification) error {
	var firstErr error
	for _, n := range f.notifiers {
		if err := n.Send(ctx, notification); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
