package notifications

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSlackNotifier_PostsToWebhook(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(func(workspaceID string) (string, bool) {
		if workspaceID == "ws1" {
			return srv.URL, true
		}
		return "", false
	})

	err := n.Send(context.Background(), Notification{
		Type:        NotificationCreditsLow,
		WorkspaceID: "ws1",
		Message:     "credits running low",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var msg slackMessage
	if err := json.Unmarshal([]byte(gotBody), &msg); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if !strings.Contains(msg.Text, "credits running low") {
		t.Errorf("message text = %q, want it to contain the alert", msg.Text)
	}
	if !strings.HasPrefix(msg.Text, ":warning:") {
		t.Errorf("expected warning prefix, got %q", msg.Text)
	}
}

func TestSlackNotifier_NoWebhookIsNoop(t *testing.T) {
	n := NewSlackNotifier(func(workspaceID string) (string, bool) {
		return "", false
	})

	err := n.Send(context.Background(), Notification{
		Type:        NotificationAutomationRun,
		WorkspaceID: "ws-without-slack",
		Message:     "ran fine",
	})
	if err != nil {
		t.Errorf("expected nil for workspace without webhook, got %v", err)
	}
}

func TestSlackNotifier_WebhookFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewSlackNotifier(func(workspaceID string) (string, bool) {
		return srv.URL, true
	})

	err := n.Send(context.Background(), Notification{
		Type:        NotificationCreditsEmpty,
		WorkspaceID: "ws1",
		Message:     "out of credits",
	})
	if err == nil {
		t.Error("expected error on webhook failure")
	}
}

func TestFanout_SendsToAll(t *testing.T) {
	a := NewInMemoryNotifier()
	b := NewInMemoryNotifier()
	f := NewFanout(a, b)

	err := f.Send(context.Background(), Notification{
		Type:    NotificationProviderDown,
		Message: "openai unreachable",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(a.Sent()) != 1 || len(b.Sent()) != 1 {
		t.Error("expected both notifiers to receive the notification")
	}
}

func TestInMemoryNotifier_Handlers(t *testing.T) {
	n := NewInMemoryNotifier()

	var seen []NotificationType
	n.OnNotification(func(notif Notification) {
		seen = append(seen, notif.Type)
	})

	n.Send(context.Background(), Notification{Type: NotificationRateLimited})
	n.Send(context.Background(), Notification{Type: NotificationCreditsLow})

	if len(seen) != 2 || seen[0] != NotificationRateLimited || seen[1] != NotificationCreditsLow {
		t.Errorf("unexpected handler calls: %v", seen)
	}
}
