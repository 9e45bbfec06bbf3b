package notifications

import (
	"testing"
)

func TestNotificationType_Severity(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotificationCreditsEmpty, "critical"},
		{NotificationProviderDown, "critical"},
		{NotificationCreditsLow, "warning"},
		{NotificationCreditsCritical, "warning"},
		{NotificationRateLimited, "warning"},
		{NotificationAutomationRun, "info"},
		{NotificationProviderUp, "info"},
	}
	for _, tt := range tests {
		if got := tt.typ.Severity(); got != tt.want {
			t.Errorf("%s: expected severity %q, got %q", tt.typ, tt.want, got)
		}
	}
}

func TestNotification_Subject(t *testing.T) {
	n := Notification{Type: NotificationCreditsLow, WorkspaceID: "ws1"}
	if got := n.Subject(); got != "adpulse: credits_low (workspace ws1)" {
		t.Errorf("unexpected subject %q", got)
	}

	ops := Notification{Type: NotificationProviderDown}
	if got := ops.Subject(); got != "adpulse: provider_down" {
		t.Errorf("unexpected ops subject %q", got)
	}
}

func TestFilterAttributes(t *testing.T) {
	attrs := filterAttributes(Notification{Type: NotificationCreditsEmpty, WorkspaceID: "ws1"})

	if got := *attrs["Type"].StringValue; got != "credits_empty" {
		t.Errorf("expected Type attribute credits_empty, got %q", got)
	}
	if got := *attrs["Severity"].StringValue; got != "critical" {
		t.Errorf("expected Severity attribute critical, got %q", got)
	}
	if got := *attrs["WorkspaceID"].StringValue; got != "ws1" {
		t.Errorf("expected WorkspaceID attribute ws1, got %q", got)
	}
}

func TestFilterAttributes_NoWorkspace(t *testing.T) {
	attrs := filterAttributes(Notification{Type: NotificationProviderUp})

	if _, ok := attrs["WorkspaceID"]; ok {
		t.Error("expected no WorkspaceID attribute for ops-wide notification")
	}
}
