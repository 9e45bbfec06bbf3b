// Package notifications delivers workspace and operator alerts. SNS carries
// ops alerts; Slack webhooks reach workspace channels directly.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type NotificationType string

const (
	NotificationCreditsLow      NotificationType = "credits_low"
	NotificationCreditsCritical NotificationType = "credits_critical"
	NotificationCreditsEmpty    NotificationType = "credits_empty"
	NotificationAutomationRun   NotificationType = "automation_run"
	NotificationProviderDown    NotificationType = "provider_down"
	NotificationProviderUp      NotificationType = "provider_up"
	NotificationRateLimited     NotificationType = "rate_limited"
)

// Severity buckets notification types for SNS filter policies: the
// on-call subscription filters on critical, the digest queue takes
// everything.
func (t NotificationType) Severity() string {
	switch t {
	case NotificationCreditsEmpty, NotificationProviderDown:
		return "critical"
	case NotificationCreditsLow, NotificationCreditsCritical, NotificationRateLimited:
		return "warning"
	default:
		return "info"
	}
}

type Notification struct {
	Type        NotificationType       `json:"type"`
	WorkspaceID string                 `json:"workspace_id,omitempty"`
	Message     string                 `json:"message"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// Subject renders the SNS subject line for email subscribers.
func (n Notification) Subject() string {
	if n.WorkspaceID == "" {
		return fmt.Sprintf("adpulse: %s", n.Type)
	}
	return fmt.Sprintf("adpulse: %s (workspace %s)", n.Type, n.WorkspaceID)
}

type Notifier interface {
	Send(ctx context.Context, notification Notification) error
}

// SNSNotifier publishes ops alerts to a single SNS topic. Routing to
// on-call versus digest happens on the subscription side via the Type
// and Severity message attributes.
type SNSNotifier struct {
	client   *sns.Client
	topicArn string
}

func NewSNSNotifier(ctx context.Context, region, topicArn string) (*SNSNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSNSNotifierWithConfig(cfg, topicArn), nil
}

func NewSNSNotifierWithConfig(cfg aws.Config, topicArn string) *SNSNotifier {
	return &SNSNotifier{
		client:   sns.NewFromConfig(cfg),
		topicArn: topicArn,
	}
}

func (n *SNSNotifier) Send(ctx context.Context, notification Notification) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	_, err = n.client.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(n.topicArn),
		Subject:           aws.String(notification.Subject()),
		Message:           aws.String(string(body)),
		MessageAttributes: filterAttributes(notification),
	})
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}

	slog.Info("notification sent",
		"type", notification.Type,
		"severity", notification.Type.Severity(),
		"workspace_id", notification.WorkspaceID,
	)
	return nil
}

// filterAttributes carries the fields subscriptions filter on, so
// consumers never parse the JSON body just to route.
func filterAttributes(n Notification) map[string]snstypes.MessageAttributeValue {
	attrs := map[string]snstypes.MessageAttributeValue{
		"Type":     stringAttribute(string(n.Type)),
		"Severity": stringAttribute(n.Type.Severity()),
	}
	if n.WorkspaceID != "" {
		attrs["WorkspaceID"] = stringAttribute(n.WorkspaceID)
	}
	return attrs
}

func stringAttribute(v string) snstypes.MessageAttributeValue {
	return snstypes.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(v),
	}
}

// InMemoryNotifier records notifications for tests and single-process
// deployments without an SNS topic.
type InMemoryNotifier struct {
	mu       sync.Mutex
	sent     []Notification
	handlers []func(Notification)
}

func NewInMemoryNotifier() *InMemoryNotifier {
	return &InMemoryNotifier{}
}

func (n *InMemoryNotifier) Send(_ context.Context, notification Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.sent = append(n.sent, notification)
	for _, handler := range n.handlers {
		handler(notification)
	}
	return nil
}

// OnNotification registers a callback invoked on every Send.
func (n *InMemoryNotifier) OnNotification(handler func(Notification)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers = append(n.handlers, handler)
}

// Sent returns a copy of everything delivered so far.
func (n *InMemoryNotifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, len(n.sent))
	copy(out, n.sent)
	return out
}
