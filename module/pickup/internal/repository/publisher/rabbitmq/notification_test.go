package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/gns-x/SafeDrop/module/pickup/domain"
)

type mockChannel struct {
	publishFn func(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

func (m *mockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return m.publishFn(ctx, exchange, key, mandatory, immediate, msg)
}

var fixedNow = time.Unix(1715003456, 0)

func capture(out *amqp.Publishing, exchange *string) *mockChannel {
	return &mockChannel{
		publishFn: func(_ context.Context, ex, _ string, _, _ bool, msg amqp.Publishing) error {
			*out = msg
			*exchange = ex
			return nil
		},
	}
}

func TestPublishNotification(t *testing.T) {
	var msg amqp.Publishing
	var exchange string
	p := &NotificationPublisher{ch: capture(&msg, &exchange), now: func() time.Time { return fixedNow }}

	err := p.PublishNotification(context.Background(), &domain.PickupNotification{
		StudentID:   "s-1",
		StudentName: "Amine",
		Status:      domain.StatusWithParent,
		Recipient:   domain.Viewer{UserID: "parent-1", Role: domain.RoleParent},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if exchange != ExchangeName {
		t.Errorf("expected exchange %s, got %s", ExchangeName, exchange)
	}
	if msg.ContentType != "application/json" {
		t.Errorf("expected application/json, got %s", msg.ContentType)
	}

	var body notificationMessage
	if err := json.Unmarshal(msg.Body, &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body.Type != "pickup_notification" {
		t.Errorf("expected pickup_notification, got %s", body.Type)
	}
	if body.Timestamp != fixedNow.Unix() {
		t.Errorf("expected zero timestamp to default to now, got %d", body.Timestamp)
	}
	if body.Recipient.UserID != "parent-1" {
		t.Errorf("expected recipient parent-1, got %s", body.Recipient.UserID)
	}
}

func TestRelayEvent(t *testing.T) {
	var msg amqp.Publishing
	var exchange string
	p := &NotificationPublisher{ch: capture(&msg, &exchange), now: func() time.Time { return fixedNow }}

	err := p.RelayEvent(context.Background(), domain.EventEmergencyBroadcast, json.RawMessage(`{"message":"lockdown"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal(msg.Body, &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body["type"] != "relayed_event" || body["event"] != "emergency_broadcast" {
		t.Errorf("unexpected envelope: %v", body)
	}
	data, ok := body["data"].(map[string]any)
	if !ok || data["message"] != "lockdown" {
		t.Errorf("expected raw data to be embedded, got %v", body["data"])
	}
}

func TestPublish_ChannelError(t *testing.T) {
	p := &NotificationPublisher{
		ch: &mockChannel{publishFn: func(context.Context, string, string, bool, bool, amqp.Publishing) error {
			return errors.New("channel closed")
		}},
		now: time.Now,
	}

	if err := p.RelayEvent(context.Background(), "notification", nil); err == nil {
		t.Fatal("expected error")
	}
}
