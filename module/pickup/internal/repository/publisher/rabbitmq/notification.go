package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/gns-x/SafeDrop/module/pickup/domain"
	"github.com/gns-x/SafeDrop/module/pickup/internal/repository/publisher"
)

var (
	_ publisher.NotificationPublisher = (*NotificationPublisher)(nil)
	_ publisher.EventRelayer          = (*NotificationPublisher)(nil)
)

const (
	ExchangeName = "safedrop.events"
	QueueName    = "pickup_notifications"

	typePickupNotification = "pickup_notification"
	typeRelayedEvent       = "relayed_event"
)

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type NotificationPublisher struct {
	ch  channel
	now func() time.Time
}

func NewNotificationPublisher(conn *amqp.Connection) (*NotificationPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(ExchangeName, "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(QueueName, "", ExchangeName, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	return &NotificationPublisher{ch: ch, now: time.Now}, nil
}

type notificationMessage struct {
	Type        string              `json:"type"`
	StudentID   string              `json:"student_id"`
	StudentName string              `json:"student_name"`
	Status      domain.PickupStatus `json:"status"`
	Recipient   domain.Viewer       `json:"recipient"`
	Timestamp   int64               `json:"timestamp"`
}

type relayMessage struct {
	Type      string          `json:"type"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

func (p *NotificationPublisher) PublishNotification(ctx context.Context, n *domain.PickupNotification) error {
	ts := n.Timestamp
	if ts.IsZero() {
		ts = p.now()
	}

	return p.publish(ctx, notificationMessage{
		Type:        typePickupNotification,
		StudentID:   n.StudentID,
		StudentName: n.StudentName,
		Status:      n.Status,
		Recipient:   n.Recipient,
		Timestamp:   ts.Unix(),
	})
}

func (p *NotificationPublisher) RelayEvent(ctx context.Context, event string, data json.RawMessage) error {
	return p.publish(ctx, relayMessage{
		Type:      typeRelayedEvent,
		Event:     event,
		Data:      data,
		Timestamp: p.now().Unix(),
	})
}

func (p *NotificationPublisher) publish(ctx context.Context, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.ch.PublishWithContext(ctx, ExchangeName, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}
