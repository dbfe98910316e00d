package publisher

import (
	"context"
	"encoding/json"

	"github.com/gns-x/SafeDrop/module/pickup/domain"
)

type NotificationPublisher interface {
	PublishNotification(ctx context.Context, n *domain.PickupNotification) error
}

// EventRelayer forwards raw backend events to downstream push workers.
type EventRelayer interface {
	RelayEvent(ctx context.Context, event string, data json.RawMessage) error
}
