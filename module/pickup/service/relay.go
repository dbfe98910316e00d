package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gns-x/SafeDrop/module/pickup/domain"
	"github.com/gns-x/SafeDrop/module/pickup/internal/repository/publisher"
)

const relayTimeout = 5 * time.Second

// RelayedEvents are the backend pushes forwarded verbatim to downstream
// push workers.
var RelayedEvents = []string{
	domain.EventNotification,
	domain.EventPickupUpdate,
	domain.EventParentBroadcast,
	domain.EventEmergencyBroadcast,
}

type EventRelay struct {
	relayer publisher.EventRelayer
	log     logrus.FieldLogger
}

func NewEventRelay(relayer publisher.EventRelayer, log logrus.FieldLogger) *EventRelay {
	return &EventRelay{relayer: relayer, log: log.WithField("component", "event_relay")}
}

// Handler returns a hub handler that forwards event payloads. Non-JSON
// payloads are rejected so the downstream envelope stays valid.
func (r *EventRelay) Handler(event string) func(json.RawMessage) error {
	return func(data json.RawMessage) error {
		if len(data) > 0 && !json.Valid(data) {
			r.log.WithField("event", event).Warn("dropping non-JSON payload")
			return nil
		}

		r.logEvent(event, data)

		ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
		defer cancel()

		if err := r.relayer.RelayEvent(ctx, event, data); err != nil {
			r.log.WithError(err).WithField("event", event).Error("failed to relay event")
			return err
		}
		return nil
	}
}

// logEvent records the typed fields of known payloads. Decode failures are
// not fatal: the raw payload is relayed either way.
func (r *EventRelay) logEvent(event string, data json.RawMessage) {
	log := r.log.WithField("event", event)

	switch event {
	case domain.EventNotification:
		var n domain.Notification
		if err := json.Unmarshal(data, &n); err == nil {
			log = log.WithFields(logrus.Fields{"notification_id": n.ID, "type": n.Type, "title": n.Title})
		}
	case domain.EventPickupUpdate:
		var u domain.PickupUpdate
		if err := json.Unmarshal(data, &u); err == nil {
			log = log.WithFields(logrus.Fields{"pickup_id": u.PickupID, "status": u.Status, "student_name": u.StudentName})
		}
	case domain.EventParentBroadcast, domain.EventEmergencyBroadcast:
		var b domain.Broadcast
		if err := json.Unmarshal(data, &b); err == nil {
			log = log.WithFields(logrus.Fields{"type": b.Type, "message": b.Message})
		}
	}
	log.Debug("relaying backend event")
}
