package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/gns-x/SafeDrop/module/pickup/domain"
)

const TopicPattern = "/safedrop/parents/+/location"

type locationStore interface {
	Save(ctx context.Context, loc *domain.DeviceLocation) error
}

type locationMessage struct {
	ParentID  string  `json:"parent_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
}

// LocationSubscriber feeds parent device fixes from MQTT into the location
// store used to gate pickup requests.
type LocationSubscriber struct {
	client mqtt.Client
	store  locationStore
	log    logrus.FieldLogger
}

func NewLocationSubscriber(client mqtt.Client, store locationStore, log logrus.FieldLogger) *LocationSubscriber {
	return &LocationSubscriber{
		client: client,
		store:  store,
		log:    log.WithField("component", "location_subscriber"),
	}
}

func (s *LocationSubscriber) Start() error {
	token := s.client.Subscribe(TopicPattern, 1, s.handleMessage)
	token.Wait()
	return token.Error()
}

func (s *LocationSubscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	log := s.log.WithField("topic", msg.Topic())

	var raw locationMessage
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		log.WithError(err).Warn("invalid location message")
		return
	}

	if err := validateLocationMessage(&raw, msg.Topic()); err != nil {
		log.WithError(err).Warn("validation error")
		return
	}

	loc := &domain.DeviceLocation{
		ParentID:   raw.ParentID,
		Point:      domain.GeoPoint{Latitude: raw.Latitude, Longitude: raw.Longitude},
		ReportedAt: time.Unix(raw.Timestamp, 0),
	}

	if err := s.store.Save(context.Background(), loc); err != nil {
		log.WithError(err).Error("save location error")
		return
	}
	log.WithField("parent_id", loc.ParentID).Debug("device location updated")
}

func validateLocationMessage(msg *locationMessage, topic string) error {
	if msg.ParentID == "" {
		return fmt.Errorf("parent_id: required")
	}
	if id := topicParentID(topic); id != "" && id != msg.ParentID {
		return fmt.Errorf("parent_id: %q does not match topic", msg.ParentID)
	}
	if msg.Latitude < -90 || msg.Latitude > 90 {
		return fmt.Errorf("latitude: must be between -90 and 90")
	}
	if msg.Longitude < -180 || msg.Longitude > 180 {
		return fmt.Errorf("longitude: must be between -180 and 180")
	}
	if msg.Timestamp <= 0 {
		return fmt.Errorf("timestamp: must be positive")
	}
	return nil
}

// topicParentID extracts the wildcard segment of /safedrop/parents/{id}/location.
func topicParentID(topic string) string {
	parts := strings.Split(strings.Trim(topic, "/"), "/")
	if len(parts) != 4 || parts[0] != "safedrop" || parts[1] != "parents" || parts[3] != "location" {
		return ""
	}
	return parts[2]
}
