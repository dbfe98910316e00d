package pickup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/gns-x/SafeDrop/module/pickup/domain"
	handler "github.com/gns-x/SafeDrop/module/pickup/internal/handler/http"
	"github.com/gns-x/SafeDrop/module/pickup/internal/handler/subscriber"
	"github.com/gns-x/SafeDrop/module/pickup/internal/realtime"
	"github.com/gns-x/SafeDrop/module/pickup/internal/realtime/wsclient"
	"github.com/gns-x/SafeDrop/module/pickup/internal/repository/location/memory"
	"github.com/gns-x/SafeDrop/module/pickup/internal/repository/publisher/rabbitmq"
	"github.com/gns-x/SafeDrop/module/pickup/internal/repository/roster"
	"github.com/gns-x/SafeDrop/module/pickup/internal/repository/roster/rest"
	"github.com/gns-x/SafeDrop/module/pickup/service"
)

type Options struct {
	Viewer         domain.Viewer
	Token          string
	WSURL          string
	APIURL         string
	Zone           domain.SchoolZone
	LocationMaxAge time.Duration
	RosterTimeout  time.Duration

	HandshakeTimeout     time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

type Module struct {
	PickupSvc   *service.PickupService
	GeofenceSvc *service.GeofenceService
	Tracker     *service.StatusTracker

	hub        *realtime.Hub
	roster     roster.Source
	opts       Options
	handler    *handler.PickupHandler
	subscriber *subscriber.LocationSubscriber
	log        logrus.FieldLogger
}

func Build(amqpConn *amqp.Connection, mqttClient mqtt.Client, opts Options, log logrus.FieldLogger) (*Module, error) {
	geofenceSvc, err := service.NewGeofenceService(opts.Zone)
	if err != nil {
		return nil, fmt.Errorf("geofence: %w", err)
	}

	notificationPub, err := rabbitmq.NewNotificationPublisher(amqpConn)
	if err != nil {
		return nil, fmt.Errorf("notification publisher: %w", err)
	}

	hub := realtime.NewHub(wsclient.NewTransport(opts.WSURL, log), realtime.Config{
		HandshakeTimeout:     opts.HandshakeTimeout,
		ReconnectDelay:       opts.ReconnectDelay,
		MaxReconnectAttempts: opts.MaxReconnectAttempts,
	}, log)
	locations := memory.NewStore()

	tracker := service.NewStatusTracker(opts.Viewer, notificationPub, log)
	pickupSvc := service.NewPickupService(hub, geofenceSvc, tracker, locations, opts.LocationMaxAge, log)
	relay := service.NewEventRelay(notificationPub, log)

	m := &Module{
		PickupSvc:   pickupSvc,
		GeofenceSvc: geofenceSvc,
		Tracker:     tracker,
		hub:         hub,
		roster:      rest.NewStudentClient(opts.APIURL, opts.Token, opts.RosterTimeout),
		opts:        opts,
		handler:     handler.NewPickupHandler(pickupSvc, tracker, geofenceSvc),
		subscriber:  subscriber.NewLocationSubscriber(mqttClient, locations, log),
		log:         log.WithField("module", "pickup"),
	}
	m.subscribe(relay)
	return m, nil
}

// subscribe routes backend pushes into the tracker and the relay.
func (m *Module) subscribe(relay *service.EventRelay) {
	m.hub.OnStatusUpdate(func(ev domain.StatusUpdateEvent) {
		if err := m.Tracker.ApplyStatusUpdate(context.Background(), ev); err != nil {
			m.log.WithError(err).Warn("rejected status update")
		}
	})

	m.hub.On(domain.EventTeacherBroadcast, func(data json.RawMessage) error {
		var b domain.Broadcast
		if err := json.Unmarshal(data, &b); err != nil {
			return fmt.Errorf("decode %s: %w", domain.EventTeacherBroadcast, err)
		}
		return m.Tracker.ApplyBroadcast(context.Background(), b)
	})

	for _, ev := range service.RelayedEvents {
		m.hub.On(ev, relay.Handler(ev))
	}

	// Statuses may have moved while offline.
	m.hub.On(domain.EventReconnect, func(json.RawMessage) error {
		go m.LoadRoster(context.Background())
		return nil
	})
}

func (m *Module) RegisterRoutes(r *gin.RouterGroup) {
	m.handler.Register(r)
}

func (m *Module) StartSubscribers() error {
	return m.subscriber.Start()
}

// LoadRoster seeds the tracker from the backend. A failed fetch keeps the
// current roster.
func (m *Module) LoadRoster(ctx context.Context) {
	students, err := m.roster.Students(ctx, m.Tracker.Viewer())
	if err != nil {
		m.log.WithError(err).Warn("roster fetch failed")
		return
	}
	m.Tracker.Seed(students)
	m.log.WithField("students", len(students)).Info("roster loaded")
}

// Connect opens the realtime session for the configured viewer. On failure
// the hub keeps retrying in the background.
func (m *Module) Connect(ctx context.Context) error {
	return m.hub.Connect(ctx, m.opts.Viewer.UserID, m.opts.Token)
}

func (m *Module) NotifyOnline() {
	m.hub.NotifyOnline()
}

func (m *Module) ConnectionState() domain.ConnectionState {
	return m.hub.State()
}

func (m *Module) Shutdown() {
	m.hub.Disconnect()
}
