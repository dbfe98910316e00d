package service

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/gns-x/SafeDrop/module/pickup/domain"
)

type mockNotifier struct {
	mu        sync.Mutex
	published []domain.PickupNotification
	publishFn func(ctx context.Context, n *domain.PickupNotification) error
}

func (m *mockNotifier) PublishNotification(ctx context.Context, n *domain.PickupNotification) error {
	m.mu.Lock()
	m.published = append(m.published, *n)
	m.mu.Unlock()
	if m.publishFn != nil {
		return m.publishFn(ctx, n)
	}
	return nil
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}

type mockRealtime struct {
	connected     bool
	pickups       []domain.PickupRequestMessage
	statusUpdates []domain.StatusUpdateMessage
	joined        []string
	left          []string
}

func (m *mockRealtime) State() domain.ConnectionState {
	if m.connected {
		return domain.ConnectionConnected
	}
	return domain.ConnectionDisconnected
}

func (m *mockRealtime) IsConnected() bool { return m.connected }

func (m *mockRealtime) SendPickupRequest(msg domain.PickupRequestMessage) {
	m.pickups = append(m.pickups, msg)
}

func (m *mockRealtime) SendStatusUpdate(msg domain.StatusUpdateMessage) {
	m.statusUpdates = append(m.statusUpdates, msg)
}

func (m *mockRealtime) JoinRoom(room string)  { m.joined = append(m.joined, room) }
func (m *mockRealtime) LeaveRoom(room string) { m.left = append(m.left, room) }

type mockLocationStore struct {
	latestFn func(ctx context.Context, parentID string) (*domain.DeviceLocation, error)
}

func (m *mockLocationStore) Save(context.Context, *domain.DeviceLocation) error { return nil }

func (m *mockLocationStore) Latest(ctx context.Context, parentID string) (*domain.DeviceLocation, error) {
	return m.latestFn(ctx, parentID)
}

func silentLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
