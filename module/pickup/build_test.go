package pickup

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gns-x/SafeDrop/module/pickup/domain"
	"github.com/gns-x/SafeDrop/module/pickup/internal/realtime"
	"github.com/gns-x/SafeDrop/module/pickup/service"
)

type stubConn struct {
	incoming chan realtime.Event
	closed   chan struct{}
	once     sync.Once
}

func newStubConn() *stubConn {
	return &stubConn{incoming: make(chan realtime.Event, 8), closed: make(chan struct{})}
}

func (c *stubConn) Emit(string, any) error { return nil }

func (c *stubConn) Receive() (realtime.Event, error) {
	select {
	case ev := <-c.incoming:
		return ev, nil
	case <-c.closed:
		return realtime.Event{}, io.EOF
	}
}

func (c *stubConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *stubConn) push(name, data string) {
	c.incoming <- realtime.Event{Name: name, Data: json.RawMessage(data)}
}

type stubTransport struct {
	mu    sync.Mutex
	conns []*stubConn
}

func (t *stubTransport) Dial(context.Context, realtime.Credentials) (realtime.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.conns[0]
	if len(t.conns) > 1 {
		t.conns = t.conns[1:]
	}
	return c, nil
}

type stubRoster struct {
	mu    sync.Mutex
	calls  int
	viewer domain.Viewer
	list   []domain.Student
}

func (r *stubRoster) Students(_ context.Context, viewer domain.Viewer) ([]domain.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.viewer = viewer
	return r.list, nil
}

func (r *stubRoster) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type stubPublisher struct {
	mu            sync.Mutex
	notifications []domain.PickupNotification
	relayed       []string
}

func (p *stubPublisher) PublishNotification(_ context.Context, n *domain.PickupNotification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifications = append(p.notifications, *n)
	return nil
}

func (p *stubPublisher) RelayEvent(_ context.Context, event string, _ json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.relayed = append(p.relayed, event)
	return nil
}

func (p *stubPublisher) snapshot() ([]domain.PickupNotification, []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.PickupNotification(nil), p.notifications...), append([]string(nil), p.relayed...)
}

func newTestModule(t *testing.T, tr realtime.Transport, roster *stubRoster, pub *stubPublisher) *Module {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	viewer := domain.Viewer{UserID: "teacher-1", Role: domain.RoleTeacher, Grade: "3"}
	m := &Module{
		Tracker: service.NewStatusTracker(viewer, pub, log),
		hub:     realtime.NewHub(tr, realtime.Config{ReconnectDelay: 5 * time.Millisecond}, log),
		roster:  roster,
		opts:    Options{Viewer: viewer, Token: "secret"},
		log:     log,
	}
	m.subscribe(service.NewEventRelay(pub, log))
	t.Cleanup(m.Shutdown)
	return m
}

func TestSubscribe_RoutesBackendEvents(t *testing.T) {
	conn := newStubConn()
	roster := &stubRoster{list: []domain.Student{
		{ID: "s-1", Name: "Sara", Grade: "3", Status: domain.StatusInClass},
		{ID: "s-2", Name: "Amine", Grade: "3", Status: domain.StatusPendingPickup},
	}}
	pub := &stubPublisher{}
	m := newTestModule(t, &stubTransport{conns: []*stubConn{conn}}, roster, pub)

	m.LoadRoster(context.Background())
	require.NoError(t, m.Connect(context.Background()))

	conn.push(domain.EventTeacherBroadcast, `{"type":"PICKUP_REQUEST","message":"pickup","data":{"studentId":"s-1"}}`)
	conn.push(domain.EventStudentStatusUpdate, `{"studentId":"s-2","status":"WITH_PARENT","grade":"3"}`)
	for _, ev := range service.RelayedEvents {
		conn.push(ev, `{}`)
	}

	require.Eventually(t, func() bool {
		_, relayed := pub.snapshot()
		return len(relayed) == len(service.RelayedEvents)
	}, time.Second, 5*time.Millisecond)

	s1, _ := m.Tracker.Get("s-1")
	assert.Equal(t, domain.StatusPendingPickup, s1.Status)
	s2, _ := m.Tracker.Get("s-2")
	assert.Equal(t, domain.StatusWithParent, s2.Status)

	notifications, relayed := pub.snapshot()
	assert.Len(t, notifications, 2)
	assert.Equal(t, service.RelayedEvents, relayed)
}

func TestSubscribe_ReloadsRosterAfterReconnect(t *testing.T) {
	first, second := newStubConn(), newStubConn()
	roster := &stubRoster{}
	m := newTestModule(t, &stubTransport{conns: []*stubConn{first, second}}, roster, &stubPublisher{})

	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, 0, roster.callCount())

	_ = first.Close()

	require.Eventually(t, func() bool {
		return m.ConnectionState() == domain.ConnectionConnected && roster.callCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	roster.mu.Lock()
	defer roster.mu.Unlock()
	assert.Equal(t, "teacher-1", roster.viewer.UserID)
}
