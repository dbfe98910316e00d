package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gns-x/SafeDrop/module/pickup/domain"
)

const defaultHandshakeTimeout = 20 * time.Second

// Handler receives the raw payload of one event. Payloads are not validated
// by the hub.
type Handler func(data json.RawMessage) error

// Subscription is the handle returned by On. Passing it to Off removes exactly
// that registration.
type Subscription struct {
	event   string
	handler Handler
	seq     uint64
	removed atomic.Bool
}

func (s *Subscription) Event() string { return s.event }

type Config struct {
	HandshakeTimeout     time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	Scheduler            Scheduler
}

type session struct {
	id     string
	userID string
	token  string
}

// Hub owns one logical connection to the backend for one session and fans
// pushed events out to local subscribers. Handlers run on the connection's
// read goroutine, never while the hub lock is held, so they may call On, Off
// and the Send methods.
type Hub struct {
	transport        Transport
	scheduler        Scheduler
	handshakeTimeout time.Duration
	maxAttempts      int
	log              logrus.FieldLogger

	mu         sync.Mutex
	state      domain.ConnectionState
	policy     *ReconnectPolicy
	session    *session
	conn       Conn
	connecting bool
	timer      Timer
	generation uint64
	nextSeq    uint64
	subs       map[string]map[*Subscription]struct{}
}

func NewHub(transport Transport, cfg Config, log logrus.FieldLogger) *Hub {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = wallClock{}
	}
	policy := NewReconnectPolicy(cfg.ReconnectDelay, cfg.MaxReconnectAttempts)

	return &Hub{
		transport:        transport,
		scheduler:        cfg.Scheduler,
		handshakeTimeout: cfg.HandshakeTimeout,
		maxAttempts:      policy.max,
		log:              log.WithField("component", "realtime_hub"),
		state:            domain.ConnectionDisconnected,
		policy:           policy,
		subs:             make(map[string]map[*Subscription]struct{}),
	}
}

// Connect dials the backend, sends the join directive for userID and returns
// once the join has been written. It does not wait for the server to
// acknowledge the join. If the first attempt fails the error is returned and
// retries continue in the background under the reconnect policy.
func (h *Hub) Connect(ctx context.Context, userID, token string) error {
	if userID == "" {
		return ErrUserIDRequired
	}

	h.mu.Lock()
	if h.state == domain.ConnectionConnected && h.conn != nil {
		h.mu.Unlock()
		return nil
	}
	if h.connecting {
		h.mu.Unlock()
		return ErrConnectInProgress
	}
	h.generation++
	gen := h.generation
	h.stopTimerLocked()
	h.policy.Reset()
	sess := &session{id: uuid.NewString(), userID: userID, token: token}
	h.session = sess
	h.connecting = true
	h.state = domain.ConnectionConnecting
	h.mu.Unlock()

	if err := h.dial(ctx, gen, sess); err != nil {
		h.attemptFailed(gen, err)
		return fmt.Errorf("realtime connect: %w", err)
	}
	h.emitLocal(domain.EventConnect, nil)
	return nil
}

// Disconnect tears the session down. It is safe to call at any time and any
// number of times.
func (h *Hub) Disconnect() {
	h.mu.Lock()
	h.generation++
	h.stopTimerLocked()
	conn := h.conn
	h.conn = nil
	h.session = nil
	h.connecting = false
	h.policy.Reset()
	for _, set := range h.subs {
		for sub := range set {
			sub.removed.Store(true)
		}
	}
	h.subs = make(map[string]map[*Subscription]struct{})
	prev := h.state
	h.state = domain.ConnectionDisconnected
	h.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if prev != domain.ConnectionDisconnected {
		h.log.Info("realtime disconnected")
	}
}

// NotifyOnline is the network "back online" signal. When a session exists and
// nothing is connected or dialing, it starts a fresh retry cycle with an
// immediate attempt.
func (h *Hub) NotifyOnline() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.session == nil || h.conn != nil || h.connecting {
		return
	}
	h.stopTimerLocked()
	h.policy.Reset()
	h.policy.Next()
	gen, attempt := h.generation, h.policy.Attempts()
	h.state = domain.ConnectionConnecting
	h.timer = h.scheduler.AfterFunc(0, func() { h.retry(gen, attempt) })
	h.log.Info("network back online, reconnecting")
}

func (h *Hub) State() domain.ConnectionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Hub) IsConnected() bool {
	return h.State() == domain.ConnectionConnected
}

// On registers handler for event. Registrations are additive and handlers
// run in registration order.
func (h *Hub) On(event string, handler Handler) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSeq++
	sub := &Subscription{event: event, handler: handler, seq: h.nextSeq}
	set, ok := h.subs[event]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[event] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Off removes sub. Unknown, nil or already removed handles are ignored.
func (h *Hub) Off(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.removed.Store(true)

	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[sub.event]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.event)
		}
	}
}

// OnStatusUpdate subscribes fn to decoded student_status_update events and
// returns its unsubscribe func.
func (h *Hub) OnStatusUpdate(fn func(domain.StatusUpdateEvent)) func() {
	sub := h.On(domain.EventStudentStatusUpdate, func(data json.RawMessage) error {
		var ev domain.StatusUpdateEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", domain.EventStudentStatusUpdate, err)
		}
		fn(ev)
		return nil
	})
	return func() { h.Off(sub) }
}

// The Send methods are best effort: while the hub is not connected the
// message is dropped, not queued.

func (h *Hub) SendPickupRequest(msg domain.PickupRequestMessage) {
	h.send(domain.EventPickupRequest, msg)
}

func (h *Hub) SendStatusUpdate(msg domain.StatusUpdateMessage) {
	h.send(domain.EventStatusUpdate, msg)
}

func (h *Hub) JoinRoom(room string) {
	h.send(domain.EventJoinRoom, room)
}

func (h *Hub) LeaveRoom(room string) {
	h.send(domain.EventLeaveRoom, room)
}

// send never writes under h.mu; Conn serialises its own writes.
func (h *Hub) send(event string, payload any) {
	h.mu.Lock()
	conn := h.conn
	if h.state != domain.ConnectionConnected {
		conn = nil
	}
	h.mu.Unlock()

	if conn == nil {
		h.log.WithField("event", event).Debug("not connected, dropping outbound message")
		return
	}
	if err := conn.Emit(event, payload); err != nil {
		h.log.WithError(err).WithField("event", event).Warn("outbound message failed")
	}
}

func (h *Hub) dial(ctx context.Context, gen uint64, sess *session) error {
	dctx, cancel := context.WithTimeout(ctx, h.handshakeTimeout)
	defer cancel()

	conn, err := h.transport.Dial(dctx, Credentials{UserID: sess.userID, Token: sess.token})
	if err != nil {
		return err
	}

	if !h.current(gen) {
		_ = conn.Close()
		return ErrHubClosed
	}
	if err := conn.Emit(domain.EventJoin, domain.JoinMessage{UserID: sess.userID}); err != nil {
		_ = conn.Close()
		return fmt.Errorf("send join: %w", err)
	}

	h.mu.Lock()
	if gen != h.generation {
		h.mu.Unlock()
		_ = conn.Close()
		return ErrHubClosed
	}
	h.conn = conn
	h.connecting = false
	h.policy.Reset()
	h.state = domain.ConnectionConnected
	h.mu.Unlock()

	h.log.WithFields(logrus.Fields{
		"session_id": sess.id,
		"user_id":    sess.userID,
	}).Info("realtime connected")

	go h.readLoop(conn, gen)
	return nil
}

func (h *Hub) current(gen uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return gen == h.generation
}

func (h *Hub) readLoop(conn Conn, gen uint64) {
	for {
		ev, err := conn.Receive()
		if err != nil {
			h.connectionLost(conn, gen, err)
			return
		}
		h.dispatch(ev.Name, ev.Data)
	}
}

func (h *Hub) connectionLost(conn Conn, gen uint64, cause error) {
	h.mu.Lock()
	if gen != h.generation || h.conn != conn {
		h.mu.Unlock()
		return
	}
	h.conn = nil
	scheduled := h.scheduleRetryLocked(gen)
	if scheduled {
		h.state = domain.ConnectionConnecting
	} else {
		h.state = domain.ConnectionDisconnected
	}
	h.mu.Unlock()

	_ = conn.Close()

	reason := "transport close"
	if errors.Is(cause, ErrServerDisconnect) {
		reason = ErrServerDisconnect.Error()
	}
	h.log.WithError(cause).WithField("reason", reason).Warn("realtime connection lost")

	h.emitLocal(domain.EventDisconnect, map[string]string{"reason": reason})
	if !scheduled {
		h.reconnectFailed()
	}
}

func (h *Hub) attemptFailed(gen uint64, cause error) {
	h.mu.Lock()
	if gen != h.generation {
		h.mu.Unlock()
		return
	}
	h.connecting = false
	scheduled := h.scheduleRetryLocked(gen)
	if scheduled {
		h.state = domain.ConnectionError
	} else {
		h.state = domain.ConnectionDisconnected
	}
	h.mu.Unlock()

	h.log.WithError(cause).Warn("realtime connection attempt failed")

	h.emitLocal(domain.EventConnectError, map[string]string{"error": cause.Error()})
	if !scheduled {
		h.reconnectFailed()
	}
}

func (h *Hub) reconnectFailed() {
	h.log.WithField("max_attempts", h.maxAttempts).Error("max reconnection attempts reached")
	h.emitLocal(domain.EventReconnectFailed, nil)
}

// scheduleRetryLocked arms the next retry timer, or reports false when the
// policy is exhausted.
func (h *Hub) scheduleRetryLocked(gen uint64) bool {
	if h.policy.Exhausted() {
		return false
	}
	delay, _ := h.policy.Next()
	attempt := h.policy.Attempts()
	h.timer = h.scheduler.AfterFunc(delay, func() { h.retry(gen, attempt) })

	h.log.WithFields(logrus.Fields{
		"attempt":      attempt,
		"max_attempts": h.maxAttempts,
		"delay":        delay.String(),
	}).Info("reconnect scheduled")
	return true
}

func (h *Hub) retry(gen uint64, attempt int) {
	h.mu.Lock()
	if gen != h.generation || h.session == nil || h.conn != nil || h.connecting {
		h.mu.Unlock()
		return
	}
	h.timer = nil
	h.connecting = true
	h.state = domain.ConnectionConnecting
	sess := h.session
	h.mu.Unlock()

	if err := h.dial(context.Background(), gen, sess); err != nil {
		h.attemptFailed(gen, err)
		return
	}
	h.log.WithField("attempt", attempt).Info("realtime reconnected")
	h.emitLocal(domain.EventConnect, nil)
	h.emitLocal(domain.EventReconnect, map[string]int{"attempt": attempt})
}

func (h *Hub) stopTimerLocked() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

func (h *Hub) emitLocal(event string, payload any) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			h.log.WithError(err).WithField("event", event).Error("encode local event")
			return
		}
		data = b
	}
	h.dispatch(event, data)
}

// dispatch invokes every handler registered for name against a snapshot of
// the subscriber set. Handlers removed mid-dispatch are skipped.
func (h *Hub) dispatch(name string, data json.RawMessage) {
	h.mu.Lock()
	set := h.subs[name]
	snapshot := make([]*Subscription, 0, len(set))
	for sub := range set {
		snapshot = append(snapshot, sub)
	}
	h.mu.Unlock()
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].seq < snapshot[j].seq })

	if len(snapshot) == 0 {
		h.log.WithField("event", name).Debug("no subscribers for event")
		return
	}
	for _, sub := range snapshot {
		if sub.removed.Load() {
			continue
		}
		h.invoke(sub, data)
	}
}

func (h *Hub) invoke(sub *Subscription, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			h.log.WithFields(logrus.Fields{
				"event": sub.Event(),
				"panic": r,
			}).Error("event handler panicked")
		}
	}()

	if sub.handler == nil {
		return
	}
	if err := sub.handler(data); err != nil {
		h.log.WithError(err).WithField("event", sub.Event()).Warn("event handler failed")
	}
}
