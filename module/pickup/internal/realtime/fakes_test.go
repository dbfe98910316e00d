package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var errDialRefused = errors.New("dial refused")

type emitted struct {
	event   string
	payload any
}

type frame struct {
	ev  Event
	err error
}

type fakeConn struct {
	incoming chan frame
	closed   chan struct{}
	once     sync.Once

	mu      sync.Mutex
	emits   []emitted
	emitErr error

	// beforeEmit runs outside mu, so it may block to model a stalled socket.
	beforeEmit func(event string)
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan frame, 16),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) Emit(event string, payload any) error {
	if c.beforeEmit != nil {
		c.beforeEmit(event)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.emitErr != nil {
		return c.emitErr
	}
	c.emits = append(c.emits, emitted{event: event, payload: payload})
	return nil
}

func (c *fakeConn) Receive() (Event, error) {
	select {
	case f := <-c.incoming:
		return f.ev, f.err
	case <-c.closed:
		return Event{}, io.EOF
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(name string, data string) {
	c.incoming <- frame{ev: Event{Name: name, Data: json.RawMessage(data)}}
}

func (c *fakeConn) drop(err error) {
	c.incoming <- frame{err: err}
}

func (c *fakeConn) sent() []emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]emitted, len(c.emits))
	copy(out, c.emits)
	return out
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// fakeTransport hands out conns or errors from dialFn and records every dial.
type fakeTransport struct {
	mu     sync.Mutex
	dials  []Credentials
	dialFn func(ctx context.Context, creds Credentials) (Conn, error)
}

func (t *fakeTransport) Dial(ctx context.Context, creds Credentials) (Conn, error) {
	t.mu.Lock()
	t.dials = append(t.dials, creds)
	fn := t.dialFn
	t.mu.Unlock()
	return fn(ctx, creds)
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.dials)
}

// sequence returns a dialFn that yields conns in order and then fails.
func sequence(conns ...*fakeConn) func(context.Context, Credentials) (Conn, error) {
	var mu sync.Mutex
	i := 0
	return func(context.Context, Credentials) (Conn, error) {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(conns) {
			return nil, errDialRefused
		}
		c := conns[i]
		i++
		return c, nil
	}
}

func alwaysFail(context.Context, Credentials) (Conn, error) {
	return nil, errDialRefused
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, fn: f}
	s.timers = append(s.timers, t)
	return &fakeTimerHandle{s: s, t: t}
}

type fakeTimerHandle struct {
	s *fakeScheduler
	t *fakeTimer
}

func (h *fakeTimerHandle) Stop() bool {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if h.t.stopped || h.t.fired {
		return false
	}
	h.t.stopped = true
	return true
}

func (s *fakeScheduler) pending() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fireNext runs the oldest pending timer synchronously and returns its delay.
func (s *fakeScheduler) fireNext() (time.Duration, bool) {
	s.mu.Lock()
	var next *fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			next = t
			break
		}
	}
	if next == nil {
		s.mu.Unlock()
		return 0, false
	}
	next.fired = true
	s.mu.Unlock()

	next.fn()
	return next.delay, true
}

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
