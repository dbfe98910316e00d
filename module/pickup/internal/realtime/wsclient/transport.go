package wsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/gns-x/SafeDrop/module/pickup/internal/realtime"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

// Transport dials the SafeDrop backend over a websocket and exchanges
// {"event", "data"} JSON envelopes.
type Transport struct {
	url        string
	dialer     *websocket.Dialer
	pingPeriod time.Duration
	log        logrus.FieldLogger
}

var _ realtime.Transport = (*Transport)(nil)

func NewTransport(url string, log logrus.FieldLogger) *Transport {
	return &Transport{
		url: url,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		pingPeriod: pingPeriod,
		log:        log.WithField("component", "ws_transport"),
	}
}

func (t *Transport) Dial(ctx context.Context, creds realtime.Credentials) (realtime.Conn, error) {
	header := http.Header{}
	if creds.Token != "" {
		header.Set("Authorization", "Bearer "+creds.Token)
	}

	ws, resp, err := t.dialer.DialContext(ctx, t.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial websocket: %w", err)
	}

	c := &conn{ws: ws, log: t.log.WithField("user_id", creds.UserID), done: make(chan struct{})}
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPingHandler(c.handlePing)
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.pingLoop(t.pingPeriod)

	t.log.WithField("user_id", creds.UserID).Debug("websocket connected")
	return c, nil
}

type conn struct {
	ws  *websocket.Conn
	log logrus.FieldLogger

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// pingLoop keeps the read deadline alive against a backend that never pings
// on its own; the server's pong extends the deadline.
func (c *conn) pingLoop(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.log.WithError(err).Debug("ping failed")
				return
			}
		}
	}
}

func (c *conn) handlePing(appData string) error {
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	err := c.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	if err == websocket.ErrCloseSent {
		return nil
	}
	return err
}

func (c *conn) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	frame, err := json.Marshal(realtime.Event{Name: event, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal %s envelope: %w", event, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("failed to write %s: %w", event, err)
	}
	return nil
}

func (c *conn) Receive() (realtime.Event, error) {
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return realtime.Event{}, realtime.ErrServerDisconnect
			}
			return realtime.Event{}, err
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		if msgType != websocket.TextMessage {
			continue
		}

		var ev realtime.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.log.WithError(err).Warn("dropping malformed frame")
			continue
		}
		if ev.Name == "" {
			c.log.Warn("dropping frame without event name")
			continue
		}
		return ev, nil
	}
}

func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
