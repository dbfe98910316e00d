package realtime

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrUserIDRequired    = errors.New("user id is required")
	ErrConnectInProgress = errors.New("connection already in progress")
	ErrServerDisconnect  = errors.New("io server disconnect")
	ErrHubClosed         = errors.New("hub disconnected")
)

// Event is one named message on the wire.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

type Credentials struct {
	UserID string
	Token  string
}

// Transport opens authenticated connections to the backend. Dial must honor
// ctx for the whole handshake.
type Transport interface {
	Dial(ctx context.Context, creds Credentials) (Conn, error)
}

// Conn is a single established connection. Receive blocks until the next
// event arrives or the connection ends; a server-initiated close is reported
// as ErrServerDisconnect. Emit may be called concurrently with Receive.
type Conn interface {
	Emit(event string, payload any) error
	Receive() (Event, error)
	Close() error
}
