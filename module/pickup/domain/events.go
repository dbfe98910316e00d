package domain

import "encoding/json"

// Outbound message names.
const (
	EventJoin          = "join"
	EventPickupRequest = "pickup_request"
	EventStatusUpdate  = "status_update"
	EventJoinRoom      = "join_room"
	EventLeaveRoom     = "leave_room"
)

// Inbound message names pushed by the backend.
const (
	EventNotification        = "notification"
	EventPickupUpdate        = "pickup_update"
	EventStudentStatusUpdate = "student_status_update"
	EventTeacherBroadcast    = "teacher_broadcast"
	EventParentBroadcast     = "parent_broadcast"
	EventEmergencyBroadcast  = "emergency_broadcast"
)

// Transport-level events raised locally by the hub.
const (
	EventConnect         = "connect"
	EventDisconnect      = "disconnect"
	EventConnectError    = "connect_error"
	EventReconnect       = "reconnect"
	EventReconnectFailed = "reconnect_failed"
)

const BroadcastPickupRequest = "PICKUP_REQUEST"

type JoinMessage struct {
	UserID string `json:"userId"`
}

type PickupRequestMessage struct {
	StudentID string       `json:"studentId"`
	ParentID  string       `json:"parentId,omitempty"`
	Status    PickupStatus `json:"status"`
	Location  GeoPoint     `json:"location"`
}

type StatusUpdateMessage struct {
	StudentID string       `json:"studentId"`
	Status    PickupStatus `json:"status"`
	Timestamp string       `json:"timestamp"`
}

type Notification struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	IsRead    bool            `json:"isRead"`
	CreatedAt string          `json:"createdAt"`
}

type PickupUpdate struct {
	PickupID    string `json:"pickupId"`
	Status      string `json:"status"`
	StudentName string `json:"studentName"`
	ParentName  string `json:"parentName"`
	Timestamp   string `json:"timestamp"`
}

type Broadcast struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}
