package domain

import "time"

type PickupStatus string

const (
	StatusInClass       PickupStatus = "IN_CLASS"
	StatusPendingPickup PickupStatus = "PENDING_PICKUP"
	StatusWithParent    PickupStatus = "WITH_PARENT"
	StatusAbsent        PickupStatus = "ABSENT"
)

// transitions lists the locally permitted moves. PENDING_PICKUP -> IN_CLASS is
// the teacher cancellation override; nothing leaves WITH_PARENT.
var transitions = map[PickupStatus][]PickupStatus{
	StatusInClass:       {StatusPendingPickup, StatusAbsent},
	StatusPendingPickup: {StatusWithParent, StatusInClass},
	StatusAbsent:        {StatusInClass},
}

func (s PickupStatus) Valid() bool {
	switch s {
	case StatusInClass, StatusPendingPickup, StatusWithParent, StatusAbsent:
		return true
	}
	return false
}

func CanTransition(from, to PickupStatus) bool {
	if from == to {
		return false
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Role string

const (
	RoleParent  Role = "PARENT"
	RoleTeacher Role = "TEACHER"
	RoleAdmin   Role = "ADMIN"
)

func (r Role) Valid() bool {
	return r == RoleParent || r == RoleTeacher || r == RoleAdmin
}

// Viewer is the authenticated user the agent runs on behalf of.
type Viewer struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
	Grade  string `json:"grade,omitempty"`
}

type Student struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Grade     string       `json:"grade"`
	Classroom string       `json:"classroom,omitempty"`
	Status    PickupStatus `json:"status"`
}

type StatusUpdateEvent struct {
	StudentID string       `json:"studentId"`
	Status    PickupStatus `json:"status"`
	Grade     string       `json:"grade,omitempty"`
	Timestamp string       `json:"timestamp,omitempty"`
}

type PickupNotification struct {
	StudentID   string       `json:"student_id"`
	StudentName string       `json:"student_name"`
	Status      PickupStatus `json:"status"`
	Recipient   Viewer       `json:"recipient"`
	Timestamp   time.Time    `json:"timestamp"`
}

type PickupRequestInput struct {
	StudentID string
	ParentID  string
	Location  *GeoPoint
}

type PickupRequest struct {
	RequestID      string       `json:"request_id"`
	StudentID      string       `json:"student_id"`
	ParentID       string       `json:"parent_id"`
	Status         PickupStatus `json:"status"`
	Location       GeoPoint     `json:"location"`
	DistanceMeters float64      `json:"distance_meters"`
	Delivered      bool         `json:"delivered"`
	RequestedAt    time.Time    `json:"requested_at"`
}
