package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gns-x/SafeDrop/module/pickup/domain"
	"github.com/gns-x/SafeDrop/module/pickup/internal/repository/location"
)

// Realtime is the slice of the event hub the pickup flow needs.
type Realtime interface {
	State() domain.ConnectionState
	IsConnected() bool
	SendPickupRequest(msg domain.PickupRequestMessage)
	SendStatusUpdate(msg domain.StatusUpdateMessage)
	JoinRoom(room string)
	LeaveRoom(room string)
}

type PickupService struct {
	hub       Realtime
	geofence  *GeofenceService
	tracker   *StatusTracker
	locations location.Store
	maxAge    time.Duration
	now       func() time.Time
	log       logrus.FieldLogger
}

// NewPickupService wires the pickup flow. A maxAge of zero accepts device
// locations of any age.
func NewPickupService(
	hub Realtime,
	geofence *GeofenceService,
	tracker *StatusTracker,
	locations location.Store,
	maxAge time.Duration,
	log logrus.FieldLogger,
) *PickupService {
	return &PickupService{
		hub:       hub,
		geofence:  geofence,
		tracker:   tracker,
		locations: locations,
		maxAge:    maxAge,
		now:       time.Now,
		log:       log.WithField("component", "pickup_service"),
	}
}

// RequestPickup asks the backend to release a student to a parent. The parent
// must be inside the school zone; the request is never sent otherwise.
// Delivered reports whether the hub was connected at send time. Sends are
// best effort, so a request made while offline is dropped, not queued.
func (s *PickupService) RequestPickup(ctx context.Context, in domain.PickupRequestInput) (*domain.PickupRequest, error) {
	if in.StudentID == "" || in.ParentID == "" {
		return nil, ErrInvalidRequest
	}

	student, ok := s.tracker.Get(in.StudentID)
	if !ok {
		return nil, ErrStudentNotFound
	}
	if !domain.CanTransition(student.Status, domain.StatusPendingPickup) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, student.Status, domain.StatusPendingPickup)
	}

	point, err := s.resolveLocation(ctx, in)
	if err != nil {
		return nil, err
	}

	dist, err := s.geofence.Authorize(point)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"student_id": in.StudentID,
			"parent_id":  in.ParentID,
		}).WithError(err).Info("pickup request rejected")
		return nil, err
	}

	delivered := s.hub.IsConnected()
	s.hub.SendPickupRequest(domain.PickupRequestMessage{
		StudentID: in.StudentID,
		ParentID:  in.ParentID,
		Status:    domain.StatusPendingPickup,
		Location:  *point,
	})
	if err := s.tracker.SetStatus(in.StudentID, domain.StatusPendingPickup); err != nil {
		return nil, err
	}

	req := &domain.PickupRequest{
		RequestID:      uuid.NewString(),
		StudentID:      in.StudentID,
		ParentID:       in.ParentID,
		Status:         domain.StatusPendingPickup,
		Location:       *point,
		DistanceMeters: dist,
		Delivered:      delivered,
		RequestedAt:    s.now(),
	}

	s.log.WithFields(logrus.Fields{
		"request_id": req.RequestID,
		"student_id": req.StudentID,
		"distance_m": dist,
		"delivered":  delivered,
	}).Info("pickup requested")

	return req, nil
}

// UpdateStatus sends a locally initiated status change, checked against the
// cached status.
func (s *PickupService) UpdateStatus(ctx context.Context, studentID string, status domain.PickupStatus) (*domain.Student, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	student, ok := s.tracker.Get(studentID)
	if !ok {
		return nil, ErrStudentNotFound
	}
	if !domain.CanTransition(student.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, student.Status, status)
	}

	s.hub.SendStatusUpdate(domain.StatusUpdateMessage{
		StudentID: studentID,
		Status:    status,
		Timestamp: s.now().UTC().Format(time.RFC3339),
	})
	if err := s.tracker.SetStatus(studentID, status); err != nil {
		return nil, err
	}

	student.Status = status
	return &student, nil
}

func (s *PickupService) JoinRoom(room string) {
	s.hub.JoinRoom(room)
}

func (s *PickupService) LeaveRoom(room string) {
	s.hub.LeaveRoom(room)
}

func (s *PickupService) ConnectionState() domain.ConnectionState {
	return s.hub.State()
}

func (s *PickupService) resolveLocation(ctx context.Context, in domain.PickupRequestInput) (*domain.GeoPoint, error) {
	if in.Location != nil {
		return in.Location, nil
	}

	loc, err := s.locations.Latest(ctx, in.ParentID)
	if errors.Is(err, location.ErrNotFound) {
		return nil, ErrLocationUnknown
	}
	if err != nil {
		return nil, fmt.Errorf("load device location: %w", err)
	}

	if s.maxAge > 0 && s.now().Sub(loc.ReportedAt) > s.maxAge {
		return nil, fmt.Errorf("%w: last report at %s is stale", ErrLocationUnknown, loc.ReportedAt.Format(time.RFC3339))
	}
	return &loc.Point, nil
}
