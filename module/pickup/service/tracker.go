package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gns-x/SafeDrop/module/pickup/domain"
	"github.com/gns-x/SafeDrop/module/pickup/internal/repository/publisher"
)

// StatusTracker caches the pickup status of the students visible to the
// viewer and raises notifications according to the viewer's role. Inbound
// server events are applied as-is; only local changes go through
// domain.CanTransition (see PickupService).
type StatusTracker struct {
	viewer   domain.Viewer
	notifier publisher.NotificationPublisher
	log      logrus.FieldLogger
	now      func() time.Time

	mu       sync.RWMutex
	students map[string]domain.Student
}

func NewStatusTracker(viewer domain.Viewer, notifier publisher.NotificationPublisher, log logrus.FieldLogger) *StatusTracker {
	return &StatusTracker{
		viewer:   viewer,
		notifier: notifier,
		log:      log.WithFields(logrus.Fields{"component": "status_tracker", "role": viewer.Role}),
		now:      time.Now,
		students: make(map[string]domain.Student),
	}
}

// Seed replaces the roster.
func (t *StatusTracker) Seed(students []domain.Student) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.students = make(map[string]domain.Student, len(students))
	for _, s := range students {
		if s.ID == "" {
			continue
		}
		if !s.Status.Valid() {
			s.Status = domain.StatusInClass
		}
		t.students[s.ID] = s
	}
}

func (t *StatusTracker) ApplyStatusUpdate(ctx context.Context, ev domain.StatusUpdateEvent) error {
	if ev.StudentID == "" {
		return fmt.Errorf("status update: %w", ErrStudentNotFound)
	}
	if !ev.Status.Valid() {
		return fmt.Errorf("status update for %s: %w: %q", ev.StudentID, ErrInvalidStatus, ev.Status)
	}

	t.mu.Lock()
	student, ok := t.students[ev.StudentID]
	if !ok {
		t.mu.Unlock()
		t.log.WithField("student_id", ev.StudentID).Debug("status update for student outside roster")
		return nil
	}
	if t.viewer.Role == domain.RoleTeacher && !t.sameGrade(ev.Grade, student.Grade) {
		t.mu.Unlock()
		return nil
	}

	prev := student.Status
	student.Status = ev.Status
	t.students[student.ID] = student
	t.mu.Unlock()

	t.log.WithFields(logrus.Fields{
		"student_id": student.ID,
		"from":       prev,
		"to":         ev.Status,
	}).Info("student status updated")

	if t.shouldNotify(prev, ev.Status) {
		t.notify(ctx, student)
	}
	return nil
}

// ApplyBroadcast handles teacher broadcasts. Only PICKUP_REQUEST carries a
// state change: the named student moves to PENDING_PICKUP.
func (t *StatusTracker) ApplyBroadcast(ctx context.Context, b domain.Broadcast) error {
	if t.viewer.Role != domain.RoleTeacher || b.Type != domain.BroadcastPickupRequest {
		return nil
	}

	id, _ := b.Data["studentId"].(string)
	name, _ := b.Data["studentName"].(string)
	if id == "" && name == "" {
		return fmt.Errorf("pickup broadcast: %w", ErrStudentNotFound)
	}

	t.mu.Lock()
	student, ok := t.lookupLocked(id, name)
	if !ok {
		t.mu.Unlock()
		t.log.WithFields(logrus.Fields{"student_id": id, "student_name": name}).Debug("pickup broadcast for student outside roster")
		return nil
	}
	prev := student.Status
	student.Status = domain.StatusPendingPickup
	t.students[student.ID] = student
	t.mu.Unlock()

	if prev != domain.StatusPendingPickup {
		t.notify(ctx, student)
	}
	return nil
}

// SetStatus records a status change the agent itself sent to the backend.
func (t *StatusTracker) SetStatus(studentID string, status domain.PickupStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	student, ok := t.students[studentID]
	if !ok {
		return ErrStudentNotFound
	}
	student.Status = status
	t.students[studentID] = student
	return nil
}

func (t *StatusTracker) Get(studentID string) (domain.Student, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.students[studentID]
	return s, ok
}

// List returns the roster sorted by name, then id.
func (t *StatusTracker) List() []domain.Student {
	t.mu.RLock()
	out := make([]domain.Student, 0, len(t.students))
	for _, s := range t.students {
		out = append(out, s)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (t *StatusTracker) Viewer() domain.Viewer {
	return t.viewer
}

func (t *StatusTracker) sameGrade(eventGrade, studentGrade string) bool {
	if t.viewer.Grade == "" {
		return false
	}
	return eventGrade == t.viewer.Grade || studentGrade == t.viewer.Grade
}

func (t *StatusTracker) shouldNotify(prev, next domain.PickupStatus) bool {
	if prev == next {
		return false
	}
	switch t.viewer.Role {
	case domain.RoleParent:
		return next == domain.StatusWithParent
	case domain.RoleTeacher:
		return true
	}
	return false
}

func (t *StatusTracker) lookupLocked(id, name string) (domain.Student, bool) {
	if id != "" {
		s, ok := t.students[id]
		return s, ok
	}
	for _, s := range t.students {
		if s.Name == name {
			return s, true
		}
	}
	return domain.Student{}, false
}

func (t *StatusTracker) notify(ctx context.Context, student domain.Student) {
	if t.notifier == nil {
		return
	}
	n := &domain.PickupNotification{
		StudentID:   student.ID,
		StudentName: student.Name,
		Status:      student.Status,
		Recipient:   t.viewer,
		Timestamp:   t.now(),
	}
	if err := t.notifier.PublishNotification(ctx, n); err != nil {
		t.log.WithError(err).WithField("student_id", student.ID).Error("failed to publish pickup notification")
	}
}
