package memory

import (
	"context"
	"sync"

	"github.com/gns-x/SafeDrop/module/pickup/domain"
	"github.com/gns-x/SafeDrop/module/pickup/internal/repository/location"
)

var _ location.Store = (*Store)(nil)

// Store keeps the most recent report per parent device. A report older than
// the one already held is ignored, so out-of-order MQTT delivery cannot roll
// a parent back.
type Store struct {
	mu     sync.RWMutex
	latest map[string]domain.DeviceLocation
}

func NewStore() *Store {
	return &Store{latest: make(map[string]domain.DeviceLocation)}
}

func (s *Store) Save(_ context.Context, loc *domain.DeviceLocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.latest[loc.ParentID]; ok && loc.ReportedAt.Before(cur.ReportedAt) {
		return nil
	}
	s.latest[loc.ParentID] = *loc
	return nil
}

func (s *Store) Latest(_ context.Context, parentID string) (*domain.DeviceLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loc, ok := s.latest[parentID]
	if !ok {
		return nil, location.ErrNotFound
	}
	return &loc, nil
}
