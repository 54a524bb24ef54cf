package store

import (
	"context"
	"sync"
	"time"

	"linknet/internal/member/models"
	"linknet/pkg/domain"
	"linknet/pkg/platform/sentinel"
)

// InMemoryStore keeps members in a mutex-guarded map. It honors the same
// version discipline as the postgres store so the coordinator behaves
// identically against either.
type InMemoryStore struct {
	mu      sync.RWMutex
	members map[domain.MemberID]*models.Member
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{members: make(map[domain.MemberID]*models.Member)}
}

func (s *InMemoryStore) Create(_ context.Context, member *models.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.members[member.ID]; exists {
		return sentinel.ErrConflict
	}
	stored := member.Clone()
	if stored.Version == 0 {
		stored.Version = 1
	}
	s.members[member.ID] = stored
	member.Version = stored.Version
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id domain.MemberID) (*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	member, exists := s.members[id]
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	return member.Clone(), nil
}

func (s *InMemoryStore) WriteAggregate(_ context.Context, id domain.MemberID, acceptedCount int, networkValue float64, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	member, exists := s.members[id]
	if !exists {
		return sentinel.ErrNotFound
	}
	if member.Version != expectedVersion {
		return sentinel.ErrConflict
	}
	member.AcceptedConnectionCount = acceptedCount
	member.NetworkValue = networkValue
	member.Version++
	member.UpdatedAt = time.Now()
	return nil
}

// SnapshotPair captures both members' current state and returns a restore
// function. The transaction boundary calls it before running a transition and
// restores on failure so a partial aggregate write is never left behind.
func (s *InMemoryStore) SnapshotPair(a, b domain.MemberID) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := make(map[domain.MemberID]*models.Member, 2)
	for _, id := range []domain.MemberID{a, b} {
		saved[id] = s.members[id].Clone()
	}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for id, member := range saved {
			if member == nil {
				delete(s.members, id)
				continue
			}
			s.members[id] = member.Clone()
		}
	}
}

func (s *InMemoryStore) UpdateIndustries(_ context.Context, id domain.MemberID, industries []string, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	member, exists := s.members[id]
	if !exists {
		return sentinel.ErrNotFound
	}
	if member.Version != expectedVersion {
		return sentinel.ErrConflict
	}
	member.Industries = append([]string(nil), industries...)
	member.Version++
	member.UpdatedAt = time.Now()
	return nil
}
