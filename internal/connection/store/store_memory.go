package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"linknet/internal/connection/models"
	"linknet/pkg/domain"
	"linknet/pkg/platform/sentinel"
)

// InMemoryStore keeps connection records in mutex-guarded maps with a
// secondary index on the unordered pair key for duplicate checks.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[domain.ConnectionID]*models.ConnectionRecord
	// byPair tracks the active record per pair key. Terminal records drop out
	// of the index so a pair can connect again after a removal.
	byPair map[string]domain.ConnectionID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[domain.ConnectionID]*models.ConnectionRecord),
		byPair:  make(map[string]domain.ConnectionID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, record *models.ConnectionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; exists {
		return sentinel.ErrConflict
	}
	key := models.PairKey(record.InitiatorID, record.TargetID)
	if existingID, exists := s.byPair[key]; exists {
		if existing := s.records[existingID]; existing != nil && existing.IsActive() {
			return sentinel.ErrConflict
		}
	}

	stored := record.Clone()
	if stored.Version == 0 {
		stored.Version = 1
	}
	s.records[record.ID] = stored
	if stored.IsActive() {
		s.byPair[key] = stored.ID
	}
	record.Version = stored.Version
	return nil
}

func (s *InMemoryStore) GetByID(_ context.Context, id domain.ConnectionID) (*models.ConnectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.records[id]
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	return record.Clone(), nil
}

func (s *InMemoryStore) GetActiveByPair(_ context.Context, a, b domain.MemberID) (*models.ConnectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byPair[models.PairKey(a, b)]
	if !exists {
		return nil, nil
	}
	record := s.records[id]
	if record == nil || !record.IsActive() {
		return nil, nil
	}
	return record.Clone(), nil
}

func (s *InMemoryStore) Update(_ context.Context, record *models.ConnectionRecord, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.records[record.ID]
	if !exists {
		return sentinel.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return sentinel.ErrConflict
	}

	updated := record.Clone()
	updated.Version = stored.Version + 1
	updated.UpdatedAt = time.Now()
	s.records[record.ID] = updated

	key := models.PairKey(record.InitiatorID, record.TargetID)
	if updated.IsActive() {
		s.byPair[key] = updated.ID
	} else if s.byPair[key] == updated.ID {
		delete(s.byPair, key)
	}

	record.Version = updated.Version
	record.UpdatedAt = updated.UpdatedAt
	return nil
}

// SnapshotPair captures every record involving either member and returns a
// restore function that reinstates them, including the pair index entries, if
// a transition has to be unwound.
func (s *InMemoryStore) SnapshotPair(a, b domain.MemberID) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := make(map[domain.ConnectionID]*models.ConnectionRecord)
	for id, record := range s.records {
		if record.Involves(a) || record.Involves(b) {
			saved[id] = record.Clone()
		}
	}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		for id, record := range s.records {
			if !record.Involves(a) && !record.Involves(b) {
				continue
			}
			key := models.PairKey(record.InitiatorID, record.TargetID)
			if s.byPair[key] == id {
				delete(s.byPair, key)
			}
			delete(s.records, id)
		}
		for id, record := range saved {
			restored := record.Clone()
			s.records[id] = restored
			if restored.IsActive() {
				s.byPair[models.PairKey(restored.InitiatorID, restored.TargetID)] = id
			}
		}
	}
}

func (s *InMemoryStore) ListByMember(_ context.Context, id domain.MemberID) ([]*models.ConnectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.ConnectionRecord
	for _, record := range s.records {
		if record.Involves(id) {
			out = append(out, record.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
