package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linknet/internal/connection/models"
	"linknet/pkg/domain"
	"linknet/pkg/platform/sentinel"
)

func newRecord(initiator, target domain.MemberID) *models.ConnectionRecord {
	return &models.ConnectionRecord{
		ID:          domain.NewConnectionID(),
		InitiatorID: initiator,
		TargetID:    target,
		Status:      models.StatusInitiated,
		CreatedAt:   time.Now(),
	}
}

func TestInMemoryStore_CreateRejectsActiveDuplicate(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	a, b := domain.NewMemberID(), domain.NewMemberID()

	require.NoError(t, s.Create(ctx, newRecord(a, b)))

	// Same pair, either direction.
	assert.ErrorIs(t, s.Create(ctx, newRecord(a, b)), sentinel.ErrConflict)
	assert.ErrorIs(t, s.Create(ctx, newRecord(b, a)), sentinel.ErrConflict)

	// A different pair is fine.
	require.NoError(t, s.Create(ctx, newRecord(a, domain.NewMemberID())))
}

func TestInMemoryStore_PairFreeAfterTerminal(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	a, b := domain.NewMemberID(), domain.NewMemberID()

	first := newRecord(a, b)
	require.NoError(t, s.Create(ctx, first))

	first.Status = models.StatusRejected
	require.NoError(t, s.Update(ctx, first, 1))

	active, err := s.GetActiveByPair(ctx, a, b)
	require.NoError(t, err)
	assert.Nil(t, active)

	// The pair can connect again once the prior record is terminal.
	require.NoError(t, s.Create(ctx, newRecord(b, a)))
}

func TestInMemoryStore_GetActiveByPair(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	a, b := domain.NewMemberID(), domain.NewMemberID()

	active, err := s.GetActiveByPair(ctx, a, b)
	require.NoError(t, err)
	assert.Nil(t, active)

	record := newRecord(a, b)
	require.NoError(t, s.Create(ctx, record))

	active, err = s.GetActiveByPair(ctx, b, a)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, record.ID, active.ID)
}

func TestInMemoryStore_UpdateVersionDiscipline(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	record := newRecord(domain.NewMemberID(), domain.NewMemberID())
	require.NoError(t, s.Create(ctx, record))

	record.Status = models.StatusAccepted
	require.NoError(t, s.Update(ctx, record, 1))
	assert.Equal(t, int64(2), record.Version)

	stale := record.Clone()
	stale.Status = models.StatusRemoved
	assert.ErrorIs(t, s.Update(ctx, stale, 1), sentinel.ErrConflict)

	missing := newRecord(domain.NewMemberID(), domain.NewMemberID())
	assert.ErrorIs(t, s.Update(ctx, missing, 1), sentinel.ErrNotFound)
}

func TestInMemoryStore_SnapshotPairRestoresRecordsAndIndex(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	a, b := domain.NewMemberID(), domain.NewMemberID()

	record := newRecord(a, b)
	require.NoError(t, s.Create(ctx, record))

	restore := s.SnapshotPair(a, b)
	changed := record.Clone()
	changed.Status = models.StatusAccepted
	require.NoError(t, s.Update(ctx, changed, 1))
	restore()

	got, err := s.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInitiated, got.Status)
	assert.Equal(t, int64(1), got.Version)

	// The pair index is restored too, so the pair still reads as taken.
	active, err := s.GetActiveByPair(ctx, b, a)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, record.ID, active.ID)
}

func TestInMemoryStore_SnapshotPairDropsRecordsCreatedAfter(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	a, b := domain.NewMemberID(), domain.NewMemberID()

	restore := s.SnapshotPair(a, b)
	require.NoError(t, s.Create(ctx, newRecord(a, b)))
	restore()

	active, err := s.GetActiveByPair(ctx, a, b)
	require.NoError(t, err)
	assert.Nil(t, active)

	// An unrelated pair's record is untouched by the restore.
	other := newRecord(domain.NewMemberID(), domain.NewMemberID())
	restore = s.SnapshotPair(a, b)
	require.NoError(t, s.Create(ctx, other))
	restore()
	_, err = s.GetByID(ctx, other.ID)
	require.NoError(t, err)
}

func TestInMemoryStore_ListByMember(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	m := domain.NewMemberID()

	oldest := newRecord(m, domain.NewMemberID())
	oldest.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, s.Create(ctx, oldest))

	newest := newRecord(domain.NewMemberID(), m)
	require.NoError(t, s.Create(ctx, newest))

	unrelated := newRecord(domain.NewMemberID(), domain.NewMemberID())
	require.NoError(t, s.Create(ctx, unrelated))

	list, err := s.ListByMember(ctx, m)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newest.ID, list[0].ID)
	assert.Equal(t, oldest.ID, list[1].ID)
}
