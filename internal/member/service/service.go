// Package service exposes member registration and profile-edit operations.
// It never touches the derived aggregates; those belong to the connection
// coordinator.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"linknet/internal/member/models"
	"linknet/internal/member/store"
	"linknet/pkg/domain"
	dErrors "linknet/pkg/domain-errors"
	"linknet/pkg/platform/keylock"
	"linknet/pkg/platform/sentinel"
	pstrings "linknet/pkg/platform/strings"
)

type Service struct {
	store store.Store
	locks *keylock.Registry[domain.MemberID]
}

type Option func(*Service)

// WithMemberLocks makes profile edits take the same per-member mutex the
// connection transaction boundary uses, so an industry update cannot slip
// between a transition's read and its aggregate write. Required for the
// in-memory store; the postgres store relies on row locks instead.
func WithMemberLocks(locks *keylock.Registry[domain.MemberID]) Option {
	return func(s *Service) {
		s.locks = locks
	}
}

func NewService(store store.Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a member with a normalized industry-tag set and zeroed
// aggregates.
func (s *Service) Register(ctx context.Context, displayName string, industries []string) (*models.Member, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "display name is required")
	}

	now := time.Now()
	member := &models.Member{
		ID:          domain.NewMemberID(),
		DisplayName: displayName,
		Industries:  pstrings.DedupeAndTrimLower(industries),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, member); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to create member")
	}
	return member, nil
}

func (s *Service) Get(ctx context.Context, id domain.MemberID) (*models.Member, error) {
	member, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "member not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load member")
	}
	return member, nil
}

// UpdateIndustries replaces the member's tag set. Shared industries on
// existing connection records are deliberately left as-is until the next
// transition recomputes them.
func (s *Service) UpdateIndustries(ctx context.Context, id domain.MemberID, industries []string) (*models.Member, error) {
	if s.locks != nil {
		lock := s.locks.Get(id)
		lock.Lock()
		defer lock.Unlock()
	}

	member, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	normalized := pstrings.DedupeAndTrimLower(industries)
	if err := s.store.UpdateIndustries(ctx, id, normalized, member.Version); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "member not found")
		case errors.Is(err, sentinel.ErrConflict):
			return nil, dErrors.Wrap(err, dErrors.CodeConcurrentConflict, "member was updated concurrently, retry the request")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to update industries")
		}
	}
	member.Industries = normalized
	member.Version++
	return member, nil
}
