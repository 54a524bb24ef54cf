// Package store defines persistence for connection records. Implementations
// return sentinel errors; services translate them into domain errors.
package store

import (
	"context"

	"linknet/internal/connection/models"
	"linknet/pkg/domain"
)

// Store is the connection persistence port.
type Store interface {
	// Create persists a new record. Returns sentinel.ErrConflict when an
	// active record already exists for the unordered pair.
	Create(ctx context.Context, record *models.ConnectionRecord) error

	// GetByID returns sentinel.ErrNotFound for a missing record.
	GetByID(ctx context.Context, id domain.ConnectionID) (*models.ConnectionRecord, error)

	// GetActiveByPair returns the active (initiated or accepted) record for
	// the unordered pair, or nil when none exists.
	GetActiveByPair(ctx context.Context, a, b domain.MemberID) (*models.ConnectionRecord, error)

	// Update persists a transitioned record under an optimistic version
	// check. Returns sentinel.ErrConflict on version mismatch.
	Update(ctx context.Context, record *models.ConnectionRecord, expectedVersion int64) error

	// ListByMember returns every record the member is party to, newest first.
	ListByMember(ctx context.Context, id domain.MemberID) ([]*models.ConnectionRecord, error)
}
