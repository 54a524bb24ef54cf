// Package store defines persistence for members. Implementations return
// sentinel errors; services translate them into domain errors.
package store

import (
	"context"

	"linknet/internal/member/models"
	"linknet/pkg/domain"
)

// Store is the member persistence port. WriteAggregate is the only mutation
// path for AcceptedConnectionCount/NetworkValue; nothing else may touch those
// columns.
type Store interface {
	Create(ctx context.Context, member *models.Member) error
	Get(ctx context.Context, id domain.MemberID) (*models.Member, error)

	// WriteAggregate persists the derived aggregates under an optimistic
	// version check. Returns sentinel.ErrConflict when expectedVersion does
	// not match the stored row and sentinel.ErrNotFound for a missing member.
	WriteAggregate(ctx context.Context, id domain.MemberID, acceptedCount int, networkValue float64, expectedVersion int64) error

	// UpdateIndustries replaces the member's tag set under the same version
	// discipline. Existing connection records keep their last computed shared
	// industries until the next transition recomputes them.
	UpdateIndustries(ctx context.Context, id domain.MemberID, industries []string, expectedVersion int64) error
}
