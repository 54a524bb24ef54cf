package models

import (
	"time"

	"linknet/pkg/domain"
)

// Member is the per-member view this engine owns the aggregates of. Industry
// tags belong to the profile layer; AcceptedConnectionCount and NetworkValue
// are derived facts maintained exclusively by the connection coordinator.
type Member struct {
	ID          domain.MemberID
	DisplayName string
	// Industries is a normalized tag set: trimmed, lowercased, deduplicated.
	// Order carries no meaning.
	Industries []string

	// AcceptedConnectionCount is the number of connections currently in the
	// accepted state. NetworkValue is always a deterministic function of it;
	// both are written only through Store.WriteAggregate.
	AcceptedConnectionCount int
	NetworkValue            float64

	// Version is the optimistic concurrency token bumped on every write.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy so in-memory stores never leak internal state.
func (m *Member) Clone() *Member {
	if m == nil {
		return nil
	}
	out := *m
	out.Industries = append([]string(nil), m.Industries...)
	return &out
}
