package models

import (
	"time"

	"linknet/pkg/domain"
	dErrors "linknet/pkg/domain-errors"
)

// Status is the lifecycle state of a connection record.
type Status string

const (
	StatusInitiated Status = "initiated"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusRemoved   Status = "removed"
)

// Event names a lifecycle transition request.
type Event string

const (
	EventPropose Event = "propose"
	EventAccept  Event = "accept"
	EventReject  Event = "reject"
	EventRemove  Event = "remove"
)

// transitions is the full legal transition table. Rejected and removed are
// terminal; accepted may only move to removed.
var transitions = map[Status]map[Event]Status{
	StatusInitiated: {
		EventAccept: StatusAccepted,
		EventReject: StatusRejected,
	},
	StatusAccepted: {
		EventRemove: StatusRemoved,
	},
}

// NextStatus returns the status the event leads to from the given state, or an
// invalid-transition error. It is pure: side effects belong to the coordinator.
func NextStatus(from Status, event Event) (Status, error) {
	if next, ok := transitions[from][event]; ok {
		return next, nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidTransition,
		"event %q is not legal from status %q", event, from)
}

// CanTransition reports whether the event is legal from the given status.
func CanTransition(from Status, event Event) bool {
	_, ok := transitions[from][event]
	return ok
}

// ConnectionRecord represents a directed proposal from an initiating member to
// a target member and its lifecycle state.
type ConnectionRecord struct {
	ID          domain.ConnectionID
	InitiatorID domain.MemberID
	TargetID    domain.MemberID
	Status      Status

	// SharedIndustries is the intersection of the two members' industry tags
	// as of the record's last recompute. A profile edit between transitions
	// leaves it stale until the next transition; it is never wrong relative
	// to the data it was computed from.
	SharedIndustries []string

	// Version is the optimistic concurrency token bumped on every write.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive reports whether the record blocks a new proposal for its pair.
func (c *ConnectionRecord) IsActive() bool {
	return c.Status == StatusInitiated || c.Status == StatusAccepted
}

// Terminal reports whether no further transition is possible.
func (c *ConnectionRecord) Terminal() bool {
	return len(transitions[c.Status]) == 0
}

// Involves reports whether the record touches the given member.
func (c *ConnectionRecord) Involves(id domain.MemberID) bool {
	return c.InitiatorID == id || c.TargetID == id
}

// Clone returns a deep copy so in-memory stores never leak internal state.
func (c *ConnectionRecord) Clone() *ConnectionRecord {
	if c == nil {
		return nil
	}
	out := *c
	out.SharedIndustries = append([]string(nil), c.SharedIndustries...)
	return &out
}

// PairKey is the canonical key for the unordered member pair, smaller ID
// first. At most one active record may exist per key.
func PairKey(a, b domain.MemberID) string {
	if b.Less(a) {
		a, b = b, a
	}
	return a.String() + ":" + b.String()
}
