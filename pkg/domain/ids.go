// Package domain holds shared domain primitives: typed identifiers and
// value-level vocabulary used across module boundaries.
package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// MemberID identifies a member of the network.
type MemberID uuid.UUID

// ConnectionID identifies a connection record.
type ConnectionID uuid.UUID

// NewMemberID returns a freshly generated member identifier.
func NewMemberID() MemberID {
	return MemberID(uuid.New())
}

// NewConnectionID returns a freshly generated connection identifier.
func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.New())
}

// ParseMemberID validates and returns a MemberID.
func ParseMemberID(s string) (MemberID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return MemberID{}, fmt.Errorf("invalid member id: %w", err)
	}
	return MemberID(u), nil
}

// ParseConnectionID validates and returns a ConnectionID.
func ParseConnectionID(s string) (ConnectionID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ConnectionID{}, fmt.Errorf("invalid connection id: %w", err)
	}
	return ConnectionID(u), nil
}

func (id MemberID) String() string {
	return uuid.UUID(id).String()
}

// IsNil returns true for the zero member ID.
func (id MemberID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}

// Less orders member IDs lexicographically by their canonical string form.
// Lock acquisition and row loading order both follow this ordering so that
// transitions touching the same pair of members never deadlock.
func (id MemberID) Less(other MemberID) bool {
	return id.String() < other.String()
}

func (id ConnectionID) String() string {
	return uuid.UUID(id).String()
}

// IsNil returns true for the zero connection ID.
func (id ConnectionID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}
