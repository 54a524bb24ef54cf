package service

import (
	"context"

	"linknet/internal/cache"
	"linknet/internal/connection/models"
	"linknet/pkg/domain"
	dErrors "linknet/pkg/domain-errors"
)

// MemberProfile is the assembled read model served to clients: the member's
// profile attributes, their derived aggregates, and their connections.
type MemberProfile struct {
	ID                      string              `json:"id"`
	DisplayName             string              `json:"displayName"`
	Industries              []string            `json:"industries"`
	AcceptedConnectionCount int                 `json:"acceptedConnectionCount"`
	NetworkValue            float64             `json:"networkValue"`
	Connections             []ProfileConnection `json:"connections"`
}

// ProfileConnection is one connection as seen from the profiled member's side.
type ProfileConnection struct {
	ConnectionID     string        `json:"connectionId"`
	PeerID           string        `json:"peerId"`
	Status           models.Status `json:"status"`
	SharedIndustries []string      `json:"sharedIndustries"`
}

// MemberProfile serves the profile through the acceleration layer. A cached
// profile can never carry stale aggregates: every transition invalidates both
// parties' entries inside its atomic unit.
func (s *Coordinator) MemberProfile(ctx context.Context, id domain.MemberID) (MemberProfile, error) {
	return cache.GetOrCompute(ctx, s.cache, cache.MemberProfileKey(id.String()), s.profileTTL,
		func(ctx context.Context) (MemberProfile, error) {
			return s.assembleProfile(ctx, id)
		})
}

func (s *Coordinator) assembleProfile(ctx context.Context, id domain.MemberID) (MemberProfile, error) {
	member, err := s.stores.Members.Get(ctx, id)
	if err != nil {
		return MemberProfile{}, s.translateStoreErr(err, "member not found")
	}

	records, err := s.stores.Connections.ListByMember(ctx, id)
	if err != nil {
		return MemberProfile{}, dErrors.Wrap(err, dErrors.CodeStorage, "failed to list connections")
	}

	connections := make([]ProfileConnection, 0, len(records))
	for _, record := range records {
		peer := record.TargetID
		if peer == id {
			peer = record.InitiatorID
		}
		connections = append(connections, ProfileConnection{
			ConnectionID:     record.ID.String(),
			PeerID:           peer.String(),
			Status:           record.Status,
			SharedIndustries: record.SharedIndustries,
		})
	}

	return MemberProfile{
		ID:                      member.ID.String(),
		DisplayName:             member.DisplayName,
		Industries:              member.Industries,
		AcceptedConnectionCount: member.AcceptedConnectionCount,
		NetworkValue:            member.NetworkValue,
		Connections:             connections,
	}, nil
}
