package models

import (
	"time"
)

// MemberAggregate is the per-member slice of a change event: the derived
// facts a live client needs to update its local view.
type MemberAggregate struct {
	AcceptedConnectionCount int     `json:"acceptedConnectionCount"`
	NetworkValue            float64 `json:"networkValue"`
}

// ChangeEvent is the stable wire payload published after every committed
// transition. The delivery layer may re-frame it but must not reshape it.
type ChangeEvent struct {
	ConnectionID     string                     `json:"connectionId"`
	Status           Status                     `json:"status"`
	SharedIndustries []string                   `json:"sharedIndustries"`
	Members          map[string]MemberAggregate `json:"members"`
	OccurredAt       time.Time                  `json:"occurredAt"`
}
