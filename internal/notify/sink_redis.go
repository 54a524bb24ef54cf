package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"linknet/internal/connection/models"
)

// connectionChangeChannel is the pub/sub channel live-client gateways
// subscribe to.
const connectionChangeChannel = "linknet:connection-changes"

// RedisSink publishes change events on a Redis pub/sub channel for the
// real-time delivery layer to fan out to websocket gateways.
type RedisSink struct {
	client *redis.Client
}

func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Deliver(ctx context.Context, event models.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	if err := s.client.Publish(ctx, connectionChangeChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}
