// Package kafka delivers change events to a Kafka topic, keyed by connection
// ID so per-connection ordering survives partitioning.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"linknet/internal/connection/models"
)

// producer is the subset of *kgo.Client the sink needs; tests substitute a
// recording fake.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Sink publishes change events to Kafka with synchronous produce semantics.
// It runs inside the notifier worker, so produce latency never blocks the
// coordinator.
type Sink struct {
	client producer
	topic  string
}

// New connects to the given brokers. Topic creation is left to the cluster's
// auto-create policy or ops tooling.
func New(brokers []string, topic string) (*Sink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Sink{client: client, topic: topic}, nil
}

// NewWithClient wires an existing producer; used by tests.
func NewWithClient(client producer, topic string) *Sink {
	return &Sink{client: client, topic: topic}
}

func (s *Sink) Name() string { return "kafka" }

func (s *Sink) Deliver(ctx context.Context, event models.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.ConnectionID),
		Value: payload,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce change event: %w", err)
	}
	return nil
}

// Close flushes and releases the underlying client.
func (s *Sink) Close() {
	s.client.Close()
}
