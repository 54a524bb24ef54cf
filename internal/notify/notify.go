// Package notify publishes normalized change events for delivery to live
// clients. The coordinator calls Publish synchronously after, and only after,
// its atomic write has committed; delivery itself is asynchronous and
// best-effort from the coordinator's perspective.
package notify

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"linknet/internal/connection/models"
)

var (
	publishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linknet_change_events_published_total",
		Help: "Change events accepted for delivery",
	})
	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linknet_change_events_dropped_total",
		Help: "Change events dropped because the delivery buffer was full",
	})
)

// Notifier is the coordinator's publishing port.
type Notifier interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
}

// Sink delivers an event to one transport (log, redis pub/sub, kafka).
type Sink interface {
	Deliver(ctx context.Context, event models.ChangeEvent) error
	Name() string
}

// ChannelNotifier buffers events on a channel drained by a Worker. Publish
// never blocks the coordinator: when the buffer is full the event is dropped
// and counted, matching the fire-and-forget contract.
type ChannelNotifier struct {
	events chan models.ChangeEvent
}

// NewChannelNotifier builds a notifier with the given buffer size.
func NewChannelNotifier(buffer int) *ChannelNotifier {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChannelNotifier{events: make(chan models.ChangeEvent, buffer)}
}

func (n *ChannelNotifier) Publish(_ context.Context, event models.ChangeEvent) error {
	select {
	case n.events <- event:
		publishedTotal.Inc()
	default:
		droppedTotal.Inc()
	}
	return nil
}

// Events exposes the channel for the worker.
func (n *ChannelNotifier) Events() <-chan models.ChangeEvent {
	return n.events
}

// Worker drains the notifier channel and fans each event out to every sink.
// A failing sink is logged and skipped; it never stops delivery to the others.
type Worker struct {
	inbox  <-chan models.ChangeEvent
	sinks  []Sink
	logger *slog.Logger
}

func NewWorker(inbox <-chan models.ChangeEvent, logger *slog.Logger, sinks ...Sink) *Worker {
	return &Worker{inbox: inbox, sinks: sinks, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			for _, sink := range w.sinks {
				if err := sink.Deliver(ctx, event); err != nil {
					w.logger.WarnContext(ctx, "change event delivery failed",
						"sink", sink.Name(),
						"connection_id", event.ConnectionID,
						"error", err.Error(),
					)
				}
			}
		}
	}
}
