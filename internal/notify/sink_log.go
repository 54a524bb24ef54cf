package notify

import (
	"context"
	"log/slog"

	"linknet/internal/connection/models"
)

// LogSink writes every change event to the structured log. Useful in
// development and as a delivery audit trail alongside real transports.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(ctx context.Context, event models.ChangeEvent) error {
	s.logger.InfoContext(ctx, "connection changed",
		"connection_id", event.ConnectionID,
		"status", string(event.Status),
		"shared_industries", event.SharedIndustries,
		"members", len(event.Members),
		"occurred_at", event.OccurredAt,
	)
	return nil
}
