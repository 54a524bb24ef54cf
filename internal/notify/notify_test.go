package notify

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linknet/internal/connection/models"
)

type fakeSink struct {
	mu     sync.Mutex
	name   string
	err    error
	events []models.ChangeEvent
}

func (s *fakeSink) Deliver(_ context.Context, event models.ChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) delivered() []models.ChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ChangeEvent(nil), s.events...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func event(id string) models.ChangeEvent {
	return models.ChangeEvent{ConnectionID: id, Status: models.StatusAccepted}
}

func TestChannelNotifier_Buffers(t *testing.T) {
	n := NewChannelNotifier(4)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, n.Publish(ctx, event("c")))
	}
	assert.Len(t, n.Events(), 4)
}

func TestChannelNotifier_DropsWhenFull(t *testing.T) {
	n := NewChannelNotifier(1)
	ctx := context.Background()

	require.NoError(t, n.Publish(ctx, event("kept")))
	// Buffer is full; this must return immediately without blocking.
	require.NoError(t, n.Publish(ctx, event("dropped")))

	require.Len(t, n.Events(), 1)
	got := <-n.Events()
	assert.Equal(t, "kept", got.ConnectionID)
}

func TestWorker_FansOutToAllSinks(t *testing.T) {
	n := NewChannelNotifier(8)
	first := &fakeSink{name: "first"}
	second := &fakeSink{name: "second"}
	worker := NewWorker(n.Events(), discardLogger(), first, second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()

	require.NoError(t, n.Publish(ctx, event("a")))
	require.NoError(t, n.Publish(ctx, event("b")))

	require.Eventually(t, func() bool {
		return len(first.delivered()) == 2 && len(second.delivered()) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	assert.Equal(t, "a", first.delivered()[0].ConnectionID)
	assert.Equal(t, "b", second.delivered()[1].ConnectionID)
}

func TestWorker_FailingSinkDoesNotBlockOthers(t *testing.T) {
	n := NewChannelNotifier(8)
	broken := &fakeSink{name: "broken", err: assert.AnError}
	healthy := &fakeSink{name: "healthy"}
	worker := NewWorker(n.Events(), discardLogger(), broken, healthy)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	require.NoError(t, n.Publish(ctx, event("a")))

	require.Eventually(t, func() bool {
		return len(healthy.delivered()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, broken.delivered())
}

func TestWorker_StopsOnContextCancel(t *testing.T) {
	n := NewChannelNotifier(1)
	worker := NewWorker(n.Events(), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := worker.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
