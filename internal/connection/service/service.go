// Package service contains the consistency coordinator: the sole writer of
// connection status, shared industries, and member aggregates. Every
// transition runs as one atomic unit — validate, compute derived facts,
// persist record and both member aggregates, then (and only then) publish a
// change event.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"linknet/internal/affinity"
	"linknet/internal/cache"
	"linknet/internal/connection/metrics"
	"linknet/internal/connection/models"
	membermodels "linknet/internal/member/models"
	"linknet/internal/netvalue"
	"linknet/internal/notify"
	"linknet/pkg/domain"
	dErrors "linknet/pkg/domain-errors"
	"linknet/pkg/platform/sentinel"
)

// Coordinator orchestrates connection lifecycle transitions.
type Coordinator struct {
	stores     Stores
	tx         Tx
	aggregator *netvalue.Aggregator
	notifier   notify.Notifier
	cache      *cache.Cache
	profileTTL time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithCache enables the read-path acceleration layer.
func WithCache(c *cache.Cache, profileTTL time.Duration) Option {
	return func(s *Coordinator) {
		s.cache = c
		s.profileTTL = profileTTL
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Coordinator) {
		s.metrics = m
	}
}

// New builds the coordinator. The stores passed here must be the same ones the
// Tx implementation wraps, or atomicity is lost.
func New(stores Stores, tx Tx, aggregator *netvalue.Aggregator, notifier notify.Notifier, logger *slog.Logger, opts ...Option) *Coordinator {
	s := &Coordinator{
		stores:     stores,
		tx:         tx,
		aggregator: aggregator,
		notifier:   notifier,
		profileTTL: time.Minute,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Propose creates a new connection record in the initiated state.
func (s *Coordinator) Propose(ctx context.Context, initiatorID, targetID domain.MemberID) (*models.ConnectionRecord, error) {
	start := time.Now()

	if initiatorID == targetID {
		s.metrics.ObserveTransition(string(models.EventPropose), "rejected", time.Since(start))
		return nil, dErrors.New(dErrors.CodeSelfConnection, "a member cannot connect to themselves")
	}

	var (
		record *models.ConnectionRecord
		event  models.ChangeEvent
	)
	err := s.tx.Run(ctx, initiatorID, targetID, func(ctx context.Context, st Stores) error {
		existing, err := st.Connections.GetActiveByPair(ctx, initiatorID, targetID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to check existing pair")
		}
		if existing != nil {
			return dErrors.New(dErrors.CodeDuplicatePair, "an active connection already exists for this pair")
		}

		initiator, target, err := s.loadPair(ctx, st, initiatorID, targetID)
		if err != nil {
			return err
		}

		now := time.Now()
		record = &models.ConnectionRecord{
			ID:               domain.NewConnectionID(),
			InitiatorID:      initiatorID,
			TargetID:         targetID,
			Status:           models.StatusInitiated,
			SharedIndustries: affinity.SharedIndustries(initiator.Industries, target.Industries),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := st.Connections.Create(ctx, record); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeDuplicatePair, "an active connection already exists for this pair")
			}
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to create connection")
		}

		event = s.changeEvent(record, initiator, target)
		return s.invalidateProfiles(ctx, initiatorID, targetID)
	})
	s.dropCachedProfiles(ctx, initiatorID, targetID)
	if err != nil {
		s.observeFailure(models.EventPropose, start, err)
		return nil, err
	}

	s.publish(ctx, event)
	s.metrics.ObserveTransition(string(models.EventPropose), "ok", time.Since(start))
	return record, nil
}

// Accept transitions an initiated connection to accepted and credits both
// members' aggregates.
func (s *Coordinator) Accept(ctx context.Context, id domain.ConnectionID) (*models.ConnectionRecord, error) {
	return s.applyTransition(ctx, id, models.EventAccept)
}

// Reject transitions an initiated connection to the terminal rejected state.
func (s *Coordinator) Reject(ctx context.Context, id domain.ConnectionID) (*models.ConnectionRecord, error) {
	return s.applyTransition(ctx, id, models.EventReject)
}

// Remove transitions an accepted connection to the terminal removed state and
// debits both members' aggregates.
func (s *Coordinator) Remove(ctx context.Context, id domain.ConnectionID) (*models.ConnectionRecord, error) {
	return s.applyTransition(ctx, id, models.EventRemove)
}

func (s *Coordinator) applyTransition(ctx context.Context, id domain.ConnectionID, lifecycleEvent models.Event) (*models.ConnectionRecord, error) {
	start := time.Now()

	// Peek outside the atomic unit to learn which member pair to serialize
	// on. The record is re-read inside, so a stale peek only costs a retry.
	peek, err := s.stores.Connections.GetByID(ctx, id)
	if err != nil {
		s.observeFailure(lifecycleEvent, start, err)
		return nil, s.translateStoreErr(err, "connection not found")
	}

	var (
		record *models.ConnectionRecord
		event  models.ChangeEvent
	)
	err = s.tx.Run(ctx, peek.InitiatorID, peek.TargetID, func(ctx context.Context, st Stores) error {
		record, err = st.Connections.GetByID(ctx, id)
		if err != nil {
			return s.translateStoreErr(err, "connection not found")
		}

		next, err := models.NextStatus(record.Status, lifecycleEvent)
		if err != nil {
			return err
		}

		initiator, target, err := s.loadPair(ctx, st, record.InitiatorID, record.TargetID)
		if err != nil {
			return err
		}

		switch lifecycleEvent {
		case models.EventAccept:
			record.SharedIndustries = affinity.SharedIndustries(initiator.Industries, target.Industries)
			if err := s.writeAggregates(ctx, st, initiator, target, +1); err != nil {
				return err
			}
		case models.EventRemove:
			if err := s.writeAggregates(ctx, st, initiator, target, -1); err != nil {
				return err
			}
		case models.EventReject:
			// No aggregate side effects.
		}

		record.Status = next
		if err := st.Connections.Update(ctx, record, record.Version); err != nil {
			return s.translateStoreErr(err, "connection not found")
		}

		event = s.changeEvent(record, initiator, target)
		return s.invalidateProfiles(ctx, record.InitiatorID, record.TargetID)
	})
	s.dropCachedProfiles(ctx, peek.InitiatorID, peek.TargetID)
	if err != nil {
		s.observeFailure(lifecycleEvent, start, err)
		return nil, err
	}

	s.publish(ctx, event)
	s.metrics.ObserveTransition(string(lifecycleEvent), "ok", time.Since(start))
	return record, nil
}

// loadPair loads both members in ID order so lock acquisition matches across
// every concurrent transition touching either member.
func (s *Coordinator) loadPair(ctx context.Context, st Stores, initiatorID, targetID domain.MemberID) (initiator, target *membermodels.Member, err error) {
	firstID, secondID := initiatorID, targetID
	if secondID.Less(firstID) {
		firstID, secondID = secondID, firstID
	}

	first, err := st.Members.Get(ctx, firstID)
	if err != nil {
		return nil, nil, s.translateStoreErr(err, "member "+firstID.String()+" not found")
	}
	second, err := st.Members.Get(ctx, secondID)
	if err != nil {
		return nil, nil, s.translateStoreErr(err, "member "+secondID.String()+" not found")
	}

	if first.ID == initiatorID {
		return first, second, nil
	}
	return second, first, nil
}

// writeAggregates applies the count delta to both members and persists the
// recomputed network values. The member structs are updated in place so the
// change event reflects the post-transition aggregates.
func (s *Coordinator) writeAggregates(ctx context.Context, st Stores, initiator, target *membermodels.Member, delta int) error {
	for _, member := range []*membermodels.Member{initiator, target} {
		count := member.AcceptedConnectionCount + delta
		if count < 0 {
			count = 0
		}
		value := s.aggregator.NetworkValue(count)
		if err := st.Members.WriteAggregate(ctx, member.ID, count, value, member.Version); err != nil {
			return s.translateStoreErr(err, "member "+member.ID.String()+" not found")
		}
		member.AcceptedConnectionCount = count
		member.NetworkValue = value
		member.Version++
	}
	return nil
}

func (s *Coordinator) changeEvent(record *models.ConnectionRecord, initiator, target *membermodels.Member) models.ChangeEvent {
	return models.ChangeEvent{
		ConnectionID:     record.ID.String(),
		Status:           record.Status,
		SharedIndustries: append([]string(nil), record.SharedIndustries...),
		Members: map[string]models.MemberAggregate{
			initiator.ID.String(): {
				AcceptedConnectionCount: initiator.AcceptedConnectionCount,
				NetworkValue:            initiator.NetworkValue,
			},
			target.ID.String(): {
				AcceptedConnectionCount: target.AcceptedConnectionCount,
				NetworkValue:            target.NetworkValue,
			},
		},
		OccurredAt: time.Now(),
	}
}

// invalidateProfiles drops both members' cached profiles inside the atomic
// unit so no reader can observe a stale aggregate after commit.
func (s *Coordinator) invalidateProfiles(ctx context.Context, a, b domain.MemberID) error {
	err := s.cache.Invalidate(ctx,
		cache.MemberProfileKey(a.String()),
		cache.MemberProfileKey(b.String()),
	)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "failed to invalidate cached profiles")
	}
	return nil
}

// dropCachedProfiles invalidates again after the atomic unit has finished.
// The in-unit invalidation runs before a database commit, so a profile read
// landing in between can recompute from pre-commit rows and re-cache them;
// this second pass closes that window. On failure it also clears anything a
// reader cached from state the unit rolled back. Best effort: a miss here
// only extends staleness until the TTL expires.
func (s *Coordinator) dropCachedProfiles(ctx context.Context, a, b domain.MemberID) {
	err := s.cache.Invalidate(context.WithoutCancel(ctx),
		cache.MemberProfileKey(a.String()),
		cache.MemberProfileKey(b.String()),
	)
	if err != nil {
		s.logger.WarnContext(ctx, "post-commit cache invalidation failed", "error", err.Error())
	}
}

// publish hands the event to the notifier after the atomic unit has durably
// committed. The notifier is non-blocking; a slow transport never delays the
// caller.
func (s *Coordinator) publish(ctx context.Context, event models.ChangeEvent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "change event publish failed",
			"connection_id", event.ConnectionID,
			"error", err.Error(),
		)
	}
}

func (s *Coordinator) observeFailure(lifecycleEvent models.Event, start time.Time, err error) {
	outcome := "rejected"
	if dErrors.HasCode(err, dErrors.CodeStorage) || dErrors.HasCode(err, dErrors.CodeInternal) {
		outcome = "error"
	}
	if dErrors.HasCode(err, dErrors.CodeConcurrentConflict) {
		s.metrics.IncrementConflicts()
	}
	s.metrics.ObserveTransition(string(lifecycleEvent), outcome, time.Since(start))
}

// translateStoreErr maps sentinel errors to coded domain errors.
func (s *Coordinator) translateStoreErr(err error, notFoundMsg string) error {
	switch {
	case err == nil:
		return nil
	case dErrors.HasCode(err, dErrors.CodeNotFound),
		dErrors.HasCode(err, dErrors.CodeConcurrentConflict),
		dErrors.HasCode(err, dErrors.CodeStorage):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, notFoundMsg)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConcurrentConflict, "concurrent transition detected, retry the request")
	default:
		return dErrors.Wrap(err, dErrors.CodeStorage, "storage operation failed")
	}
}
