package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"linknet/internal/cache"
	"linknet/internal/connection/models"
	connstore "linknet/internal/connection/store"
	membermodels "linknet/internal/member/models"
	memberservice "linknet/internal/member/service"
	memberstore "linknet/internal/member/store"
	"linknet/internal/netvalue"
	"linknet/internal/notify/mocks"
	"linknet/pkg/domain"
	dErrors "linknet/pkg/domain-errors"
	"linknet/pkg/platform/keylock"
)

// captureNotifier records every published event for assertion.
type captureNotifier struct {
	mu     sync.Mutex
	events []models.ChangeEvent
}

func (n *captureNotifier) Publish(_ context.Context, event models.ChangeEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *captureNotifier) all() []models.ChangeEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.ChangeEvent(nil), n.events...)
}

func (n *captureNotifier) last() models.ChangeEvent {
	events := n.all()
	return events[len(events)-1]
}

type CoordinatorSuite struct {
	suite.Suite

	ctx         context.Context
	members     *memberstore.InMemoryStore
	connections *connstore.InMemoryStore
	notifier    *captureNotifier
	coordinator *Coordinator
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorSuite))
}

func (s *CoordinatorSuite) SetupTest() {
	s.ctx = context.Background()
	s.members = memberstore.NewInMemoryStore()
	s.connections = connstore.NewInMemoryStore()
	s.notifier = &captureNotifier{}

	stores := Stores{Members: s.members, Connections: s.connections}
	s.coordinator = New(
		stores,
		NewMemberLockTx(stores),
		netvalue.NewAggregator(0),
		s.notifier,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func (s *CoordinatorSuite) addMember(name string, industries ...string) domain.MemberID {
	member := &membermodels.Member{
		ID:          domain.NewMemberID(),
		DisplayName: name,
		Industries:  industries,
	}
	s.Require().NoError(s.members.Create(s.ctx, member))
	return member.ID
}

func (s *CoordinatorSuite) mustGet(id domain.MemberID) *membermodels.Member {
	member, err := s.members.Get(s.ctx, id)
	s.Require().NoError(err)
	return member
}

func (s *CoordinatorSuite) TestProposeSelfConnection() {
	id := s.addMember("Ada")

	_, err := s.coordinator.Propose(s.ctx, id, id)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeSelfConnection))
	s.Empty(s.notifier.all())
}

func (s *CoordinatorSuite) TestProposeUnknownMember() {
	id := s.addMember("Ada")

	_, err := s.coordinator.Propose(s.ctx, id, domain.NewMemberID())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *CoordinatorSuite) TestProposeCreatesInitiatedRecord() {
	ada := s.addMember("Ada", "fintech", "ai")
	bob := s.addMember("Bob", "ai", "media")

	record, err := s.coordinator.Propose(s.ctx, ada, bob)
	s.Require().NoError(err)
	s.Equal(models.StatusInitiated, record.Status)
	s.Equal([]string{"ai"}, record.SharedIndustries)

	// Proposing leaves aggregates untouched.
	s.Equal(0, s.mustGet(ada).AcceptedConnectionCount)
	s.Equal(0.0, s.mustGet(ada).NetworkValue)

	events := s.notifier.all()
	s.Require().Len(events, 1)
	s.Equal(models.StatusInitiated, events[0].Status)
}

func (s *CoordinatorSuite) TestProposeDuplicatePair() {
	ada := s.addMember("Ada")
	bob := s.addMember("Bob")

	_, err := s.coordinator.Propose(s.ctx, ada, bob)
	s.Require().NoError(err)

	_, err = s.coordinator.Propose(s.ctx, ada, bob)
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicatePair))

	// The reverse direction is the same pair.
	_, err = s.coordinator.Propose(s.ctx, bob, ada)
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicatePair))
}

func (s *CoordinatorSuite) TestAcceptCreditsBothMembers() {
	ada := s.addMember("Ada", "fintech")
	bob := s.addMember("Bob", "fintech")

	record, err := s.coordinator.Propose(s.ctx, ada, bob)
	s.Require().NoError(err)

	accepted, err := s.coordinator.Accept(s.ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusAccepted, accepted.Status)

	for _, id := range []domain.MemberID{ada, bob} {
		member := s.mustGet(id)
		s.Equal(1, member.AcceptedConnectionCount)
		s.Equal(3.14, member.NetworkValue)
	}

	event := s.notifier.last()
	s.Equal(models.StatusAccepted, event.Status)
	s.Require().Len(event.Members, 2)
	s.Equal(1, event.Members[ada.String()].AcceptedConnectionCount)
	s.Equal(3.14, event.Members[ada.String()].NetworkValue)
	s.Equal(1, event.Members[bob.String()].AcceptedConnectionCount)
}

func (s *CoordinatorSuite) TestAcceptRecomputesSharedIndustries() {
	ada := s.addMember("Ada", "fintech")
	bob := s.addMember("Bob", "media")

	record, err := s.coordinator.Propose(s.ctx, ada, bob)
	s.Require().NoError(err)
	s.Empty(record.SharedIndustries)

	// Ada picks up media before the proposal is answered.
	adaRow := s.mustGet(ada)
	s.Require().NoError(s.members.UpdateIndustries(s.ctx, ada, []string{"fintech", "media"}, adaRow.Version))

	accepted, err := s.coordinator.Accept(s.ctx, record.ID)
	s.Require().NoError(err)
	s.Equal([]string{"media"}, accepted.SharedIndustries)
}

func (s *CoordinatorSuite) TestRejectLeavesAggregatesUntouched() {
	ada := s.addMember("Ada")
	bob := s.addMember("Bob")

	record, err := s.coordinator.Propose(s.ctx, ada, bob)
	s.Require().NoError(err)

	rejected, err := s.coordinator.Reject(s.ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, rejected.Status)
	s.Equal(0, s.mustGet(ada).AcceptedConnectionCount)
	s.Equal(0, s.mustGet(bob).AcceptedConnectionCount)

	// Rejected is terminal.
	_, err = s.coordinator.Accept(s.ctx, record.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	_, err = s.coordinator.Remove(s.ctx, record.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
}

func (s *CoordinatorSuite) TestRemoveDebitsBothMembers() {
	ada := s.addMember("Ada")
	bob := s.addMember("Bob")

	record, err := s.coordinator.Propose(s.ctx, ada, bob)
	s.Require().NoError(err)
	_, err = s.coordinator.Accept(s.ctx, record.ID)
	s.Require().NoError(err)

	removed, err := s.coordinator.Remove(s.ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRemoved, removed.Status)

	for _, id := range []domain.MemberID{ada, bob} {
		member := s.mustGet(id)
		s.Equal(0, member.AcceptedConnectionCount)
		s.Equal(0.0, member.NetworkValue)
	}

	// Removed is terminal, but the pair may connect again.
	_, err = s.coordinator.Remove(s.ctx, record.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

	_, err = s.coordinator.Propose(s.ctx, bob, ada)
	s.NoError(err)
}

func (s *CoordinatorSuite) TestAcceptTwiceFails() {
	ada := s.addMember("Ada")
	bob := s.addMember("Bob")

	record, err := s.coordinator.Propose(s.ctx, ada, bob)
	s.Require().NoError(err)
	_, err = s.coordinator.Accept(s.ctx, record.ID)
	s.Require().NoError(err)

	_, err = s.coordinator.Accept(s.ctx, record.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

	// The failed attempt must not have touched the aggregates.
	s.Equal(1, s.mustGet(ada).AcceptedConnectionCount)
	s.Equal(3.14, s.mustGet(ada).NetworkValue)
}

func (s *CoordinatorSuite) TestTransitionUnknownConnection() {
	_, err := s.coordinator.Accept(s.ctx, domain.NewConnectionID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *CoordinatorSuite) TestNoEventOnFailedTransition() {
	ctrl := gomock.NewController(s.T())
	notifier := mocks.NewMockNotifier(ctrl)

	stores := Stores{Members: s.members, Connections: s.connections}
	coordinator := New(stores, NewMemberLockTx(stores), netvalue.NewAggregator(0), notifier,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	ada := s.addMember("Ada")
	bob := s.addMember("Bob")

	notifier.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	record, err := coordinator.Propose(s.ctx, ada, bob)
	s.Require().NoError(err)
	_, err = coordinator.Reject(s.ctx, record.ID)
	s.Require().NoError(err)

	// Terminal record: the transition fails, so nothing may be published.
	_, err = coordinator.Accept(s.ctx, record.ID)
	s.Require().Error(err)
}

func (s *CoordinatorSuite) TestConcurrentAcceptsOnSharedMember() {
	shared := s.addMember("Ada")
	bob := s.addMember("Bob")
	eve := s.addMember("Eve")

	first, err := s.coordinator.Propose(s.ctx, shared, bob)
	s.Require().NoError(err)
	second, err := s.coordinator.Propose(s.ctx, eve, shared)
	s.Require().NoError(err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []domain.ConnectionID{first.ID, second.ID} {
		wg.Add(1)
		go func(i int, id domain.ConnectionID) {
			defer wg.Done()
			_, errs[i] = s.coordinator.Accept(s.ctx, id)
		}(i, id)
	}
	wg.Wait()

	s.Require().NoError(errs[0])
	s.Require().NoError(errs[1])

	member := s.mustGet(shared)
	s.Equal(2, member.AcceptedConnectionCount)
	s.Equal(6.28, member.NetworkValue)
	s.Equal(1, s.mustGet(bob).AcceptedConnectionCount)
	s.Equal(1, s.mustGet(eve).AcceptedConnectionCount)
}

func (s *CoordinatorSuite) TestConcurrentTransitionsExactTotals() {
	const peers = 16

	hub := s.addMember("Hub")
	records := make([]*models.ConnectionRecord, peers)
	for i := range records {
		peer := s.addMember(fmt.Sprintf("Peer %d", i))
		record, err := s.coordinator.Propose(s.ctx, hub, peer)
		s.Require().NoError(err)
		records[i] = record
	}

	var wg sync.WaitGroup
	errs := make([]error, peers)
	for i, record := range records {
		wg.Add(1)
		go func(i int, id domain.ConnectionID) {
			defer wg.Done()
			_, errs[i] = s.coordinator.Accept(s.ctx, id)
		}(i, record.ID)
	}
	wg.Wait()

	for i, err := range errs {
		s.Require().NoError(err, "accept %d", i)
	}

	member := s.mustGet(hub)
	s.Equal(peers, member.AcceptedConnectionCount)
	s.Equal(netvalue.Round2(float64(peers)*netvalue.DefaultValuePerConnection), member.NetworkValue)
}

// aggregateHookStore wraps the in-memory member store and runs a hook before
// each aggregate write. Embedding keeps the snapshot capability visible to
// the transaction boundary.
type aggregateHookStore struct {
	*memberstore.InMemoryStore
	mu    sync.Mutex
	calls int
	hook  func(call int) error
}

func (s *aggregateHookStore) WriteAggregate(ctx context.Context, id domain.MemberID, count int, value float64, expectedVersion int64) error {
	s.mu.Lock()
	s.calls++
	call := s.calls
	hook := s.hook
	s.mu.Unlock()

	if hook != nil {
		if err := hook(call); err != nil {
			return err
		}
	}
	return s.InMemoryStore.WriteAggregate(ctx, id, count, value, expectedVersion)
}

func (s *CoordinatorSuite) newHookedCoordinator(hooked *aggregateHookStore) *Coordinator {
	stores := Stores{Members: hooked, Connections: s.connections}
	return New(stores, NewMemberLockTx(stores), netvalue.NewAggregator(0), s.notifier,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (s *CoordinatorSuite) TestAcceptRolledBackOnConcurrentMemberEdit() {
	inner := memberstore.NewInMemoryStore()
	hooked := &aggregateHookStore{InMemoryStore: inner}
	coordinator := s.newHookedCoordinator(hooked)

	ada := &membermodels.Member{ID: domain.NewMemberID(), DisplayName: "Ada"}
	bob := &membermodels.Member{ID: domain.NewMemberID(), DisplayName: "Bob"}
	s.Require().NoError(inner.Create(s.ctx, ada))
	s.Require().NoError(inner.Create(s.ctx, bob))

	record, err := coordinator.Propose(s.ctx, ada.ID, bob.ID)
	s.Require().NoError(err)

	// A writer that skips the member locks edits the target between the two
	// aggregate writes, bumping its version out from under the transition.
	hooked.hook = func(call int) error {
		if call != 2 {
			return nil
		}
		current, err := inner.Get(s.ctx, bob.ID)
		s.Require().NoError(err)
		s.Require().NoError(inner.UpdateIndustries(s.ctx, bob.ID, []string{"media"}, current.Version))
		return nil
	}

	_, err = coordinator.Accept(s.ctx, record.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConcurrentConflict))

	// No partial state: neither aggregate moved and the record is retryable.
	for _, id := range []domain.MemberID{ada.ID, bob.ID} {
		member, err := inner.Get(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(0, member.AcceptedConnectionCount)
		s.Equal(0.0, member.NetworkValue)
	}
	current, err := s.connections.GetByID(s.ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusInitiated, current.Status)

	// The sanctioned retry credits each member exactly once.
	accepted, err := coordinator.Accept(s.ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusAccepted, accepted.Status)
	for _, id := range []domain.MemberID{ada.ID, bob.ID} {
		member, err := inner.Get(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(1, member.AcceptedConnectionCount)
		s.Equal(3.14, member.NetworkValue)
	}
}

func (s *CoordinatorSuite) TestAcceptStoreFailureLeavesNoPartialState() {
	inner := memberstore.NewInMemoryStore()
	hooked := &aggregateHookStore{InMemoryStore: inner}
	coordinator := s.newHookedCoordinator(hooked)

	ada := &membermodels.Member{ID: domain.NewMemberID(), DisplayName: "Ada"}
	bob := &membermodels.Member{ID: domain.NewMemberID(), DisplayName: "Bob"}
	s.Require().NoError(inner.Create(s.ctx, ada))
	s.Require().NoError(inner.Create(s.ctx, bob))

	record, err := coordinator.Propose(s.ctx, ada.ID, bob.ID)
	s.Require().NoError(err)

	// The first aggregate write lands, the second fails.
	boom := errors.New("write failed")
	hooked.hook = func(call int) error {
		if call == 2 {
			return boom
		}
		return nil
	}

	_, err = coordinator.Accept(s.ctx, record.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeStorage))

	member, err := inner.Get(s.ctx, ada.ID)
	s.Require().NoError(err)
	s.Equal(0, member.AcceptedConnectionCount)
	s.Equal(0.0, member.NetworkValue)

	hooked.hook = nil
	accepted, err := coordinator.Accept(s.ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusAccepted, accepted.Status)
	s.Equal(1, s.mustGetFrom(inner, ada.ID).AcceptedConnectionCount)
	s.Equal(1, s.mustGetFrom(inner, bob.ID).AcceptedConnectionCount)
}

func (s *CoordinatorSuite) mustGetFrom(store *memberstore.InMemoryStore, id domain.MemberID) *membermodels.Member {
	member, err := store.Get(s.ctx, id)
	s.Require().NoError(err)
	return member
}

func (s *CoordinatorSuite) TestIndustryEditsSerializeWithTransitions() {
	const peers = 8

	stores := Stores{Members: s.members, Connections: s.connections}
	locks := keylock.NewRegistry[domain.MemberID]()
	coordinator := New(stores, NewMemberLockTxWithRegistry(stores, locks), netvalue.NewAggregator(0), s.notifier,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	profiles := memberservice.NewService(s.members, memberservice.WithMemberLocks(locks))

	hub := s.addMember("Hub", "fintech")
	records := make([]*models.ConnectionRecord, peers)
	for i := range records {
		peer := s.addMember(fmt.Sprintf("Peer %d", i))
		record, err := coordinator.Propose(s.ctx, hub, peer)
		s.Require().NoError(err)
		records[i] = record
	}

	var wg sync.WaitGroup
	acceptErrs := make([]error, peers)
	editErrs := make([]error, peers)
	for i := range peers {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, acceptErrs[i] = coordinator.Accept(s.ctx, records[i].ID)
		}(i)
		go func(i int) {
			defer wg.Done()
			_, editErrs[i] = profiles.UpdateIndustries(s.ctx, hub, []string{"fintech", fmt.Sprintf("tag%d", i)})
		}(i)
	}
	wg.Wait()

	// Edits hold the same per-member lock as transitions, so neither side
	// ever observes the other mid-write.
	for i := range peers {
		s.Require().NoError(acceptErrs[i], "accept %d", i)
		s.Require().NoError(editErrs[i], "edit %d", i)
	}

	member := s.mustGet(hub)
	s.Equal(peers, member.AcceptedConnectionCount)
	s.Equal(netvalue.Round2(float64(peers)*netvalue.DefaultValuePerConnection), member.NetworkValue)
}

// rereadTx runs a profile read after the transition body finishes but before
// the atomic unit completes, mimicking a reader that lands between the
// in-unit cache invalidation and a database commit.
type rereadTx struct {
	inner  Tx
	reread func(ctx context.Context)
}

func (t *rereadTx) Run(ctx context.Context, a, b domain.MemberID, fn func(context.Context, Stores) error) error {
	return t.inner.Run(ctx, a, b, func(ctx context.Context, st Stores) error {
		if err := fn(ctx, st); err != nil {
			return err
		}
		if t.reread != nil {
			t.reread(ctx)
		}
		return nil
	})
}

func (s *CoordinatorSuite) TestProfileReadDuringTransitionDoesNotPinStaleAggregates() {
	mr := miniredis.RunT(s.T())
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	accel := cache.New(client)

	stores := Stores{Members: s.members, Connections: s.connections}
	tx := &rereadTx{inner: NewMemberLockTx(stores)}
	coordinator := New(stores, tx, netvalue.NewAggregator(0), s.notifier,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithCache(accel, time.Minute))

	ada := s.addMember("Ada")
	bob := s.addMember("Bob")
	record, err := coordinator.Propose(s.ctx, ada, bob)
	s.Require().NoError(err)

	// The mid-unit reader recomputes from not-yet-visible state and re-caches
	// a zero-aggregate profile.
	tx.reread = func(ctx context.Context) {
		_, err := cache.GetOrCompute(ctx, accel, cache.MemberProfileKey(ada.String()), time.Minute,
			func(context.Context) (MemberProfile, error) {
				return MemberProfile{ID: ada.String(), DisplayName: "Ada"}, nil
			})
		s.Require().NoError(err)
	}

	_, err = coordinator.Accept(s.ctx, record.ID)
	s.Require().NoError(err)

	// The post-unit invalidation dropped the re-cached entry, so the next
	// read reflects the committed aggregates.
	profile, err := coordinator.MemberProfile(s.ctx, ada)
	s.Require().NoError(err)
	s.Equal(1, profile.AcceptedConnectionCount)
	s.Equal(3.14, profile.NetworkValue)
}

func (s *CoordinatorSuite) TestMemberProfile() {
	ada := s.addMember("Ada", "fintech")
	bob := s.addMember("Bob", "fintech")

	record, err := s.coordinator.Propose(s.ctx, ada, bob)
	s.Require().NoError(err)
	_, err = s.coordinator.Accept(s.ctx, record.ID)
	s.Require().NoError(err)

	profile, err := s.coordinator.MemberProfile(s.ctx, ada)
	s.Require().NoError(err)
	s.Equal(ada.String(), profile.ID)
	s.Equal("Ada", profile.DisplayName)
	s.Equal(1, profile.AcceptedConnectionCount)
	s.Equal(3.14, profile.NetworkValue)
	s.Require().Len(profile.Connections, 1)
	s.Equal(bob.String(), profile.Connections[0].PeerID)
	s.Equal(models.StatusAccepted, profile.Connections[0].Status)
	s.Equal([]string{"fintech"}, profile.Connections[0].SharedIndustries)

	_, err = s.coordinator.MemberProfile(s.ctx, domain.NewMemberID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
