package service

import (
	"context"
	"time"

	connstore "linknet/internal/connection/store"
	memberstore "linknet/internal/member/store"
	"linknet/pkg/domain"
	dErrors "linknet/pkg/domain-errors"
	"linknet/pkg/platform/keylock"
)

// Stores bundles the two persistence ports a transition writes to.
type Stores struct {
	Members     memberstore.Store
	Connections connstore.Store
}

// Tx provides the atomic unit for a transition touching the two given
// members. Implementations guarantee that reads inside fn cannot go stale
// relative to a concurrently committing transition on an overlapping member:
// either a database transaction or exclusive per-member locks. When fn fails,
// no write it performed may remain observable. fn must use the context it is
// handed; it carries the transaction and the deadline.
type Tx interface {
	Run(ctx context.Context, a, b domain.MemberID, fn func(ctx context.Context, s Stores) error) error
}

// pairSnapshotter is implemented by the in-memory stores so the lock-based
// unit can undo partial writes when fn fails.
type pairSnapshotter interface {
	SnapshotPair(a, b domain.MemberID) (restore func())
}

// defaultTxTimeout caps a transition when the caller supplies no deadline.
const defaultTxTimeout = 5 * time.Second

// memberLockTx serializes transitions with per-member mutexes. Both members'
// locks are acquired in ID order (smaller first) so two transitions sharing a
// pair in opposite directions never deadlock. Transitions sharing no member
// proceed fully in parallel. The stores are snapshotted before fn runs and
// restored when it fails, so a partially applied transition is never
// observable after the unit returns.
type memberLockTx struct {
	locks   *keylock.Registry[domain.MemberID]
	stores  Stores
	timeout time.Duration
}

// NewMemberLockTx builds the in-memory transaction boundary over the given
// stores with its own lock registry.
func NewMemberLockTx(stores Stores) Tx {
	return NewMemberLockTxWithRegistry(stores, keylock.NewRegistry[domain.MemberID]())
}

// NewMemberLockTxWithRegistry builds the boundary over a shared lock registry.
// Every other writer of member state must take the same locks, or its writes
// can race a transition's read-compute-write cycle.
func NewMemberLockTxWithRegistry(stores Stores, locks *keylock.Registry[domain.MemberID]) Tx {
	return &memberLockTx{
		locks:  locks,
		stores: stores,
	}
}

func (t *memberLockTx) Run(ctx context.Context, a, b domain.MemberID, fn func(ctx context.Context, s Stores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transition aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if b.Less(a) {
		a, b = b, a
	}
	first := t.locks.Get(a)
	first.Lock()
	defer first.Unlock()
	if a != b {
		second := t.locks.Get(b)
		second.Lock()
		defer second.Unlock()
	}

	// Re-check after acquiring: a caller past its deadline must not write.
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transition aborted: context cancelled")
	}

	var restores []func()
	for _, store := range []any{t.stores.Members, t.stores.Connections} {
		if s, ok := store.(pairSnapshotter); ok {
			restores = append(restores, s.SnapshotPair(a, b))
		}
	}

	if err := fn(ctx, t.stores); err != nil {
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
		return err
	}
	return nil
}
