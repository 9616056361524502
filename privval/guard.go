package privval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tendermint/kms/libs/log"
	"github.com/tendermint/kms/types"
)

// Guard is the authority on whether a slot may be signed for a chain.
type Guard struct {
	store  Store
	policy TieBreak
	logger log.Logger

	mtx    sync.Mutex
	chains map[string]*chainState
}

// chainState is only read or written while sem is held.
type chainState struct {
	sem *semaphore.Weighted

	loaded bool

	// hwm is what the guard enforces. It may be ahead of stored after a
	// failed commit.
	hwm    types.Slot
	hasHWM bool

	// stored is the last value known to be in the store.
	stored    types.Slot
	hasStored bool
}

// NewGuard returns a guard backed by store. Chains are loaded lazily unless
// Load is called first.
func NewGuard(store Store, policy TieBreak, logger log.Logger) *Guard {
	return &Guard{
		store:  store,
		policy: policy,
		logger: logger,
		chains: make(map[string]*chainState),
	}
}

// Policy returns the tie-break policy in force.
func (g *Guard) Policy() TieBreak { return g.policy }

func (g *Guard) chain(chainID string) *chainState {
	g.mtx.Lock()
	defer g.mtx.Unlock()

	cs, ok := g.chains[chainID]
	if !ok {
		cs = &chainState{sem: semaphore.NewWeighted(1)}
		g.chains[chainID] = cs
	}
	return cs
}

// Load reads the HWM of each chain from the store, replacing any in-memory
// state. A malformed record is returned as a *PersistenceError and must
// stop the process.
func (g *Guard) Load(ctx context.Context, chainIDs ...string) error {
	for _, chainID := range chainIDs {
		cs := g.chain(chainID)
		if err := cs.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		err := g.load(chainID, cs)
		cs.sem.Release(1)
		if err != nil {
			return err
		}
	}
	return nil
}

func (g *Guard) load(chainID string, cs *chainState) error {
	hwm, found, err := g.store.Get(chainID)
	if err != nil {
		var perr *PersistenceError
		if !errors.As(err, &perr) {
			err = &PersistenceError{ChainID: chainID, Op: "load", Err: err}
		}
		return err
	}
	cs.loaded = true
	cs.hwm, cs.hasHWM = hwm, found
	cs.stored, cs.hasStored = hwm, found

	if found {
		g.logger.Debug("loaded high-water-mark", "chain_id", chainID, "hwm", hwm)
	} else {
		g.logger.Debug("no high-water-mark stored", "chain_id", chainID)
	}
	return nil
}

// HWM returns the high-water-mark currently enforced for chainID.
func (g *Guard) HWM(ctx context.Context, chainID string) (types.Slot, bool, error) {
	cs := g.chain(chainID)
	if err := cs.sem.Acquire(ctx, 1); err != nil {
		return types.Slot{}, false, err
	}
	defer cs.sem.Release(1)

	if !cs.loaded {
		if err := g.load(chainID, cs); err != nil {
			return types.Slot{}, false, err
		}
	}
	return cs.hwm, cs.hasHWM, nil
}

// Reserve waits for the chain's exclusive scope and checks slot against
// the HWM. If the slot is not strictly greater, the scope is released and
// a *DoubleSignError is returned. Otherwise the returned Reservation holds
// the scope until Commit or Release.
func (g *Guard) Reserve(ctx context.Context, chainID string, slot types.Slot) (*Reservation, error) {
	cs := g.chain(chainID)
	if err := cs.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	if !cs.loaded {
		if err := g.load(chainID, cs); err != nil {
			cs.sem.Release(1)
			return nil, err
		}
	}

	if cs.hasHWM && !g.policy.Allows(cs.hwm, slot) {
		hwm := cs.hwm
		cs.sem.Release(1)
		return nil, &DoubleSignError{ChainID: chainID, Slot: slot, HWM: hwm}
	}

	return &Reservation{guard: g, cs: cs, chainID: chainID, slot: slot}, nil
}

// Reservation is an approved slot that has not been committed yet. It must
// be finished with exactly one call to Commit or Release.
type Reservation struct {
	guard   *Guard
	cs      *chainState
	chainID string
	slot    types.Slot

	done bool
}

// Slot returns the reserved slot.
func (r *Reservation) Slot() types.Slot { return r.slot }

// Commit durably records the slot as the new HWM. The write runs to
// completion even when Commit stops waiting for it after timeout, and the
// chain stays locked until then. On any failure the in-memory HWM is still
// raised to the slot and a *PersistenceError is returned.
func (r *Reservation) Commit(timeout time.Duration) error {
	if r.done {
		return errors.New("reservation already finished")
	}
	r.done = true

	var old *types.Slot
	if r.cs.hasStored {
		s := r.cs.stored
		old = &s
	}

	result := make(chan error, 1)
	go func() {
		err := r.guard.store.CompareAndSwap(r.chainID, old, r.slot)
		r.finish(err)
		r.cs.sem.Release(1)
		result <- err
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-result:
		if err != nil {
			var perr *PersistenceError
			if errors.As(err, &perr) {
				return err
			}
			return &PersistenceError{ChainID: r.chainID, Op: "commit", Err: err}
		}
		return nil
	case <-timer.C:
		return &PersistenceError{
			ChainID: r.chainID,
			Op:      "commit",
			Err:     fmt.Errorf("no result after %v: %w", timeout, context.DeadlineExceeded),
		}
	}
}

// finish runs with the scope held.
func (r *Reservation) finish(err error) {
	cs, logger := r.cs, r.guard.logger

	if err == nil {
		cs.hwm, cs.hasHWM = r.slot, true
		cs.stored, cs.hasStored = r.slot, true
		return
	}

	logger.Error("failed to persist high-water-mark", "chain_id", r.chainID, "slot", r.slot, "err", err)

	// The store may have been written before the failure was reported, so
	// refresh what we believe it holds.
	if stored, found, gerr := r.guard.store.Get(r.chainID); gerr == nil {
		cs.stored, cs.hasStored = stored, found
	}

	cs.hwm, cs.hasHWM = r.slot, true
	if cs.hasStored && r.guard.policy.Compare(cs.stored, cs.hwm) > 0 {
		cs.hwm = cs.stored
	}
}

// Release abandons the reservation without touching the HWM. It is a no-op
// after Commit or a previous Release.
func (r *Reservation) Release() {
	if r.done {
		return
	}
	r.done = true
	r.cs.sem.Release(1)
}
