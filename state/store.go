package state

import (
	"math/big"
	"sort"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"github.com/meantime-io/receivables-go/common"
)

// Store is the in-memory projection of active receivables.
//
// It is the single source of truth read by the HTTP layer and written only
// by the synchronizers, the settlement engine and backfill. The known-hash
// set outlives receivable removal so a settled transfer can never be minted
// again; when a StateDB is attached, known hashes also survive restarts.
type Store struct {
	mu sync.RWMutex

	receivables map[string]*Receivable // key: Id.String()
	known       map[string]struct{}    // key: common.NormalizeHash
	subscribers map[uuid.UUID]func(Event)

	statedb *StateDB // optional
}

// NewStore builds a store. statedb may be nil (tests, dry runs); when
// present, the persisted known-hash set is loaded into memory.
func NewStore(statedb *StateDB) (*Store, error) {
	s := &Store{
		receivables: make(map[string]*Receivable),
		known:       make(map[string]struct{}),
		subscribers: make(map[uuid.UUID]func(Event)),
		statedb:     statedb,
	}

	if statedb != nil {
		hashes, err := statedb.GetKnownHashes()
		if err != nil {
			return nil, err
		}
		for _, h := range hashes {
			s.known[common.NormalizeHash(h)] = struct{}{}
		}
	}

	return s, nil
}

func (s *Store) Get(id *big.Int) *Receivable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.receivables[id.String()].Clone()
}

// Snapshot returns copies of all active receivables, ordered by id.
func (s *Store) Snapshot() []*Receivable {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Receivable, 0, len(s.receivables))
	for _, r := range s.receivables {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Id.Cmp(out[j].Id) < 0
	})
	return out
}

// Upsert inserts or replaces by id and marks the message hash as known.
// Replays from backfill and duplicate discovery from two watchers converge
// to the same state here.
func (s *Store) Upsert(r *Receivable) {
	s.mu.Lock()
	s.receivables[r.Id.String()] = r.Clone()
	s.markKnownLocked(r.MessageHash)
	s.mu.Unlock()
}

// ApplyPatch applies a partial update. A missing id is a silent no-op:
// a settle event can legitimately race ahead of a listing update for an
// already-removed receivable.
func (s *Store) ApplyPatch(id *big.Int, p Patch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.receivables[id.String()]
	if !ok {
		return
	}
	if p.SetListing {
		r.Listing = p.Listing.Clone()
	}
	if p.Owner != nil {
		r.CurrentOwner = *p.Owner
	}
}

// Remove drops the receivable from the active set. The hash stays known.
func (s *Store) Remove(id *big.Int) {
	s.mu.Lock()
	delete(s.receivables, id.String())
	s.mu.Unlock()
}

func (s *Store) MarkKnown(hash ethcommon.Hash) {
	s.mu.Lock()
	s.markKnownLocked(hash)
	s.mu.Unlock()
}

// ForgetKnown releases a claimed hash, in memory and on disk, so a later
// delivery of the same burn log can retry the mint. Only the failed-mint
// path uses this; if the first mint actually landed, the escrow's own
// uniqueness check rejects the second one.
func (s *Store) ForgetKnown(hash ethcommon.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.known, common.NormalizeHash(hash))

	if s.statedb != nil {
		if err := s.statedb.RemoveKnownHash(hash); err != nil {
			logger.WithFields(logger.Fields{
				"hash": hash.Hex(),
				"err":  err,
			}).Error("failed to release known hash")
		}
	}
}

func (s *Store) IsKnown(hash ethcommon.Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.known[common.NormalizeHash(hash)]
	return ok
}

func (s *Store) markKnownLocked(hash ethcommon.Hash) {
	key := common.NormalizeHash(hash)
	if _, ok := s.known[key]; ok {
		return
	}
	s.known[key] = struct{}{}

	if s.statedb != nil {
		if err := s.statedb.AddKnownHash(hash); err != nil {
			// in-memory set stays authoritative for this process; losing
			// the row only costs an extra mint attempt after a restart,
			// which the chain-side uniqueness check rejects
			logger.WithFields(logger.Fields{
				"hash": hash.Hex(),
				"err":  err,
			}).Error("failed to persist known hash")
		}
	}
}

// Subscribe registers a listener and returns a handle for Unsubscribe.
func (s *Store) Subscribe(listener func(Event)) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle := uuid.New()
	s.subscribers[handle] = listener
	return handle
}

func (s *Store) Unsubscribe(handle uuid.UUID) {
	s.mu.Lock()
	delete(s.subscribers, handle)
	s.mu.Unlock()
}

// Emit fans the event out to all subscribers. A panicking listener is
// logged and skipped; it never reaches the caller and never stops the
// remaining listeners.
func (s *Store) Emit(ev Event) {
	s.mu.RLock()
	listeners := make([]func(Event), 0, len(s.subscribers))
	for _, l := range s.subscribers {
		listeners = append(listeners, l)
	}
	s.mu.RUnlock()

	for _, l := range listeners {
		s.safeNotify(l, ev)
	}
}

func (s *Store) safeNotify(l func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logger.Fields{
				"kind":  ev.Kind,
				"panic": r,
			}).Error("subscriber panicked during emit")
		}
	}()
	l(ev)
}
