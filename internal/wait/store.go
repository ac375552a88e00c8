// Package wait wraps the record engine with future-returning variants
// of its read operations, so a caller can either get an immediate
// answer or register interest in a record/version pointer that doesn't
// exist yet and be woken the moment a Put satisfies it.
//
// The pending-wait registry is reference-counted rather than built on
// Go's GC-driven weak references: a slot is created on first waiter
// demand, shared by every subsequent waiter on the same key, and
// removed the instant it fires or its last waiter cancels. That's
// deterministic and directly testable, unlike relying on garbage
// collection timing — see DESIGN.md for the tradeoff.
package wait

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/smurn/renat/internal/engine"
)

// Store wraps an *engine.Engine and adds GetFuture, OldestVersionFuture
// and NewestVersionFuture. All engine access — including the plain
// pass-through methods — goes through a single mutex, the same way the
// reference cache guards its map and LRU list with one sync.RWMutex:
// that gives every public method here the atomicity of a
// single-threaded event loop, without actually requiring one.
type Store struct {
	mu  sync.Mutex
	eng *engine.Engine
	log *zap.Logger

	versionWaiters map[verKey]*versionSlot
	ptrWaiters     map[string]*ptrSlot

	waitersCreated   uint64
	waitersFired     uint64
	waitersCancelled uint64
	waitersTimedOut  uint64
}

// Stats is a point-in-time snapshot of the wait layer's own activity
// counters, complementing engine.Stats the way the distilled
// observability requirements ask for: how many waiters were ever
// registered, and how each one eventually left the registry.
type Stats struct {
	WaitersCreated   uint64
	WaitersFired     uint64
	WaitersCancelled uint64
	WaitersTimedOut  uint64
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithLogger attaches a zap logger that records put/eviction/capacity
// events as they cross the engine/store boundary. Defaults to a no-op
// logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) { s.log = log }
}

type verKey struct {
	id      string
	version int64
}

type versionSlot struct {
	waiters map[*Future[[]byte]]struct{}
}

type ptrSlot struct {
	waiters map[*Future[int64]]struct{}
}

// New builds a Store around eng.
func New(eng *engine.Engine, opts ...Option) *Store {
	s := &Store{
		eng:            eng,
		log:            zap.NewNop(),
		versionWaiters: make(map[verKey]*versionSlot),
		ptrWaiters:     make(map[string]*ptrSlot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns the wrapped engine, e.g. for reading Stats().
func (s *Store) Engine() *engine.Engine { return s.eng }

// Stats returns a snapshot of the wait layer's waiter counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		WaitersCreated:   s.waitersCreated,
		WaitersFired:     s.waitersFired,
		WaitersCancelled: s.waitersCancelled,
		WaitersTimedOut:  s.waitersTimedOut,
	}
}

// logEngineEvents compares an engine.Stats snapshot taken before an
// engine call against the engine's current counters and logs any
// puts/evictions/capacity-rejections the call produced. Called with
// s.mu held, same as the engine call it straddles.
func (s *Store) logEngineEvents(before engine.Stats) {
	after := s.eng.Stats()
	if d := after.Puts - before.Puts; d > 0 {
		s.log.Info("put", zap.Uint64("count", d))
	}
	if d := after.Evictions - before.Evictions; d > 0 {
		s.log.Info("evicted", zap.Uint64("count", d))
	}
	if d := after.CapacityErrors - before.CapacityErrors; d > 0 {
		s.log.Warn("capacity_rejected", zap.Uint64("count", d))
	}
}

// Get is the synchronous pass-through to the engine.
func (s *Store) Get(id string, version int64, now time.Time) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.eng.Stats()
	data, err := s.eng.Get(id, version, now)
	s.logEngineEvents(before)
	return data, err
}

// OldestVersion is the synchronous pass-through to the engine.
func (s *Store) OldestVersion(id string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.eng.Stats()
	v, err := s.eng.OldestVersion(id, now)
	s.logEngineEvents(before)
	return v, err
}

// NewestVersion is the synchronous pass-through to the engine.
func (s *Store) NewestVersion(id string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.eng.Stats()
	v, err := s.eng.NewestVersion(id, now)
	s.logEngineEvents(before)
	return v, err
}

// Touch is the synchronous pass-through to the engine.
func (s *Store) Touch(id string, version int64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.eng.Stats()
	s.eng.Touch(id, version, now)
	s.logEngineEvents(before)
}

// GetFuture resolves immediately if (id, version) already exists.
// Otherwise it touches version-1 (protecting the predecessor from
// eviction while the caller waits — a no-op if version <= 1) and
// returns a Future that fires the moment a matching Put happens.
// record_version must be positive; version <= 0 is ErrInvalid.
func (s *Store) GetFuture(id string, version int64, now time.Time) (*Future[[]byte], error) {
	if version <= 0 {
		return nil, fmt.Errorf("%w: record_version must be positive, got %d", engine.ErrInvalid, version)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.eng.Stats()
	data, err := s.eng.Get(id, version, now)
	if err == nil {
		s.logEngineEvents(before)
		return newCompletedFuture(data), nil
	}
	if !errors.Is(err, engine.ErrNotFound) {
		s.logEngineEvents(before)
		return nil, err
	}

	if version-1 > 0 {
		s.eng.Touch(id, version-1, now)
	}
	s.logEngineEvents(before)

	key := verKey{id, version}
	slot, ok := s.versionWaiters[key]
	if !ok {
		slot = &versionSlot{waiters: make(map[*Future[[]byte]]struct{})}
		s.versionWaiters[key] = slot
	}

	fut := newFuture[[]byte](nil)
	fut.onCancel = func(err error) { s.releaseVersionWaiter(key, fut, err) }
	slot.waiters[fut] = struct{}{}
	s.waitersCreated++
	return fut, nil
}

// OldestVersionFuture resolves immediately if id already has a version
// chain, otherwise registers (or reuses) id's shared pointer slot.
func (s *Store) OldestVersionFuture(id string, now time.Time) (*Future[int64], error) {
	return s.pointerFuture(id, now, s.eng.OldestVersion)
}

// NewestVersionFuture resolves immediately if id already has a version
// chain, otherwise registers (or reuses) id's shared pointer slot. Note
// that OLDEST and NEWEST waiters on the same id share one slot: the
// next Put on that id wakes both, even though only one pointer
// actually advances. That is deliberate, not an oversight.
func (s *Store) NewestVersionFuture(id string, now time.Time) (*Future[int64], error) {
	return s.pointerFuture(id, now, s.eng.NewestVersion)
}

func (s *Store) pointerFuture(id string, now time.Time, fn func(string, time.Time) (int64, error)) (*Future[int64], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.eng.Stats()
	v, err := fn(id, now)
	s.logEngineEvents(before)
	if err == nil {
		return newCompletedFuture(v), nil
	}
	if !errors.Is(err, engine.ErrNotFound) {
		return nil, err
	}

	slot, ok := s.ptrWaiters[id]
	if !ok {
		slot = &ptrSlot{waiters: make(map[*Future[int64]]struct{})}
		s.ptrWaiters[id] = slot
	}

	fut := newFuture[int64](nil)
	fut.onCancel = func(err error) { s.releasePtrWaiter(id, fut, err) }
	slot.waiters[fut] = struct{}{}
	s.waitersCreated++
	return fut, nil
}

// Put delegates to the engine and then fires every waiter the new
// version satisfies: the (id, version) slot if one exists, and the
// shared oldest/newest slot for id if one exists. Both fire with
// exactly the data/version this call produced.
func (s *Store) Put(id, token string, data []byte, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.eng.Stats()
	version, err := s.eng.Put(id, token, data, now)
	s.logEngineEvents(before)
	if err != nil {
		return 0, err
	}

	key := verKey{id, version}
	if slot, ok := s.versionWaiters[key]; ok {
		for fut := range slot.waiters {
			fut.complete(data, nil)
			s.waitersFired++
		}
		delete(s.versionWaiters, key)
	}

	if slot, ok := s.ptrWaiters[id]; ok {
		for fut := range slot.waiters {
			fut.complete(version, nil)
			s.waitersFired++
		}
		delete(s.ptrWaiters, id)
	}

	return version, nil
}

// countDetach tallies a waiter that left the registry without firing,
// distinguishing an explicit Cancel (ErrCancelled) from a context that
// expired first (any other error, typically context.DeadlineExceeded).
func (s *Store) countDetach(err error) {
	if errors.Is(err, ErrCancelled) {
		s.waitersCancelled++
	} else {
		s.waitersTimedOut++
	}
}

func (s *Store) releaseVersionWaiter(key verKey, fut *Future[[]byte], err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.versionWaiters[key]
	if !ok {
		return
	}
	delete(slot.waiters, fut)
	if len(slot.waiters) == 0 {
		delete(s.versionWaiters, key)
	}
	s.countDetach(err)
}

func (s *Store) releasePtrWaiter(id string, fut *Future[int64], err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.ptrWaiters[id]
	if !ok {
		return
	}
	delete(slot.waiters, fut)
	if len(slot.waiters) == 0 {
		delete(s.ptrWaiters, id)
	}
	s.countDetach(err)
}

// PendingWaiters reports how many distinct keys currently have at least
// one registered waiter — version waits and pointer waits counted
// separately. Exposed for tests and for the /metrics endpoint.
func (s *Store) PendingWaiters() (versionKeys, pointerKeys int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.versionWaiters), len(s.ptrWaiters)
}
