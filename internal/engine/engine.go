// Package engine implements the synchronous, in-memory versioned
// record store: the hard part of the system. It owns the record
// table, each id's version chain, the idempotency map, and the global
// eviction list, and is a pure function of the now timestamp every
// public method takes — there is no background goroutine, and
// eviction only ever happens at the start of a call, driven by that
// call's own now.
package engine

import (
	"fmt"
	"time"

	"github.com/smurn/renat/internal/list"
)

// Engine is the record engine. It is not safe for concurrent use by
// itself — callers that need concurrent access should serialize
// through the wait package's Store, which wraps an Engine with a
// mutex, the way the reference cache guards its own map and LRU list
// with a sync.RWMutex.
type Engine struct {
	cfg Config

	records map[recordKey]*Record
	idepo   map[idepoKey]int64
	chains  map[string]*list.List[*Record]
	evictList *list.List[*Record]

	stats Stats
}

// New builds an Engine from the given options (see Config).
func New(opts ...Option) *Engine {
	return &Engine{
		cfg:       NewConfig(opts...),
		records:   make(map[recordKey]*Record),
		idepo:     make(map[idepoKey]int64),
		chains:    make(map[string]*list.List[*Record]),
		evictList: list.New(evictLinkOf),
	}
}

// Config returns the engine's configured limits.
func (e *Engine) Config() Config { return e.cfg }

// Stats returns a snapshot of the engine's activity counters.
func (e *Engine) Stats() Stats { return e.stats }

// Get returns the data stored for (id, version), touching the record
// on a hit. Returns ErrNotFound if no such record exists.
func (e *Engine) Get(id string, version int64, now time.Time) ([]byte, error) {
	e.evict(now)

	r, ok := e.records[recordKey{id, version}]
	if !ok {
		e.stats.Misses++
		return nil, ErrNotFound
	}
	e.touch(r, now)
	e.stats.Hits++
	return r.Data, nil
}

// OldestVersion returns the smallest version currently stored for id,
// touching that record. Returns ErrNotFound if id has no records.
func (e *Engine) OldestVersion(id string, now time.Time) (int64, error) {
	e.evict(now)

	chain, ok := e.chains[id]
	if !ok {
		return 0, ErrNotFound
	}
	r, err := chain.Leftmost()
	if err != nil {
		// The chain map never holds an empty list (see remove); an
		// empty chain here would be an engine bug, not a caller error.
		return 0, fmt.Errorf("engine: id %q has an empty version chain: %w", id, err)
	}
	e.touch(r, now)
	return r.Version, nil
}

// NewestVersion returns the largest version currently stored for id,
// touching that record. Returns ErrNotFound if id has no records.
func (e *Engine) NewestVersion(id string, now time.Time) (int64, error) {
	return e.newestVersion(id, now, true)
}

// newestVersion is NewestVersion with an internal touch switch, used by
// Put so that computing the next version number doesn't reset the
// predecessor's eviction timer.
func (e *Engine) newestVersion(id string, now time.Time, touch bool) (int64, error) {
	e.evict(now)

	chain, ok := e.chains[id]
	if !ok {
		return 0, ErrNotFound
	}
	r, err := chain.Rightmost()
	if err != nil {
		return 0, fmt.Errorf("engine: id %q has an empty version chain: %w", id, err)
	}
	if touch {
		e.touch(r, now)
	}
	return r.Version, nil
}

// Put adds a new version to id, or returns the existing version if
// (id, token) was already used by an earlier put — idempotent replay
// never allocates a new record, never touches the existing one, and
// never advances the newest version.
func (e *Engine) Put(id, token string, data []byte, now time.Time) (int64, error) {
	e.evict(now)

	if id == "" {
		return 0, fmt.Errorf("%w: record_id must not be empty", ErrInvalid)
	}
	if len(id) >= e.cfg.MaxIDSize {
		return 0, fmt.Errorf("%w: record_id too large (%d >= %d)", ErrInvalid, len(id), e.cfg.MaxIDSize)
	}
	if token == "" {
		return 0, fmt.Errorf("%w: idepo_token must not be empty", ErrInvalid)
	}
	if len(token) >= e.cfg.MaxIDSize {
		return 0, fmt.Errorf("%w: idepo_token too large (%d >= %d)", ErrInvalid, len(token), e.cfg.MaxIDSize)
	}
	if data == nil {
		return 0, fmt.Errorf("%w: data must not be nil", ErrInvalid)
	}
	if len(data) > e.cfg.MaxSize {
		return 0, fmt.Errorf("%w: data too large (%d > %d)", ErrInvalid, len(data), e.cfg.MaxSize)
	}

	ik := idepoKey{id, token}
	if existing, ok := e.idepo[ik]; ok {
		e.stats.IdempotentPuts++
		return existing, nil
	}

	if len(e.records) >= e.cfg.MaxRecords {
		e.stats.CapacityErrors++
		return 0, fmt.Errorf("%w: %d records stored", ErrCapacity, e.cfg.MaxRecords)
	}

	newest, err := e.newestVersion(id, now, false)
	version := int64(1)
	if err == nil {
		version = newest + 1
	}

	r := &Record{
		ID:        id,
		Version:   version,
		Token:     token,
		LastTouch: now,
		Data:      data,
	}

	rk := recordKey{id, version}
	e.records[rk] = r
	e.idepo[ik] = version
	if err := e.evictList.AppendRight(r); err != nil {
		panic(fmt.Errorf("engine: new record already in eviction list: %w", err))
	}

	chain, ok := e.chains[id]
	if !ok {
		chain = list.New(versionLinkOf)
		e.chains[id] = chain
	}
	if err := chain.AppendRight(r); err != nil {
		panic(fmt.Errorf("engine: new record already in version chain: %w", err))
	}

	e.stats.Puts++
	return version, nil
}

// Touch resets the record's eviction timer and moves it to the right
// end of the eviction list. A no-op if the record does not exist.
func (e *Engine) Touch(id string, version int64, now time.Time) {
	e.evict(now)

	r, ok := e.records[recordKey{id, version}]
	if !ok {
		return
	}
	e.touch(r, now)
}

func (e *Engine) touch(r *Record, now time.Time) {
	r.LastTouch = now
	if err := e.evictList.Remove(r); err != nil {
		panic(fmt.Errorf("engine: touched record missing from eviction list: %w", err))
	}
	if err := e.evictList.AppendRight(r); err != nil {
		panic(fmt.Errorf("engine: re-inserting touched record: %w", err))
	}
}

// evict walks the eviction list from its oldest (left) end, removing
// every record whose last touch predates now-EvictionTime, and stops at
// the first record that is still within its idle window — the list is
// kept sorted by last_touch, so nothing past that point can be
// expired either.
func (e *Engine) evict(now time.Time) {
	cutoff := now.Add(-e.cfg.EvictionTime)

	var expired []*Record
	cur := e.evictList.Forward()
	for cur.Next() {
		r := cur.Item()
		if r.LastTouch.Before(cutoff) {
			expired = append(expired, r)
		} else {
			break
		}
	}

	for _, r := range expired {
		e.remove(r)
	}
}

func (e *Engine) remove(r *Record) {
	delete(e.records, recordKey{r.ID, r.Version})
	delete(e.idepo, idepoKey{r.ID, r.Token})

	if err := e.evictList.Remove(r); err != nil {
		panic(fmt.Errorf("engine: evicting record missing from eviction list: %w", err))
	}

	chain := e.chains[r.ID]
	if err := chain.Remove(r); err != nil {
		panic(fmt.Errorf("engine: evicting record missing from version chain: %w", err))
	}
	if chain.IsEmpty() {
		delete(e.chains, r.ID)
	}

	e.stats.Evictions++
}
