package cachestore

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/serabi/organized-glitter-sub001/pkg/cachekey"
)

// ErrClosed is returned by writes against a closed store.
var ErrClosed = errors.New("cache store closed")

// FetchFunc loads the authoritative value for a key. One fetch function
// is registered per key family; the store delegates all I/O to it.
type FetchFunc func(ctx context.Context, key cachekey.Key) (any, error)

// KeyedEntry pairs a key with its entry, as returned by Query.
type KeyedEntry struct {
	Key   cachekey.Key
	Entry Entry
}

// fetcher binds a key prefix to its fetch function and entry policy.
type fetcher struct {
	prefix cachekey.Key
	kind   Kind
	policy Policy
	fn     FetchFunc
}

// entryState is an entry plus its bookkeeping. Guarded by Store.mu.
type entryState struct {
	key       cachekey.Key
	entry     Entry
	observers int

	// hasValue distinguishes real entries from observer placeholders
	// created by Observe before any value was fetched.
	hasValue bool

	// generation increments on every write or cancellation so that a
	// late-arriving fetch result never clobbers a newer value.
	generation  uint64
	cancelFetch context.CancelFunc
}

// Config holds store configuration.
type Config struct {
	// JanitorInterval is how often expired zero-observer entries are
	// swept. Zero means 1 minute; negative disables the janitor.
	JanitorInterval time.Duration
}

// Store is the shared keyed cache. All components read and write through
// it; it is the only shared mutable resource in the engine. A single
// mutex serializes writers, which also gives mutations the ordering
// guarantee that a later snapshot observes an earlier speculative write.
type Store struct {
	mu       sync.Mutex
	entries  map[string]*entryState
	fetchers []fetcher
	closed   bool

	group   singleflight.Group
	logger  zerolog.Logger
	stop    chan struct{}
	stopped sync.Once
}

// New creates a cache store and starts its janitor.
func New(cfg Config) *Store {
	s := &Store{
		entries: make(map[string]*entryState),
		logger:  log.With().Str("component", "cachestore").Logger(),
		stop:    make(chan struct{}),
	}

	interval := cfg.JanitorInterval
	if interval == 0 {
		interval = time.Minute
	}
	if interval > 0 {
		go s.janitor(interval)
	}

	return s
}

// RegisterFetcher binds a fetch function, entry kind, and policy to every
// key under the given prefix. Longest matching prefix wins.
func (s *Store) RegisterFetcher(prefix cachekey.Key, kind Kind, policy Policy, fn FetchFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchers = append(s.fetchers, fetcher{prefix: prefix, kind: kind, policy: policy, fn: fn})
}

// fetcherFor returns the longest-prefix fetcher for a key, if any.
// Caller holds s.mu.
func (s *Store) fetcherFor(key cachekey.Key) (fetcher, bool) {
	best := -1
	for i, f := range s.fetchers {
		if key.HasPrefix(f.prefix) && (best < 0 || len(f.prefix) > len(s.fetchers[best].prefix)) {
			best = i
		}
	}
	if best < 0 {
		return fetcher{}, false
	}
	return s.fetchers[best], true
}

// Get retrieves the entry for a key. Stale entries are still returned;
// expired zero-observer entries are removed lazily and reported as
// misses.
func (s *Store) Get(key cachekey.Key) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.entries[key.String()]
	if !ok || !st.hasValue {
		cacheMisses.Inc()
		return Entry{}, false
	}

	if st.observers == 0 && st.entry.Expired(time.Now()) {
		s.removeLocked(key.String(), st)
		cacheMisses.Inc()
		return Entry{}, false
	}

	cacheHits.WithLabelValues(string(st.entry.Kind)).Inc()
	return st.entry, true
}

// Set creates or overwrites an entry and resets its freshness clock.
func (s *Store) Set(key cachekey.Key, kind Kind, value any, policy Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	st, ok := s.entries[key.String()]
	if !ok {
		st = &entryState{key: key}
		s.entries[key.String()] = st
		cacheEntries.Inc()
	}
	st.entry = Entry{Kind: kind, Value: value, FetchedAt: time.Now(), Policy: policy}
	st.hasValue = true
	st.generation++
	return nil
}

// Delete removes an entry. Used by rollbacks restoring an absent
// snapshot and by delete commits.
func (s *Store) Delete(key cachekey.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	if st, ok := s.entries[key.String()]; ok {
		st.generation++
		s.removeLocked(key.String(), st)
	}
	return nil
}

// Invalidate marks every entry under the prefix stale. Observed entries
// with a registered fetch function are refreshed in the background;
// unobserved entries stay stale until next read or eviction.
func (s *Store) Invalidate(prefix cachekey.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	for _, st := range s.entries {
		if !st.key.HasPrefix(prefix) {
			continue
		}
		st.entry.Stale = true
		cacheInvalidations.Inc()

		if st.observers > 0 {
			if f, ok := s.fetcherFor(st.key); ok {
				s.refetchLocked(st, f)
			}
		}
	}
	return nil
}

// CancelInFlight aborts pending fetches for every key under the prefix
// so a late-arriving stale response cannot clobber a subsequent
// speculative write. Idempotent: cancelling settled or already-cancelled
// fetches is a no-op.
func (s *Store) CancelInFlight(prefix cachekey.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range s.entries {
		if !st.key.HasPrefix(prefix) {
			continue
		}
		if st.cancelFetch != nil {
			st.cancelFetch()
			st.cancelFetch = nil
			st.generation++
			cacheCancelledFetches.Inc()
		}
	}
}

// Query returns every entry whose key matches the prefix. Used by the
// aggregate engine and sibling resolver to scan cached pages without
// issuing remote calls.
func (s *Store) Query(prefix cachekey.Key) []KeyedEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var out []KeyedEntry
	for _, st := range s.entries {
		if !st.hasValue || !st.key.HasPrefix(prefix) {
			continue
		}
		if st.observers == 0 && st.entry.Expired(now) {
			continue
		}
		out = append(out, KeyedEntry{Key: st.key, Entry: st.entry})
	}
	return out
}

// Observe registers an active observer for a key. Observed entries are
// exempt from eviction and get background refreshes on invalidation.
func (s *Store) Observe(key cachekey.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.entries[key.String()]
	if !ok {
		st = &entryState{key: key, entry: Entry{FetchedAt: time.Now(), Policy: DefaultPolicy()}}
		s.entries[key.String()] = st
		cacheEntries.Inc()
	}
	st.observers++
}

// Release drops an observer registered with Observe.
func (s *Store) Release(key cachekey.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.entries[key.String()]; ok && st.observers > 0 {
		st.observers--
	}
}

// Close stops the janitor and rejects further writes.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	for _, st := range s.entries {
		if st.cancelFetch != nil {
			st.cancelFetch()
			st.cancelFetch = nil
		}
	}
	s.mu.Unlock()

	s.stopped.Do(func() { close(s.stop) })
}

// refetchLocked starts a background refresh for an observed stale entry.
// Caller holds s.mu. Concurrent refreshes for the same key collapse into
// one flight; a result is dropped if the entry was written or cancelled
// while the fetch was in flight.
func (s *Store) refetchLocked(st *entryState, f fetcher) {
	if st.cancelFetch != nil {
		// A fetch is already pending for this key.
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	st.cancelFetch = cancel
	gen := st.generation
	key := st.key

	// The flight key includes the generation so a refetch started after a
	// cancellation never joins the cancelled flight.
	flightKey := key.String() + "#" + strconv.FormatUint(gen, 10)

	go func() {
		value, err, _ := s.group.Do(flightKey, func() (any, error) {
			return f.fn(ctx, key)
		})
		cancel()

		s.mu.Lock()
		defer s.mu.Unlock()

		cur, ok := s.entries[key.String()]
		if !ok || cur.generation != gen || s.closed {
			cacheRefetches.WithLabelValues("superseded").Inc()
			return
		}
		cur.cancelFetch = nil

		if err != nil {
			cacheRefetches.WithLabelValues("error").Inc()
			s.logger.Warn().Err(err).Str("cache_key", key.String()).Msg("Background refetch failed")
			return
		}

		cur.entry = Entry{Kind: f.kind, Value: value, FetchedAt: time.Now(), Policy: f.policy}
		cur.hasValue = true
		cur.generation++
		cacheRefetches.WithLabelValues("ok").Inc()
		s.logger.Debug().Str("cache_key", key.String()).Msg("Background refetch complete")
	}()
}

// removeLocked deletes an entry and cancels its pending fetch.
// Caller holds s.mu.
func (s *Store) removeLocked(mapKey string, st *entryState) {
	if st.cancelFetch != nil {
		st.cancelFetch()
		st.cancelFetch = nil
	}
	delete(s.entries, mapKey)
	cacheEntries.Dec()
}

// janitor periodically evicts expired entries with no observers.
func (s *Store) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep removes every expired zero-observer entry.
func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for mapKey, st := range s.entries {
		if st.observers == 0 && st.entry.Expired(now) {
			s.removeLocked(mapKey, st)
			cacheEvictions.Inc()
		}
	}
}
