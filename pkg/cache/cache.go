package cache

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/singleflight"

	"github.com/porthorian/sessionkit/pkg/clock"
	"github.com/porthorian/sessionkit/pkg/scheduler"
)

const (
	DefaultMaxSize         = 1024
	DefaultTTL             = 5 * time.Minute
	DefaultCleanupInterval = time.Minute
)

// Supplier produces a value for a missing key, typically by contacting a
// remote collaborator.
type Supplier[V any] func(ctx context.Context) (V, error)

type Options struct {
	// MaxSize bounds the number of live entries. Inserting a new key at the
	// bound evicts the least-recently-used entry first.
	MaxSize int

	// DefaultTTL applies to Set calls without an explicit ttl.
	DefaultTTL time.Duration

	// CleanupInterval is the period of the background sweep removing expired
	// entries. Zero or negative uses DefaultCleanupInterval.
	CleanupInterval time.Duration

	Clock     clock.Clock
	Scheduler scheduler.Scheduler
	Logger    logr.Logger
}

type Option func(*config)

type config struct {
	deduplicate bool
}

// WithComputeDeduplication collapses concurrent GetOrCompute calls for the
// same missing key into a single supplier invocation. Without it, concurrent
// callers race to populate the key and the last writer wins.
func WithComputeDeduplication() Option {
	return func(c *config) {
		c.deduplicate = true
	}
}

type entry[V any] struct {
	key            string
	value          V
	createdAt      time.Time
	expiresAt      time.Time
	lastAccessedAt time.Time
	accessCount    uint64

	prev, next *entry[V]
}

// Store is a bounded in-memory key/value store with per-entry expiration and
// strict least-recently-used eviction. All operations are safe for concurrent
// use.
type Store[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
	head    *entry[V] // most recently used
	tail    *entry[V] // least recently used
	closed  bool

	maxSize    int
	defaultTTL time.Duration

	clk    clock.Clock
	logger logr.Logger

	group       *singleflight.Group
	cleanupTask scheduler.Handle
}

func New[V any](opts Options, extra ...Option) *Store[V] {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.System()
	}
	if opts.Scheduler == nil {
		opts.Scheduler = scheduler.System()
	}
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}

	var cfg config
	for _, opt := range extra {
		opt(&cfg)
	}

	s := &Store[V]{
		entries:    map[string]*entry[V]{},
		maxSize:    opts.MaxSize,
		defaultTTL: opts.DefaultTTL,
		clk:        opts.Clock,
		logger:     opts.Logger,
	}

	if cfg.deduplicate {
		s.group = &singleflight.Group{}
	}

	s.cleanupTask = opts.Scheduler.Repeat(opts.CleanupInterval, func() {
		if removed := s.Cleanup(); removed > 0 {
			s.logger.V(1).Info("cache cleanup removed expired entries", "removed", removed)
		}
	})

	return s
}

// Set stores value under key with the default ttl.
func (s *Store[V]) Set(key string, value V) {
	s.SetTTL(key, value, s.defaultTTL)
}

// SetTTL stores value under key, valid until now + ttl. A ttl <= 0 inserts an
// entry that is already expired: it occupies a slot until the next cleanup or
// access, but no read ever returns it. If key is new and the store is at
// capacity, the least-recently-used entry is evicted first.
func (s *Store[V]) SetTTL(key string, value V, ttl time.Duration) {
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if existing, ok := s.entries[key]; ok {
		s.unlink(existing)
		delete(s.entries, key)
	} else if len(s.entries) >= s.maxSize {
		s.evictLocked()
	}

	ent := &entry[V]{
		key:            key,
		value:          value,
		createdAt:      now,
		expiresAt:      now.Add(ttl),
		lastAccessedAt: now,
	}
	s.entries[key] = ent
	s.pushFront(ent)
}

// Get returns the value stored under key. An expired entry reads as absent
// and is removed as a side effect.
func (s *Store[V]) Get(key string) (V, bool) {
	var zero V
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		return zero, false
	}

	if s.expired(ent, now) {
		s.unlink(ent)
		delete(s.entries, key)
		return zero, false
	}

	ent.lastAccessedAt = now
	ent.accessCount++
	s.unlink(ent)
	s.pushFront(ent)
	return ent.value, true
}

// GetOrCompute returns the cached value for key, or invokes supplier, stores
// the result under key with the given ttl, and returns it. Supplier errors
// propagate and nothing is stored. Unless the store was built with
// WithComputeDeduplication, concurrent calls for the same missing key each
// invoke supplier independently and the last writer wins.
func (s *Store[V]) GetOrCompute(ctx context.Context, key string, supplier Supplier[V], ttl time.Duration) (V, error) {
	if value, ok := s.Get(key); ok {
		return value, nil
	}

	if s.group == nil {
		return s.compute(ctx, key, supplier, ttl)
	}

	result, err, _ := s.group.Do(key, func() (any, error) {
		// A concurrent flight may have populated the key after our miss.
		if value, ok := s.Get(key); ok {
			return value, nil
		}
		return s.compute(ctx, key, supplier, ttl)
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return result.(V), nil
}

func (s *Store[V]) compute(ctx context.Context, key string, supplier Supplier[V], ttl time.Duration) (V, error) {
	value, err := supplier(ctx)
	if err != nil {
		var zero V
		return zero, err
	}

	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	s.SetTTL(key, value, ttl)
	return value, nil
}

// Delete removes key and reports whether it was present. An expired but not
// yet collected entry counts as present for removal purposes.
func (s *Store[V]) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		return false
	}

	s.unlink(ent)
	delete(s.entries, key)
	return true
}

// Clear removes all entries unconditionally.
func (s *Store[V]) Clear() {
	s.mu.Lock()
	s.entries = map[string]*entry[V]{}
	s.head = nil
	s.tail = nil
	s.mu.Unlock()
}

// Cleanup removes every expired entry and returns how many were removed.
func (s *Store[V]) Cleanup() int {
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanupLocked(now)
}

func (s *Store[V]) cleanupLocked(now time.Time) int {
	removed := 0
	for key, ent := range s.entries {
		if s.expired(ent, now) {
			s.unlink(ent)
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close cancels the background cleanup task. The store remains readable;
// subsequent writes are dropped. Safe to call more than once.
func (s *Store[V]) Close() {
	s.mu.Lock()
	task := s.cleanupTask
	s.cleanupTask = nil
	s.closed = true
	s.mu.Unlock()

	if task != nil {
		task.Cancel()
	}
}

// An entry with expiresAt at or before now is logically absent.
func (s *Store[V]) expired(ent *entry[V], now time.Time) bool {
	return !ent.expiresAt.After(now)
}

// evictLocked removes the least-recently-used entry. List order realizes the
// eviction rule: oldest lastAccessedAt loses, ties broken by earliest
// createdAt.
func (s *Store[V]) evictLocked() {
	victim := s.tail
	if victim == nil {
		return
	}

	s.unlink(victim)
	delete(s.entries, victim.key)
	s.logger.V(1).Info("cache evicted entry", "key", victim.key, "last_accessed_at", victim.lastAccessedAt)
}

func (s *Store[V]) pushFront(ent *entry[V]) {
	ent.prev = nil
	ent.next = s.head
	if s.head != nil {
		s.head.prev = ent
	}
	s.head = ent
	if s.tail == nil {
		s.tail = ent
	}
}

func (s *Store[V]) unlink(ent *entry[V]) {
	if ent.prev != nil {
		ent.prev.next = ent.next
	} else if s.head == ent {
		s.head = ent.next
	}
	if ent.next != nil {
		ent.next.prev = ent.prev
	} else if s.tail == ent {
		s.tail = ent.prev
	}
	ent.prev = nil
	ent.next = nil
}
