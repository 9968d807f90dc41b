package statecache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/unify-home/unify-core/internal/device"
	"github.com/unify-home/unify-core/internal/platform"
)

// Logger defines the logging interface used by the Cache.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Refresher fetches fresh state from the owning platform. The platform
// registry satisfies it.
type Refresher interface {
	RefreshDeviceState(ctx context.Context, id string) (device.State, error)
}

// Config tunes cache behaviour.
type Config struct {
	// TTL is how long an entry counts as fresh. Values <= 0 fall back
	// to the default.
	TTL time.Duration

	// MaxEntries bounds the cache; the least recently used entry is
	// evicted on overflow. Values <= 0 fall back to the default.
	MaxEntries int
}

// Defaults.
const (
	defaultTTL        = 30 * time.Second
	defaultMaxEntries = 1024
)

func (c Config) normalize() Config {
	if c.TTL <= 0 {
		c.TTL = defaultTTL
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = defaultMaxEntries
	}
	return c
}

// entry is one cached device state plus its LRU bookkeeping.
type entry struct {
	id        string
	state     device.State
	fetchedAt time.Time
	hits      uint64        // times this entry served a fresh read
	elem      *list.Element // position in the LRU list
}

// inflightRefresh coordinates one refresh shared by concurrent callers.
// The owner closes done exactly once after filling state/err.
type inflightRefresh struct {
	done  chan struct{}
	state device.State
	err   error
}

// Cache is a read-through device state cache with TTL freshness, LRU
// bounding, and single-flight refreshes: any number of concurrent
// readers of a stale id produce exactly one platform fetch.
//
// All methods are safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	lru      *list.List // front = most recently used
	inflight map[string]*inflightRefresh

	refresher Refresher
	cfg       Config
	logger    Logger

	hits          uint64
	misses        uint64
	evictions     uint64
	invalidations uint64
	peak          int // high-water mark of len(entries)
}

// New creates a cache backed by the given refresher.
func New(refresher Refresher, cfg Config) *Cache {
	return &Cache{
		entries:   make(map[string]*entry),
		lru:       list.New(),
		inflight:  make(map[string]*inflightRefresh),
		refresher: refresher,
		cfg:       cfg.normalize(),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the cache.
func (c *Cache) SetLogger(logger Logger) {
	c.logger = logger
}

// Get returns the state of a device, serving from cache while fresh and
// refreshing through the platform when stale or absent.
//
// Concurrent gets of the same stale id share a single refresh: the first
// caller becomes the owner and performs the fetch, the rest wait for its
// outcome. A waiting caller's context cancels its wait, never the shared
// fetch.
func (c *Cache) Get(ctx context.Context, id string) (device.State, error) {
	c.mu.Lock()

	if e, ok := c.entries[id]; ok && time.Since(e.fetchedAt) < c.cfg.TTL {
		c.hits++
		e.hits++
		c.lru.MoveToFront(e.elem)
		state := device.CopyState(e.state)
		c.mu.Unlock()
		return state, nil
	}
	c.misses++

	// Join an in-flight refresh if one exists.
	if f, ok := c.inflight[id]; ok {
		c.mu.Unlock()
		return waitForRefresh(ctx, f)
	}

	// Become the owner. The marker is visible to followers before any
	// I/O starts, so no duplicate fetch can slip in.
	f := &inflightRefresh{done: make(chan struct{})}
	c.inflight[id] = f
	c.mu.Unlock()

	state, err := c.refresher.RefreshDeviceState(ctx, id)

	c.mu.Lock()
	f.state = state
	f.err = err
	// Clear() may have orphaned our marker; an orphaned refresh still
	// settles its waiters but must not repopulate the cache.
	if c.inflight[id] == f {
		delete(c.inflight, id)
		if err == nil {
			c.store(id, state)
		}
	}
	c.mu.Unlock()
	close(f.done)

	if err != nil {
		return nil, err
	}
	return device.CopyState(state), nil
}

// waitForRefresh blocks until the owner settles or the caller gives up.
func waitForRefresh(ctx context.Context, f *inflightRefresh) (device.State, error) {
	select {
	case <-f.done:
		if f.err != nil {
			return nil, f.err
		}
		return device.CopyState(f.state), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Peek returns the cached state without freshness checks, refreshes, or
// LRU promotion. Useful for dashboards that prefer stale over slow.
func (c *Cache) Peek(id string) (device.State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	return device.CopyState(e.state), true
}

// EntryHits reports how many fresh reads an entry has served.
func (c *Cache) EntryHits(id string) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return 0, false
	}
	return e.hits, true
}

// Put stores a state snapshot directly, bypassing the refresher. Used by
// event handlers and command results that already carry fresh state.
func (c *Cache) Put(id string, state device.State) {
	if state == nil {
		return
	}
	c.mu.Lock()
	c.store(id, state)
	c.mu.Unlock()
}

// Invalidate drops one entry. The next Get refreshes.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[id]; ok {
		c.lru.Remove(e.elem)
		delete(c.entries, id)
		c.invalidations++
	}
}

// Clear drops every entry and orphans in-flight refreshes so their
// results are not stored. Owners finish their fetch and hand results to
// waiting callers, but the cache forgets them.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.invalidations += uint64(len(c.entries))
	c.entries = make(map[string]*entry)
	c.lru.Init()
	// Replacing the map orphans current markers: each owner only
	// deletes and stores through its own marker.
	c.inflight = make(map[string]*inflightRefresh)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// HandleEvent folds a platform event into the cache: state changes
// overwrite the entry, device removals drop it. Wire it to the platform
// registry's event stream.
func (c *Cache) HandleEvent(e platform.Event) {
	switch e.Type {
	case platform.EventStateChange:
		if e.State != nil {
			c.Put(e.DeviceID, e.State)
		}
	case platform.EventDeviceRemoved:
		c.Invalidate(e.DeviceID)
	case platform.EventDeviceAdded:
		// Nothing cached yet; first Get populates.
	}
}

// store inserts or overwrites an entry and evicts over capacity.
// Callers hold c.mu.
func (c *Cache) store(id string, state device.State) {
	now := time.Now()

	if e, ok := c.entries[id]; ok {
		e.state = device.CopyState(state)
		e.fetchedAt = now
		c.lru.MoveToFront(e.elem)
		return
	}

	e := &entry{id: id, state: device.CopyState(state), fetchedAt: now}
	e.elem = c.lru.PushFront(e)
	c.entries[id] = e
	if len(c.entries) > c.peak {
		c.peak = len(c.entries)
	}

	for len(c.entries) > c.cfg.MaxEntries {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		victim := oldest.Value.(*entry)
		c.lru.Remove(oldest)
		delete(c.entries, victim.id)
		c.evictions++
		c.logger.Debug("evicted least recently used entry",
			"device_id", victim.id,
			"hits", victim.hits,
		)
	}
}
