package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/temperature-predictor/internal/models"
	"github.com/kjstillabower/temperature-predictor/internal/observability"
)

// DefaultWindow is how long a fetched observation is served without refetching.
const DefaultWindow = time.Hour

// Producer computes the value for a cache miss. Its error is returned to the caller unchanged.
type Producer func(ctx context.Context) (models.Observation, error)

// ResultCache memoizes observations per date for a freshness window. Lookup, produce and
// store for one date run under a per-date lock, so concurrent callers for a cold date
// produce once. Different dates never block each other.
type ResultCache struct {
	store  Store
	clock  clockwork.Clock
	window time.Duration
	locks  *keyedMutex
}

// Option customizes a ResultCache.
type Option func(*ResultCache)

// WithClock sets the clock used to timestamp entries and judge freshness.
func WithClock(clock clockwork.Clock) Option {
	return func(c *ResultCache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithWindow sets the freshness window. Non-positive values keep the default.
func WithWindow(d time.Duration) Option {
	return func(c *ResultCache) {
		if d > 0 {
			c.window = d
		}
	}
}

// New returns a ResultCache over store. A nil store uses an InMemoryStore.
func New(store Store, opts ...Option) *ResultCache {
	if store == nil {
		store = NewInMemoryStore()
	}
	c := &ResultCache{
		store:  store,
		clock:  clockwork.NewRealClock(),
		window: DefaultWindow,
		locks:  newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Window returns the freshness window.
func (c *ResultCache) Window() time.Duration {
	return c.window
}

// GetOrFetch returns the cached observation for date when it is younger than the window.
// Otherwise it calls produce, stores the result with the current time, and returns it.
// The bool reports whether the value came from the cache. A failed produce stores nothing.
func (c *ResultCache) GetOrFetch(ctx context.Context, date models.Date, produce Producer) (models.Observation, bool, error) {
	key := date.String()
	unlock, err := c.locks.Lock(ctx, key)
	if err != nil {
		return models.Observation{}, false, err
	}
	defer unlock()

	logger := observability.LoggerFromContext(ctx)

	entry, found := c.load(ctx, logger, key)
	if found {
		if c.clock.Since(entry.FetchedAt) < c.window {
			observability.CacheLookupsTotal.WithLabelValues("hit").Inc()
			return entry.Observation, true, nil
		}
		observability.CacheLookupsTotal.WithLabelValues("stale").Inc()
	} else {
		observability.CacheLookupsTotal.WithLabelValues("miss").Inc()
	}

	obs, err := produce(ctx)
	if err != nil {
		return models.Observation{}, false, err
	}

	c.save(ctx, logger, key, Entry{Observation: obs, FetchedAt: c.clock.Now()})
	return obs, false, nil
}

// Invalidate removes the entry for date so the next lookup fetches.
func (c *ResultCache) Invalidate(ctx context.Context, date models.Date) error {
	key := date.String()
	unlock, err := c.locks.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	start := time.Now()
	err = c.store.Delete(ctx, key)
	observeStoreOp("delete", start, err)
	return err
}

// load reads key from the store. Store errors are logged and treated as a miss.
func (c *ResultCache) load(ctx context.Context, logger *zap.Logger, key string) (Entry, bool) {
	start := time.Now()
	entry, ok, err := c.store.Get(ctx, key)
	observeStoreOp("get", start, err)
	if err != nil {
		logger.Warn("cache get failed", zap.String("date", key), zap.Error(err))
		return Entry{}, false
	}
	return entry, ok
}

// save writes entry. Store errors are logged; the caller still returns the fresh value.
func (c *ResultCache) save(ctx context.Context, logger *zap.Logger, key string, entry Entry) {
	start := time.Now()
	err := c.store.Set(ctx, key, entry, 2*c.window)
	observeStoreOp("set", start, err)
	if err != nil {
		logger.Warn("cache set failed", zap.String("date", key), zap.Error(err))
	}
}

func observeStoreOp(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		observability.CacheErrorsTotal.WithLabelValues(op).Inc()
	}
	observability.CacheOperationDurationSeconds.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}

// keyedMutex hands out one lock per key. Waiting honors ctx. Entries are reference
// counted and dropped once no goroutine holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is held or ctx is done. The returned func releases the lock.
func (m *keyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			m.release(key, l)
		}, nil
	case <-ctx.Done():
		m.release(key, l)
		return nil, ctx.Err()
	}
}

func (m *keyedMutex) release(key string, l *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}

// size reports the number of live key locks.
func (m *keyedMutex) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
