package orm

import (
	"context"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Store is one named in-process cache. Model code reads and writes it
// freely; invalidation across processes runs through Cache.
type Store struct {
	name  string
	mu    sync.RWMutex
	items map[string]any
}

func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.items[key]

	return v, ok
}

func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = value
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.items)
}

func (s *Store) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = map[string]any{}
}

// Cache coordinates the in-process stores of one database across
// processes through redis invalidation counters.
//
// Clean compares each store's counter against the last value this
// process saw and purges stores other processes bumped. Resets bumps
// the counters for stores the finished transaction dirtied. Runtimes
// from CacheSyncVersion on do this internally, so both calls are
// version-gated at the call site.
type Cache struct {
	database string
	rdb      *redis.Client
	logger   *zerolog.Logger

	mu     sync.Mutex
	stores map[string]*Store
	seen   map[string]int64
}

func NewCache(rdb *redis.Client, database string, logger *zerolog.Logger) *Cache {
	return &Cache{
		database: database,
		rdb:      rdb,
		logger:   logger,
		stores:   map[string]*Store{},
		seen:     map[string]int64{},
	}
}

// Register creates the named store. Like model registration, a
// duplicate name is a boot-time programming error and panics.
func (c *Cache) Register(name string) *Store {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, dup := c.stores[name]; dup {
		panic("orm: cache registered twice: " + name)
	}

	store := &Store{name: name, items: map[string]any{}}
	c.stores[name] = store

	return store
}

func (c *Cache) key() string {
	return "ormscope:cache:" + c.database
}

// Clean pulls the invalidation counters and purges every store another
// process has bumped since this process last looked.
func (c *Cache) Clean(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}

	counters, err := c.rdb.HGetAll(ctx, c.key()).Result()
	if err != nil {
		return errors.Wrap(err, "orm: read cache counters")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for name, raw := range counters {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}

		if store, ok := c.stores[name]; ok && c.seen[name] != n {
			store.clear()
			c.seen[name] = n
		}
	}

	return nil
}

// Resets publishes the invalidations of a committed transaction: every
// store the transaction dirtied gets purged locally and its counter
// bumped for the other processes.
func (c *Cache) Resets(ctx context.Context, tx *Tx) error {
	dirty := tx.dirtyCaches()
	if len(dirty) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, name := range dirty {
		if store, ok := c.stores[name]; ok {
			store.clear()
		}

		if c.rdb == nil {
			continue
		}

		n, err := c.rdb.HIncrBy(ctx, c.key(), name, 1).Result()
		if err != nil {
			return errors.Wrapf(err, "orm: bump cache counter %s", name)
		}
		c.seen[name] = n
	}

	return nil
}
