package resolve

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dercryptomuslim/umrahcheck-api/internal/obs"
)

// ComputeFunc produces a ResolutionResult for a cache miss. The store flag
// reports whether the result may be cached; resolutions that failed for
// purely transient reasons return store=false so an immediate retry gets a
// fresh attempt.
type ComputeFunc func(ctx context.Context) (ResolutionResult, bool, error)

type cacheEntry struct {
	val     ResolutionResult
	expiry  time.Time
	ready   bool
	waiters []chan resultOrErr
}

type resultOrErr struct {
	res ResolutionResult
	err error
}

// Cache is an in-memory TTL cache keyed by canonical query. Concurrent
// requests for the same uncached key collapse into a single compute; the
// rest join as waiters and share its outcome.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	items   map[string]*cacheEntry
	metrics *obs.Metrics
}

func NewCache(ttl time.Duration, m *obs.Metrics) *Cache {
	return &Cache{ttl: ttl, items: make(map[string]*cacheEntry), metrics: m}
}

// GetOrCompute returns the cached value for key, or runs fn exactly once for
// all concurrent callers of the same key. The hit flag is true only when the
// value was served from a previously stored entry.
func (c *Cache) GetOrCompute(ctx context.Context, key string, fn ComputeFunc) (ResolutionResult, bool, error) {
	c.mu.Lock()
	entry, found := c.items[key]

	// If cached and fresh, return it
	if found && entry.ready && time.Now().Before(entry.expiry) {
		val := entry.val
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.IncCacheHits()
		}
		return val, true, nil
	}

	// Collapse: if computation in progress, join waiters
	if found && !entry.ready {
		ch := make(chan resultOrErr, 1)
		entry.waiters = append(entry.waiters, ch)
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.IncCacheCoalesced()
		}
		select {
		case <-ctx.Done():
			return ResolutionResult{}, false, ctx.Err()
		case r := <-ch:
			return r.res, false, r.err
		}
	}

	// Start new computation and mark as in-flight
	entry = &cacheEntry{}
	c.items[key] = entry
	c.mu.Unlock()

	// Actual computation (only one goroutine does this). A panic in fn must
	// not leave the entry wedged in-flight: release the key and fail any
	// waiters before the panic continues unwinding.
	completed := false
	defer func() {
		if completed {
			return
		}
		c.mu.Lock()
		waiters := entry.waiters
		entry.waiters = nil
		delete(c.items, key)
		c.mu.Unlock()
		aborted := resultOrErr{err: fmt.Errorf("computing %q aborted: %w", key, ErrUpstream)}
		for _, w := range waiters {
			w <- aborted
			close(w)
		}
	}()
	res, store, err := fn(ctx)
	completed = true
	result := resultOrErr{res: res, err: err}

	// Save result (or drop the slot when uncacheable) and notify waiters
	c.mu.Lock()
	waiters := entry.waiters
	entry.waiters = nil
	if err == nil && store {
		entry.val = res
		entry.expiry = time.Now().Add(c.ttl)
		entry.ready = true
	} else {
		delete(c.items, key)
	}
	c.mu.Unlock()

	for _, w := range waiters {
		w <- result
		close(w)
	}

	return res, false, err
}

// TTL is the configured entry lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }
