package github

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/sakif/easgit/internal/metrics"
)

// sweepThreshold is the entry count above which expired entries are purged
// on insert.
const sweepThreshold = 1024

// CachingSource memoizes successful fetches for ttl. Entries are keyed by
// login and a fingerprint of the token, so one user's token never serves
// another caller. Failures are not cached.
type CachingSource struct {
	next    Source
	ttl     time.Duration
	metrics *metrics.Manager
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	snap    *Snapshot
	expires time.Time
}

// NewCachingSource wraps next. Returned snapshots are shared between callers
// and must be treated as read-only.
func NewCachingSource(next Source, ttl time.Duration, m *metrics.Manager) *CachingSource {
	return &CachingSource{
		next:    next,
		ttl:     ttl,
		metrics: m,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

var _ Source = (*CachingSource)(nil)

func (c *CachingSource) FetchStats(ctx context.Context, login, token string) (*Snapshot, error) {
	key := cacheKey(login, token)

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && c.now().Before(e.expires) {
		c.mu.Unlock()
		c.metrics.CacheHit()
		return e.snap, nil
	}
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	c.metrics.CacheMiss()
	snap, err := c.next.FetchStats(ctx, login, token)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if len(c.entries) >= sweepThreshold {
		c.sweepLocked()
	}
	c.entries[key] = cacheEntry{snap: snap, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()

	return snap, nil
}

// Len returns the number of cached entries, expired ones included.
func (c *CachingSource) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *CachingSource) sweepLocked() {
	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
}

func cacheKey(login, token string) string {
	sum := sha256.Sum256([]byte(token))
	return strings.ToLower(login) + ":" + hex.EncodeToString(sum[:8])
}

// NewSource selects the plain client when ttl is zero and the caching
// decorator otherwise.
func NewSource(client Source, ttl time.Duration, m *metrics.Manager) Source {
	if ttl <= 0 {
		return client
	}
	return NewCachingSource(client, ttl, m)
}
