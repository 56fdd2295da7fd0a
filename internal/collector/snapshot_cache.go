package collector

import (
	"context"
	"sync"
	"time"

	"github.com/sentinelops/incident-engine/internal/models"
)

// SnapshotCache holds the most recent correlated snapshot per scope with a
// TTL. It bounds latency and backend load for scheduled heartbeats while
// guaranteeing that manual diagnostic runs always see live data.
type SnapshotCache struct {
	collector *Collector

	mu      sync.RWMutex
	entries map[string]*models.Snapshot
}

// NewSnapshotCache wraps the collector with per-scope snapshot reuse.
func NewSnapshotCache(collector *Collector) *SnapshotCache {
	return &SnapshotCache{
		collector: collector,
		entries:   make(map[string]*models.Snapshot),
	}
}

// GetOrCollect returns a snapshot for the scope, reusing the cached one when
// it is younger than ttl. Manual triggers bypass the cache unconditionally.
// The returned bool reports whether the snapshot came from the cache.
func (c *SnapshotCache) GetOrCollect(ctx context.Context, scope string, window models.TimeRange, ttl time.Duration, trigger models.TriggerType) (*models.Snapshot, bool, error) {
	if trigger != models.TriggerManual {
		c.mu.RLock()
		cached, ok := c.entries[scope]
		c.mu.RUnlock()
		if ok && ttl > 0 && cached.Age(time.Now()) < ttl {
			return cached, true, nil
		}
	}

	snapshot, err := c.collector.Collect(ctx, scope, window)
	if err != nil {
		return nil, false, err
	}

	// Last writer wins per scope; a concurrent fresher snapshot simply
	// supersedes this one.
	c.mu.Lock()
	c.entries[scope] = snapshot
	c.mu.Unlock()

	return snapshot, false, nil
}

// Peek returns the cached snapshot without collecting, if any.
func (c *SnapshotCache) Peek(scope string) (*models.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot, ok := c.entries[scope]
	return snapshot, ok
}

// Invalidate drops the cached snapshot for the scope.
func (c *SnapshotCache) Invalidate(scope string) {
	c.mu.Lock()
	delete(c.entries, scope)
	c.mu.Unlock()
}
