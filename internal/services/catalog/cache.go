// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package catalog

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/airtimetoday/airtime/internal/models"
)

const DefaultTTL = 14 * time.Minute

// Refresher rebuilds the full release list.
type Refresher interface {
	Refresh(ctx context.Context) ([]models.ReleaseItem, error)
}

// RefreshFunc adapts a function to Refresher.
type RefreshFunc func(ctx context.Context) ([]models.ReleaseItem, error)

func (f RefreshFunc) Refresh(ctx context.Context) ([]models.ReleaseItem, error) {
	return f(ctx)
}

// Snapshot is one read of the cache. Items must not be modified.
type Snapshot struct {
	Items       []models.ReleaseItem
	GeneratedAt time.Time
	Generation  uint64
}

// Lookup finds an item by id.
func (s Snapshot) Lookup(id string) (models.ReleaseItem, bool) {
	for _, item := range s.Items {
		if item.ID == id {
			return item, true
		}
	}
	return models.ReleaseItem{}, false
}

// Fingerprint hashes the ids in display order.
func (s Snapshot) Fingerprint() string {
	h := xxhash.New()
	for _, item := range s.Items {
		h.WriteString(item.ID)
		h.WriteString("\n")
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

type CacheOption func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// Cache serves the release list and rebuilds it at most once per TTL.
type Cache struct {
	refresher Refresher
	ttl       time.Duration
	now       func() time.Time
	group     singleflight.Group
	log       zerolog.Logger

	mu          sync.RWMutex
	items       []models.ReleaseItem
	generatedAt time.Time
	generation  uint64
	epoch       uint64
}

func NewCache(refresher Refresher, ttl time.Duration, opts ...CacheOption) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c := &Cache{
		refresher: refresher,
		ttl:       ttl,
		now:       time.Now,
		log:       log.With().Str("module", "catalog-cache").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured time to live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Peek returns the current contents without refreshing.
func (c *Cache) Peek() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// Get returns the cached list, refreshing it first when it has expired.
// Concurrent callers share one refresh. The refresh itself is detached from
// ctx; a caller whose ctx ends early gets the previous contents.
func (c *Cache) Get(ctx context.Context) Snapshot {
	c.mu.RLock()
	snap := c.snapshotLocked()
	fresh := c.freshLocked()
	epoch := c.epoch
	c.mu.RUnlock()

	if fresh {
		return snap
	}

	ch := c.group.DoChan(strconv.FormatUint(epoch, 10), func() (any, error) {
		// another caller may have finished a refresh since the check above
		c.mu.RLock()
		if c.freshLocked() && c.epoch == epoch {
			current := c.snapshotLocked()
			c.mu.RUnlock()
			return current, nil
		}
		c.mu.RUnlock()

		return c.refresh(context.WithoutCancel(ctx), epoch), nil
	})

	select {
	case res := <-ch:
		return res.Val.(Snapshot)
	case <-ctx.Done():
		if len(snap.Items) == 0 {
			snap.Items = []models.ReleaseItem{models.NewNoReleasesBanner(c.now())}
		}
		return snap
	}
}

// Invalidate forces the next Get to refresh. A refresh already running when
// Invalidate is called does not mark the cache fresh.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	c.generatedAt = time.Time{}
}

func (c *Cache) refresh(ctx context.Context, epoch uint64) Snapshot {
	started := c.now()
	items, err := c.refresher.Refresh(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case err != nil && len(c.items) > 0:
		c.log.Warn().Err(err).Int("items", len(c.items)).Msg("Refresh failed, keeping previous release list")
		items = c.items
	case err != nil:
		c.log.Warn().Err(err).Msg("Refresh failed with nothing cached, serving placeholder")
		items = []models.ReleaseItem{models.NewNoReleasesBanner(started)}
	case len(items) == 0:
		items = []models.ReleaseItem{models.NewNoReleasesBanner(started)}
	}

	if c.epoch != epoch {
		// a newer refresh owns the cache; only fill it when nothing is there yet
		c.log.Debug().Msg("Cache invalidated during refresh, result will not be reused")
		if len(c.items) == 0 {
			c.items = items
			c.generation++
		}
		return Snapshot{Items: items, GeneratedAt: c.generatedAt, Generation: c.generation}
	}

	c.items = items
	c.generation++
	c.generatedAt = c.now()
	c.log.Debug().
		Int("items", len(items)).
		Dur("took", c.generatedAt.Sub(started)).
		Msg("Release list refreshed")

	return c.snapshotLocked()
}

func (c *Cache) freshLocked() bool {
	return !c.generatedAt.IsZero() && c.now().Sub(c.generatedAt) < c.ttl
}

func (c *Cache) snapshotLocked() Snapshot {
	return Snapshot{
		Items:       c.items,
		GeneratedAt: c.generatedAt,
		Generation:  c.generation,
	}
}
