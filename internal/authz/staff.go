// Package authz answers "may this user act on resources they do not own".
// Staff membership is loaded from storage and cached with a TTL so hot
// paths never hit the database per check.
package authz

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Loader fetches the current set of staff user ids.
type Loader func(ctx context.Context) ([]int64, error)

// StaffCache is a read-through TTL cache over a Loader. A lookup within the
// TTL answers from the cached set; the first lookup after expiry reloads.
// When a reload fails and a previous set exists, the stale set keeps
// answering so a storage blip cannot lock staff out.
type StaffCache struct {
	load Loader
	ttl  time.Duration
	now  func() time.Time
	lg   *zap.Logger

	mu       sync.Mutex
	ids      map[int64]struct{}
	loadedAt time.Time
}

// NewStaffCache creates a StaffCache with the given TTL.
func NewStaffCache(load Loader, ttl time.Duration, lg *zap.Logger) *StaffCache {
	return &StaffCache{
		load: load,
		ttl:  ttl,
		now:  time.Now,
		lg:   lg.Named("authz"),
	}
}

// IsStaff reports whether userID belongs to the staff set.
func (c *StaffCache) IsStaff(ctx context.Context, userID int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refreshLocked(ctx); err != nil {
		return false, err
	}
	_, ok := c.ids[userID]
	return ok, nil
}

// Invalidate drops the cached set; the next lookup reloads.
func (c *StaffCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = nil
	c.loadedAt = time.Time{}
}

// refreshLocked reloads the set when the TTL has elapsed. The caller must
// hold c.mu.
func (c *StaffCache) refreshLocked(ctx context.Context) error {
	now := c.now()
	if c.ids != nil && now.Sub(c.loadedAt) < c.ttl {
		return nil
	}

	loaded, err := c.load(ctx)
	if err != nil {
		if c.ids != nil {
			c.lg.Warn("staff reload failed, serving stale set",
				zap.Time("loaded_at", c.loadedAt),
				zap.Error(err))
			return nil
		}
		return err
	}

	ids := make(map[int64]struct{}, len(loaded))
	for _, id := range loaded {
		ids[id] = struct{}{}
	}
	c.ids = ids
	c.loadedAt = now
	return nil
}
