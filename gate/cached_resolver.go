package gate

import (
	"context"
	"sync"
	"time"
)

// CachedResolver keeps resolved profiles for ttl so permission checks on hot
// routes do not reload roles on every request.
//
// Grants and deny rules are cached together: a role edit that adds a deny
// rule must call InvalidateAll, a role assignment or a block must call
// Invalidate for the affected driver. A resolution that was in flight while
// an invalidation happened is returned to its caller but never stored.
type CachedResolver[U comparable] struct {
	inner ProfileResolver[U]
	ttl   time.Duration
	now   func() time.Time

	mu    sync.RWMutex
	epoch uint64
	cache map[U]cacheEntry
}

type cacheEntry struct {
	profile   Profile
	expiresAt time.Time
}

func NewCachedResolver[U comparable](inner ProfileResolver[U], ttl time.Duration) *CachedResolver[U] {
	return &CachedResolver[U]{
		inner: inner,
		ttl:   ttl,
		now:   time.Now,
		cache: make(map[U]cacheEntry),
	}
}

// Resolve serves a fresh cache entry or reloads through the inner resolver.
// Errors are never cached.
func (r *CachedResolver[U]) Resolve(ctx context.Context, user U) (Profile, error) {
	r.mu.RLock()
	entry, ok := r.cache[user]
	epoch := r.epoch
	r.mu.RUnlock()
	if ok && r.now().Before(entry.expiresAt) {
		return entry.profile, nil
	}

	profile, err := r.inner.Resolve(ctx, user)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.epoch == epoch {
		r.cache[user] = cacheEntry{profile: profile, expiresAt: r.now().Add(r.ttl)}
	}
	r.mu.Unlock()
	return profile, nil
}

// Invalidate drops the profile of one driver.
func (r *CachedResolver[U]) Invalidate(user U) {
	r.mu.Lock()
	r.epoch++
	delete(r.cache, user)
	r.mu.Unlock()
}

// InvalidateAll drops every profile.
func (r *CachedResolver[U]) InvalidateAll() {
	r.mu.Lock()
	r.epoch++
	clear(r.cache)
	r.mu.Unlock()
}

// Len returns the number of cached entries, expired ones included.
func (r *CachedResolver[U]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
