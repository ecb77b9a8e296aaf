package gate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCachedResolver_CachesUntilTTL(t *testing.T) {
	inner := NewStaticResolver[uint]()
	inner.Set(1, NewStaticProfile(1, "Chauffeur"))

	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cached := NewCachedResolver[uint](inner, time.Minute)
	cached.now = func() time.Time { return clock }

	p, err := cached.Resolve(context.Background(), 1)
	if err != nil || p.Name() != "Chauffeur" {
		t.Fatalf("first resolve: %v %v", p, err)
	}

	inner.Set(1, NewStaticProfile(1, "Admin"))
	p, _ = cached.Resolve(context.Background(), 1)
	if p.Name() != "Chauffeur" {
		t.Errorf("expected cached 'Chauffeur', got '%s'", p.Name())
	}

	clock = clock.Add(2 * time.Minute)
	p, _ = cached.Resolve(context.Background(), 1)
	if p.Name() != "Admin" {
		t.Errorf("expected refreshed 'Admin' after ttl, got '%s'", p.Name())
	}
}

func TestCachedResolver_Invalidate(t *testing.T) {
	inner := NewStaticResolver[uint]()
	inner.Set(1, NewStaticProfile(1, "Chauffeur"))
	inner.Set(2, NewStaticProfile(2, "Chauffeur"))
	cached := NewCachedResolver[uint](inner, time.Hour)

	_, _ = cached.Resolve(context.Background(), 1)
	_, _ = cached.Resolve(context.Background(), 2)
	if cached.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", cached.Len())
	}

	inner.Set(1, NewStaticProfile(1, "Admin"))
	cached.Invalidate(1)
	p, _ := cached.Resolve(context.Background(), 1)
	if p.Name() != "Admin" {
		t.Errorf("expected 'Admin' after invalidation, got '%s'", p.Name())
	}

	cached.InvalidateAll()
	if cached.Len() != 0 {
		t.Errorf("expected empty cache, got %d", cached.Len())
	}
}

type resolverFunc func(ctx context.Context, user uint) (Profile, error)

func (f resolverFunc) Resolve(ctx context.Context, user uint) (Profile, error) { return f(ctx, user) }

func TestCachedResolver_DenyRuleNeedsInvalidateAll(t *testing.T) {
	deleteDrivers := NewPermission("chauffeurs", ActionDelete)
	inner := NewStaticResolver[uint]()
	inner.Set(7, NewStaticProfile(7, "Admin", PermissionSuperAdmin))
	cached := NewCachedResolver[uint](inner, time.Hour)

	p, _ := cached.Resolve(context.Background(), 7)
	if !p.HasPermission(deleteDrivers) {
		t.Fatal("wildcard grant should allow chauffeurs:delete")
	}

	inner.Set(7, NewStaticProfile(7, "Admin", PermissionSuperAdmin).Deny(deleteDrivers))
	p, _ = cached.Resolve(context.Background(), 7)
	if !p.HasPermission(deleteDrivers) {
		t.Fatal("cached profile should be served until invalidation")
	}

	cached.InvalidateAll()
	p, _ = cached.Resolve(context.Background(), 7)
	if p.HasPermission(deleteDrivers) {
		t.Error("deny rule should apply after InvalidateAll")
	}
}

func TestCachedResolver_SkipsStoreWhenEditedDuringResolve(t *testing.T) {
	var cached *CachedResolver[uint]
	calls := 0
	cached = NewCachedResolver[uint](resolverFunc(func(_ context.Context, user uint) (Profile, error) {
		calls++
		if calls == 1 {
			// a role edit lands while the first load is running
			cached.InvalidateAll()
		}
		return NewStaticProfile(user, "Chauffeur"), nil
	}), time.Hour)

	if _, err := cached.Resolve(context.Background(), 3); err != nil {
		t.Fatal(err)
	}
	if cached.Len() != 0 {
		t.Fatalf("stale load should not be cached, got %d entries", cached.Len())
	}

	_, _ = cached.Resolve(context.Background(), 3)
	_, _ = cached.Resolve(context.Background(), 3)
	if calls != 2 {
		t.Errorf("expected 2 loads, got %d", calls)
	}
}

func TestCachedResolver_DoesNotCacheErrors(t *testing.T) {
	calls := 0
	cached := NewCachedResolver[uint](resolverFunc(func(context.Context, uint) (Profile, error) {
		calls++
		return nil, errors.New("roles unavailable")
	}), time.Hour)

	for i := 0; i < 2; i++ {
		if _, err := cached.Resolve(context.Background(), 99); err == nil {
			t.Fatal("expected resolver error")
		}
	}
	if cached.Len() != 0 || calls != 2 {
		t.Errorf("errors should not be cached: %d entries, %d loads", cached.Len(), calls)
	}
}
