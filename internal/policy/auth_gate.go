// Package policy wires the permission gate to the database and the HTTP layer.
package policy

import (
	"context"
	"net/http"
	"time"

	"github.com/diewo77/vtc-exchange/auth"
	"github.com/diewo77/vtc-exchange/gate"
	"github.com/diewo77/vtc-exchange/httpx"
	"gorm.io/gorm"
)

// AuthGate holds the configured gate with its profile cache.
// It is the single place where RBAC decisions are taken, for routes and services alike.
type AuthGate struct {
	Gate          *gate.Gate[uint]
	CacheResolver *gate.CachedResolver[uint]
}

// NewAuthGate creates a gate resolving driver profiles from db, cached for cacheTTL.
func NewAuthGate(db *gorm.DB, cacheTTL time.Duration) *AuthGate {
	cached := gate.NewCachedResolver[uint](NewDBProfileResolver(db), cacheTTL)
	return &AuthGate{
		Gate:          gate.New[uint](cached),
		CacheResolver: cached,
	}
}

// RegisterPolicy adds a resource policy for a module.
func (ag *AuthGate) RegisterPolicy(module string, p gate.Policy[uint]) {
	ag.Gate.Register(module, p)
}

// Authorize checks the current driver against module:action and, when given, the resource policy.
func (ag *AuthGate) Authorize(ctx context.Context, action gate.Action, module string, resource any) error {
	driverID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return gate.ErrForbidden
	}
	return ag.Gate.Authorize(ctx, driverID, action, module, resource)
}

// CanAccess reports whether driverID holds module:action.
func (ag *AuthGate) CanAccess(ctx context.Context, driverID uint, module string, action gate.Action) bool {
	return ag.Gate.CanProfile(ctx, driverID, action, module)
}

// Allowed checks driverID against module:action and the resource policy of module.
func (ag *AuthGate) Allowed(ctx context.Context, driverID uint, module string, action gate.Action, resource any) bool {
	return ag.Gate.Can(ctx, driverID, action, module, resource)
}

// CanProfile checks the current driver's profile only.
func (ag *AuthGate) CanProfile(ctx context.Context, action gate.Action, module string) bool {
	driverID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return false
	}
	return ag.CanAccess(ctx, driverID, module, action)
}

// Effective returns the grants and deny rules of driverID.
func (ag *AuthGate) Effective(ctx context.Context, driverID uint) (granted, denied []gate.Permission, err error) {
	profile, err := ag.Gate.Profile(ctx, driverID)
	if err != nil || profile == nil {
		return nil, nil, err
	}
	granted = profile.Permissions()
	if sp, ok := profile.(*gate.StaticProfile); ok {
		denied = sp.Denied()
	}
	return granted, denied, nil
}

// InvalidateUser clears the cached profile of a driver. Call it after role changes.
func (ag *AuthGate) InvalidateUser(driverID uint) {
	ag.CacheResolver.Invalidate(driverID)
}

// InvalidateAll clears the whole cache. Call it after access rights of a role change.
func (ag *AuthGate) InvalidateAll() {
	ag.CacheResolver.InvalidateAll()
}

// RequirePermission returns middleware answering 403 when the driver lacks module:action.
func (ag *AuthGate) RequirePermission(module string, action gate.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := auth.UserIDFromContext(r.Context()); !ok {
				httpx.JSONError(w, http.StatusUnauthorized, "unauthorized", nil)
				return
			}
			if !ag.CanProfile(r.Context(), action, module) {
				httpx.JSONError(w, http.StatusForbidden, "forbidden", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
