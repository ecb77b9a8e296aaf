// Package gate provides the permission gate used by the HTTP layer and services.
// A Gate combines profile-level grants ("module:action", with wildcards and deny
// rules) with optional per-module resource policies. The package has no
// dependency on domain models.
package gate

import "context"

// Gate is the central authorization checkpoint.
// Authorization flow:
//  1. the subject must be non-zero
//  2. the subject's profile must grant module:action
//  3. if a policy is registered for the module and a resource is given, the policy must allow it
type Gate[U comparable] struct {
	resolver ProfileResolver[U]
	policies map[string]Policy[U]
}

// New creates a gate backed by the given profile resolver.
func New[U comparable](resolver ProfileResolver[U]) *Gate[U] {
	return &Gate[U]{
		resolver: resolver,
		policies: make(map[string]Policy[U]),
	}
}

// Register adds a resource policy for a module. Overwrites any existing one.
func (g *Gate[U]) Register(module string, p Policy[U]) {
	g.policies[module] = p
}

// Authorize returns nil when user may perform action on module (and resource, if given).
func (g *Gate[U]) Authorize(ctx context.Context, user U, action Action, module string, resource any) error {
	var zero U
	if user == zero {
		return ErrForbidden
	}
	profile, err := g.resolver.Resolve(ctx, user)
	if err != nil {
		return err
	}
	if profile == nil {
		return ErrNoProfile
	}
	if !profile.HasPermission(NewPermission(module, action)) {
		return ErrForbidden
	}
	if resource != nil {
		if policy, ok := g.policies[module]; ok && !policy.Can(ctx, user, action, resource) {
			return ErrForbidden
		}
	}
	return nil
}

// Can is a convenience wrapper returning bool instead of error.
func (g *Gate[U]) Can(ctx context.Context, user U, action Action, module string, resource any) bool {
	return g.Authorize(ctx, user, action, module, resource) == nil
}

// CanProfile checks only the profile grant, without resource policies.
func (g *Gate[U]) CanProfile(ctx context.Context, user U, action Action, module string) bool {
	var zero U
	if user == zero {
		return false
	}
	profile, err := g.resolver.Resolve(ctx, user)
	if err != nil || profile == nil {
		return false
	}
	return profile.HasPermission(NewPermission(module, action))
}

// Profile exposes the resolved profile of a subject (nil when none).
func (g *Gate[U]) Profile(ctx context.Context, user U) (Profile, error) {
	return g.resolver.Resolve(ctx, user)
}
