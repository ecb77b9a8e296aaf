package gate

import (
	"context"
	"sort"
)

// Profile is the effective set of grants of a driver, merged from all of its roles.
type Profile interface {
	ID() uint
	Name() string
	HasPermission(permission Permission) bool
	Permissions() []Permission
}

// ProfileResolver resolves a subject to its profile.
type ProfileResolver[U any] interface {
	Resolve(ctx context.Context, user U) (Profile, error)
}

// StaticProfile is an in-memory profile made of grants and deny rules.
// A deny rule always wins over a grant, including the "*:*" wildcard.
type StaticProfile struct {
	id     uint
	name   string
	grants map[Permission]bool
	denies map[Permission]bool
}

// NewStaticProfile creates a profile with the given grants.
func NewStaticProfile(id uint, name string, permissions ...Permission) *StaticProfile {
	p := &StaticProfile{
		id:     id,
		name:   name,
		grants: make(map[Permission]bool),
		denies: make(map[Permission]bool),
	}
	p.Grant(permissions...)
	return p
}

func (p *StaticProfile) ID() uint     { return p.id }
func (p *StaticProfile) Name() string { return p.name }

// Grant adds permissions to the profile.
func (p *StaticProfile) Grant(perms ...Permission) *StaticProfile {
	for _, perm := range perms {
		p.grants[perm] = true
	}
	return p
}

// Deny adds deny rules to the profile.
func (p *StaticProfile) Deny(perms ...Permission) *StaticProfile {
	for _, perm := range perms {
		p.denies[perm] = true
	}
	return p
}

// Permissions returns the granted permissions, sorted.
func (p *StaticProfile) Permissions() []Permission {
	perms := make([]Permission, 0, len(p.grants))
	for perm := range p.grants {
		perms = append(perms, perm)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}

// Denied returns the deny rules, sorted.
func (p *StaticProfile) Denied() []Permission {
	perms := make([]Permission, 0, len(p.denies))
	for perm := range p.denies {
		perms = append(perms, perm)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}

// HasPermission checks deny rules first, then grants (with wildcard matching).
func (p *StaticProfile) HasPermission(requested Permission) bool {
	for perm := range p.denies {
		if perm.Matches(requested) {
			return false
		}
	}
	for perm := range p.grants {
		if perm.Matches(requested) {
			return true
		}
	}
	return false
}

// StaticResolver is an in-memory resolver, mostly for tests.
type StaticResolver[U comparable] struct {
	profiles map[U]Profile
}

// NewStaticResolver creates a resolver with predefined subject-profile mappings.
func NewStaticResolver[U comparable]() *StaticResolver[U] {
	return &StaticResolver[U]{profiles: make(map[U]Profile)}
}

// Set assigns a profile to a subject.
func (r *StaticResolver[U]) Set(user U, profile Profile) {
	r.profiles[user] = profile
}

// Resolve returns the profile for the given subject, nil when unknown.
func (r *StaticResolver[U]) Resolve(_ context.Context, user U) (Profile, error) {
	if profile, ok := r.profiles[user]; ok {
		return profile, nil
	}
	return nil, nil
}
