package policy

import (
	"context"

	"github.com/diewo77/vtc-exchange/gate"
)

// Ownable is implemented by resources belonging to a single driver.
type Ownable interface {
	OwnerID() uint
}

// OwnershipPolicy allows a driver to act on resources they own.
type OwnershipPolicy struct{}

// NewOwnershipPolicy creates a new ownership policy.
func NewOwnershipPolicy() *OwnershipPolicy {
	return &OwnershipPolicy{}
}

// Can allows list/create (nil resource) and denies resources that are not Ownable.
func (p *OwnershipPolicy) Can(_ context.Context, driverID uint, _ gate.Action, resource any) bool {
	if resource == nil {
		return true
	}
	ownable, ok := resource.(Ownable)
	if !ok {
		return false
	}
	return ownable.OwnerID() == driverID
}

// AdminBypassPolicy wraps another policy and always allows administrators.
type AdminBypassPolicy struct {
	inner   gate.Policy[uint]
	isAdmin func(ctx context.Context, driverID uint) bool
}

// NewAdminBypassPolicy creates a policy that bypasses inner for administrators.
func NewAdminBypassPolicy(inner gate.Policy[uint], isAdmin func(ctx context.Context, driverID uint) bool) *AdminBypassPolicy {
	return &AdminBypassPolicy{inner: inner, isAdmin: isAdmin}
}

func (p *AdminBypassPolicy) Can(ctx context.Context, driverID uint, action gate.Action, resource any) bool {
	if p.isAdmin(ctx, driverID) {
		return true
	}
	return p.inner.Can(ctx, driverID, action, resource)
}
