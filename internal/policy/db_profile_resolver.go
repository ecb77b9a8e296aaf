package policy

import (
	"context"
	"errors"
	"strings"

	"github.com/diewo77/vtc-exchange/gate"
	"github.com/diewo77/vtc-exchange/internal/models"
	"gorm.io/gorm"
)

// AdminDenied lists what the Admin role may never do, whatever its access rights say.
var AdminDenied = []gate.Permission{
	gate.NewPermission(models.ModuleChauffeurs, gate.ActionDelete),
}

// DBProfileResolver builds driver profiles from their roles in the database.
type DBProfileResolver struct {
	DB *gorm.DB
}

// NewDBProfileResolver creates a new database-backed profile resolver.
func NewDBProfileResolver(db *gorm.DB) *DBProfileResolver {
	return &DBProfileResolver{DB: db}
}

// Resolve loads the driver with its roles. Unknown drivers resolve to nil.
func (r *DBProfileResolver) Resolve(ctx context.Context, driverID uint) (gate.Profile, error) {
	var d models.Driver
	err := r.DB.WithContext(ctx).Preload("Roles").First(&d, driverID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ProfileForDriver(&d), nil
}

// ProfileForDriver merges the access rights of every role of d.
// SuperAdmin holds everything; Admin holds everything except AdminDenied.
// A blocked driver gets an empty profile.
func ProfileForDriver(d *models.Driver) *gate.StaticProfile {
	names := make([]string, 0, len(d.Roles))
	for _, role := range d.Roles {
		names = append(names, role.Name)
	}
	p := gate.NewStaticProfile(d.ID, strings.Join(names, ","))
	if d.Status == models.DriverStatusBlocked {
		return p
	}
	switch {
	case d.HasRole(models.RoleSuperAdmin):
		return p.Grant(gate.PermissionSuperAdmin)
	case d.HasRole(models.RoleAdmin):
		p.Grant(gate.PermissionSuperAdmin).Deny(AdminDenied...)
	}
	for _, role := range d.Roles {
		p.Grant(gate.PermissionsFromAccessRights(role.AccessRights)...)
	}
	return p
}
