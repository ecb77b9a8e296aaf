package services

import (
	"errors"
	"testing"

	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func role(t *testing.T, env *testEnv, name string) models.Role {
	t.Helper()
	var r models.Role
	require.NoError(t, env.db.Where("name = ?", name).First(&r).Error)
	return r
}

func TestSystemRolesAreProtected(t *testing.T) {
	env := setup(t)
	admin := role(t, env, models.RoleAdmin)

	_, err := env.svc.RBAC.UpdateRole(ctx, admin.ID, RoleInput{Name: "Gestionnaire", AccessRights: admin.AccessRights})
	assertKind(t, err, ErrConflict)
	assertKind(t, env.svc.RBAC.DeleteRole(ctx, admin.ID), ErrConflict)

	updated, err := env.svc.RBAC.UpdateRole(ctx, admin.ID, RoleInput{
		Name:         models.RoleAdmin,
		Description:  "Administration",
		AccessRights: models.AccessRights{models.ModuleChauffeurs: {"write", "read", "read"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"read", "write"}, updated.AccessRights[models.ModuleChauffeurs])
	assert.Equal(t, 1, env.cache.all)
}

func TestCustomRoleLifecycle(t *testing.T) {
	env := setup(t)

	_, err := env.svc.RBAC.CreateRole(ctx, RoleInput{Name: "Comptable", AccessRights: models.AccessRights{"paie": {"read"}}})
	assertField(t, err, "access_rights.paie", "unknown_module")
	_, err = env.svc.RBAC.CreateRole(ctx, RoleInput{Name: "Comptable", AccessRights: models.AccessRights{models.ModuleActivity: {"delete"}}})
	assertField(t, err, "access_rights.activity", "invalid_action")
	_, err = env.svc.RBAC.CreateRole(ctx, RoleInput{Name: "  "})
	assertField(t, err, "name", "required")

	r, err := env.svc.RBAC.CreateRole(ctx, RoleInput{
		Name:         "Comptable",
		AccessRights: models.AccessRights{models.ModuleFactures: {"read"}, models.ModuleTransactions: {"read"}},
	})
	require.NoError(t, err)
	assert.False(t, r.IsSystem)
	assert.EqualValues(t, 2, env.db.Model(r).Association("Permissions").Count())

	_, err = env.svc.RBAC.CreateRole(ctx, RoleInput{Name: "Comptable"})
	assertKind(t, err, ErrConflict)

	roles, err := env.svc.RBAC.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 4)
	assert.True(t, roles[0].IsSystem)
	assert.Equal(t, "Comptable", roles[3].Name)

	a := env.driver(t, "alice")
	root := env.withRole(t, env.driver(t, "root"), models.RoleSuperAdmin)
	_, err = env.svc.RBAC.AssignRole(ctx, root, a.ID, r.ID)
	require.NoError(t, err)
	assertKind(t, env.svc.RBAC.DeleteRole(ctx, r.ID), ErrConflict)

	_, err = env.svc.RBAC.AssignRole(ctx, root, a.ID, role(t, env, models.RoleChauffeur).ID)
	require.NoError(t, err)
	require.NoError(t, env.svc.RBAC.DeleteRole(ctx, r.ID))
	assertKind(t, env.svc.RBAC.DeleteRole(ctx, r.ID), ErrNotFound)

	perms, err := env.svc.RBAC.ListPermissions(ctx)
	require.NoError(t, err)
	assert.Len(t, perms, 11)
}

func TestAssignRoleRules(t *testing.T) {
	env := setup(t)
	a := env.driver(t, "alice")
	admin := env.withRole(t, env.driver(t, "admin"), models.RoleAdmin)
	root := env.withRole(t, env.driver(t, "root"), models.RoleSuperAdmin)
	superAdmin := role(t, env, models.RoleSuperAdmin)
	adminRole := role(t, env, models.RoleAdmin)

	_, err := env.svc.RBAC.AssignRole(ctx, admin, admin.ID, superAdmin.ID)
	assertKind(t, err, ErrConflict)
	_, err = env.svc.RBAC.AssignRole(ctx, admin, a.ID, superAdmin.ID)
	assertKind(t, err, ErrForbidden)
	_, err = env.svc.RBAC.AssignRole(ctx, admin, root.ID, adminRole.ID)
	assertKind(t, err, ErrForbidden)
	_, err = env.svc.RBAC.AssignRole(ctx, admin, a.ID, 9999)
	assertField(t, err, "role_id", "not_found")

	d, err := env.svc.RBAC.AssignRole(ctx, admin, a.ID, adminRole.ID)
	require.NoError(t, err)
	assert.True(t, d.HasRole(models.RoleAdmin))
	assert.False(t, d.HasRole(models.RoleChauffeur))
	assert.Equal(t, []uint{a.ID}, env.cache.users)

	d, err = env.svc.RBAC.AssignRole(ctx, root, a.ID, superAdmin.ID)
	require.NoError(t, err)
	loaded, err := env.svc.Drivers.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Roles, 1)
	assert.Equal(t, models.RoleSuperAdmin, loaded.Roles[0].Name)
}

func TestDeleteRoleSurfacesHolderLookupFailure(t *testing.T) {
	env := setup(t)
	r, err := env.svc.RBAC.CreateRole(ctx, RoleInput{Name: "Dispatch"})
	require.NoError(t, err)

	errDown := errors.New("drivers table unavailable")
	require.NoError(t, env.db.Callback().Query().Before("gorm:query").Register("fail_drivers", func(tx *gorm.DB) {
		if tx.Statement.Table == "drivers" {
			_ = tx.AddError(errDown)
		}
	}))

	err = env.svc.RBAC.DeleteRole(ctx, r.ID)
	assert.ErrorIs(t, err, errDown)
	assert.Equal(t, int64(1), env.count(t, &models.Role{}, "id = ?", r.ID))
}
