package db

import (
	"errors"

	"github.com/diewo77/vtc-exchange/internal/models"
	"gorm.io/gorm"
)

var (
	allActions = []string{"read", "write", "delete"}
	readWrite  = []string{"read", "write"}
)

// permissionCatalog lists every guarded module with the actions it supports.
var permissionCatalog = []models.Permission{
	{Module: models.ModuleRides, Label: "Courses", Actions: allActions},
	{Module: models.ModuleGroupes, Label: "Groupes", Actions: allActions},
	{Module: models.ModuleFactures, Label: "Factures", Actions: allActions},
	{Module: models.ModuleTransactions, Label: "Transactions", Actions: readWrite},
	{Module: models.ModuleAvis, Label: "Avis", Actions: readWrite},
	{Module: models.ModuleMessages, Label: "Messagerie", Actions: readWrite},
	{Module: models.ModuleTracking, Label: "Suivi GPS", Actions: readWrite},
	{Module: models.ModuleDocuments, Label: "Documents", Actions: allActions},
	{Module: models.ModuleChauffeurs, Label: "Chauffeurs", Actions: allActions},
	{Module: models.ModuleRBAC, Label: "Rôles et permissions", Actions: allActions},
	{Module: models.ModuleActivity, Label: "Journal d'activité", Actions: []string{"read"}},
}

// FullAccess grants every catalog action on every module.
func FullAccess() models.AccessRights {
	rights := models.AccessRights{}
	for _, p := range permissionCatalog {
		rights[p.Module] = append([]string(nil), p.Actions...)
	}
	return rights
}

// ChauffeurAccess is the default right set of a registered driver.
func ChauffeurAccess() models.AccessRights {
	return models.AccessRights{
		models.ModuleRides:        allActions,
		models.ModuleGroupes:      allActions,
		models.ModuleFactures:     readWrite,
		models.ModuleTransactions: readWrite,
		models.ModuleAvis:         readWrite,
		models.ModuleMessages:     readWrite,
		models.ModuleTracking:     readWrite,
		models.ModuleDocuments:    allActions,
	}
}

// Seed initializes the database with required reference data.
// Should be called after Migrate.
func Seed(conn *gorm.DB) error {
	if err := SeedPermissions(conn); err != nil {
		return err
	}
	return SeedRoles(conn)
}

// SeedPermissions creates the permission catalog; existing entries are left untouched.
func SeedPermissions(conn *gorm.DB) error {
	for _, p := range permissionCatalog {
		perm := p
		if err := conn.Where("module = ?", p.Module).FirstOrCreate(&perm).Error; err != nil {
			return err
		}
	}
	return nil
}

// SeedRoles creates the built-in roles. Access rights of an existing role are
// preserved since they are editable by administrators.
func SeedRoles(conn *gorm.DB) error {
	roles := []models.Role{
		{Name: models.RoleSuperAdmin, Description: "Full system access", IsSystem: true, AccessRights: FullAccess()},
		{Name: models.RoleAdmin, Description: "Administration, except deleting drivers", IsSystem: true, AccessRights: FullAccess()},
		{Name: models.RoleChauffeur, Description: "Default driver role", IsSystem: true, AccessRights: ChauffeurAccess()},
	}
	var catalog []models.Permission
	if err := conn.Find(&catalog).Error; err != nil {
		return err
	}
	for _, r := range roles {
		var role models.Role
		err := conn.Where("name = ?", r.Name).First(&role).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			role = r
			if err := conn.Create(&role).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		case !role.IsSystem:
			if err := conn.Model(&role).Update("is_system", true).Error; err != nil {
				return err
			}
		}
		var perms []models.Permission
		for _, p := range catalog {
			if _, ok := role.AccessRights[p.Module]; ok {
				perms = append(perms, p)
			}
		}
		if err := conn.Model(&role).Association("Permissions").Replace(perms); err != nil {
			return err
		}
	}
	return nil
}
