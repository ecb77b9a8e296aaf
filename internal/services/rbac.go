package services

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/diewo77/vtc-exchange/validation"
	"gorm.io/gorm"
)

// RBACService manages roles, their access rights and role assignment.
type RBACService struct {
	db    *gorm.DB
	cache ProfileCache
}

func NewRBACService(db *gorm.DB, cache ProfileCache) *RBACService {
	return &RBACService{db: db, cache: cache}
}

// RoleInput is the payload of role creation and update.
type RoleInput struct {
	Name         string              `json:"name" validate:"notblank,max=100"`
	Description  string              `json:"description" validate:"max=500"`
	AccessRights models.AccessRights `json:"access_rights"`
}

// ListRoles returns every role, system roles first.
func (s *RBACService) ListRoles(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	err := s.db.WithContext(ctx).Order("is_system DESC, name ASC").Find(&roles).Error
	return roles, err
}

// ListPermissions returns the permission catalog.
func (s *RBACService) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	var perms []models.Permission
	err := s.db.WithContext(ctx).Order("module ASC").Find(&perms).Error
	return perms, err
}

// checkRights verifies every module and action against the catalog and returns
// the matching catalog entries.
func (s *RBACService) checkRights(tx *gorm.DB, rights models.AccessRights) ([]models.Permission, error) {
	var catalog []models.Permission
	if err := tx.Find(&catalog).Error; err != nil {
		return nil, err
	}
	byModule := make(map[string]models.Permission, len(catalog))
	for _, p := range catalog {
		byModule[p.Module] = p
	}
	v := validation.Violations{}
	var perms []models.Permission
	for module, actions := range rights {
		p, ok := byModule[module]
		if !ok {
			v.Add("access_rights."+module, "unknown_module")
			continue
		}
		for _, a := range actions {
			if !p.Supports(a) {
				v.Add("access_rights."+module, "invalid_action")
			}
		}
		perms = append(perms, p)
	}
	if !v.Empty() {
		return nil, invalidFields(v)
	}
	return perms, nil
}

func cleanRights(in models.AccessRights) models.AccessRights {
	out := models.AccessRights{}
	for module, actions := range in {
		list := slices.Clone(actions)
		slices.Sort(list)
		out[module] = slices.Compact(list)
	}
	return out
}

// CreateRole adds a custom role.
func (s *RBACService) CreateRole(ctx context.Context, in RoleInput) (*models.Role, error) {
	if v := validation.Struct(in); !v.Empty() {
		return nil, invalidFields(v)
	}
	role := &models.Role{
		Name:         strings.TrimSpace(in.Name),
		Description:  in.Description,
		AccessRights: cleanRights(in.AccessRights),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		perms, err := s.checkRights(tx, role.AccessRights)
		if err != nil {
			return err
		}
		if err := tx.Omit("Permissions").Create(role).Error; err != nil {
			if IsUniqueViolation(err) {
				return conflict("role name already exists")
			}
			return err
		}
		return tx.Model(role).Association("Permissions").Replace(perms)
	})
	if err != nil {
		return nil, err
	}
	return role, nil
}

// UpdateRole edits a role. System roles keep their name; only their access rights change.
func (s *RBACService) UpdateRole(ctx context.Context, id uint, in RoleInput) (*models.Role, error) {
	if v := validation.Struct(in); !v.Empty() {
		return nil, invalidFields(v)
	}
	var role models.Role
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&role, id).Error; err != nil {
			return lookup(err, "role")
		}
		name := strings.TrimSpace(in.Name)
		if role.IsSystem && name != role.Name {
			return conflict("system roles cannot be renamed")
		}
		rights := cleanRights(in.AccessRights)
		perms, err := s.checkRights(tx, rights)
		if err != nil {
			return err
		}
		role.Name = name
		role.Description = in.Description
		role.AccessRights = rights
		if err := tx.Omit("Permissions").Save(&role).Error; err != nil {
			if IsUniqueViolation(err) {
				return conflict("role name already exists")
			}
			return err
		}
		return tx.Model(&role).Association("Permissions").Replace(perms)
	})
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.InvalidateAll()
	}
	return &role, nil
}

// DeleteRole removes a custom role that no driver holds.
func (s *RBACService) DeleteRole(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var role models.Role
		if err := tx.First(&role, id).Error; err != nil {
			return lookup(err, "role")
		}
		if role.IsSystem {
			return conflict("system roles cannot be deleted")
		}
		holders := tx.Model(&role).Association("Drivers")
		if holders.Error != nil {
			return holders.Error
		}
		n := holders.Count()
		if holders.Error != nil {
			return holders.Error
		}
		if n > 0 {
			return conflict("role is assigned to drivers")
		}
		if err := tx.Model(&role).Association("Permissions").Clear(); err != nil {
			return err
		}
		return tx.Delete(&role).Error
	})
	if err == nil && s.cache != nil {
		s.cache.InvalidateAll()
	}
	return err
}

// AssignRole replaces the roles of a driver with a single role.
// Only a SuperAdmin grants SuperAdmin, and nobody changes their own role.
func (s *RBACService) AssignRole(ctx context.Context, actor *models.Driver, driverID, roleID uint) (*models.Driver, error) {
	if driverID == actor.ID {
		return nil, conflict("you cannot change your own role")
	}
	var target models.Driver
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Roles").First(&target, driverID).Error; err != nil {
			return lookup(err, "driver")
		}
		var role models.Role
		if err := tx.First(&role, roleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return invalidFields(validation.Violations{"role_id": "not_found"})
			}
			return err
		}
		superAdmin := actor.HasRole(models.RoleSuperAdmin)
		if !superAdmin && (role.Name == models.RoleSuperAdmin || target.HasRole(models.RoleSuperAdmin)) {
			return forbidden("only a super administrator can manage super administrators")
		}
		if err := tx.Model(&target).Association("Roles").Replace([]models.Role{role}); err != nil {
			return err
		}
		target.Roles = []models.Role{role}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.InvalidateUser(driverID)
	}
	return &target, nil
}
