package models

import (
	"slices"
	"time"
)

// Built-in role names. These roles are seeded with IsSystem set.
const (
	RoleSuperAdmin = "SuperAdmin"
	RoleAdmin      = "Admin"
	RoleChauffeur  = "Chauffeur"
)

// Modules guarded by access rights.
const (
	ModuleRides        = "rides"
	ModuleGroupes      = "groupes"
	ModuleFactures     = "factures"
	ModuleTransactions = "transactions"
	ModuleAvis         = "avis"
	ModuleMessages     = "messages"
	ModuleTracking     = "tracking"
	ModuleDocuments    = "documents"
	ModuleChauffeurs   = "chauffeurs"
	ModuleRBAC         = "rbac"
	ModuleActivity     = "activity"
)

// AccessRights maps a module to the actions (read, write, delete) a role grants on it.
type AccessRights map[string][]string

// Allows reports whether action is listed under module.
func (a AccessRights) Allows(module, action string) bool {
	return slices.Contains(a[module], action)
}

// Role is a named bundle of access rights assigned to drivers.
type Role struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Name        string    `gorm:"uniqueIndex;size:100;not null" json:"name"`
	Description string    `gorm:"size:500" json:"description,omitempty"`
	// IsSystem protects built-in roles from deletion and renaming.
	IsSystem     bool         `gorm:"not null;default:false" json:"is_system"`
	AccessRights AccessRights `gorm:"serializer:json;type:text" json:"access_rights"`

	Permissions []Permission `gorm:"many2many:role_permissions;" json:"permissions,omitempty"`
	Drivers     []Driver     `gorm:"many2many:chauffeur_roles;joinForeignKey:RoleID;joinReferences:ChauffeurID" json:"-"`
}

// Permission is a catalog entry describing a module and the actions it supports.
type Permission struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Module    string    `gorm:"uniqueIndex;size:50;not null" json:"module"`
	Label     string    `gorm:"size:200" json:"label"`
	Actions   []string  `gorm:"serializer:json;type:text" json:"actions"`
}

// Supports reports whether the catalog entry lists action.
func (p Permission) Supports(action string) bool {
	return slices.Contains(p.Actions, action)
}
