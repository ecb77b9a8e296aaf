package models

import (
	"strings"
	"time"
)

// DriverStatus represents the account status of a driver.
type DriverStatus string

const (
	DriverStatusActive  DriverStatus = "active"
	DriverStatusBlocked DriverStatus = "blocked"
	DriverStatusPending DriverStatus = "pending"
)

// Valid reports whether s is a known account status.
func (s DriverStatus) Valid() bool {
	switch s {
	case DriverStatusActive, DriverStatusBlocked, DriverStatusPending:
		return true
	}
	return false
}

// Driver (chauffeur) is the authenticated identity of the marketplace.
type Driver struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Email    string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password string `gorm:"size:255;not null" json:"-"` // bcrypt hash, never exposed

	Nom       string `gorm:"size:100" json:"nom"`
	Prenom    string `gorm:"size:100" json:"prenom"`
	Telephone string `gorm:"size:30" json:"telephone,omitempty"`

	// Company
	Societe string `gorm:"size:255" json:"societe,omitempty"`
	SIRET   string `gorm:"size:14" json:"siret,omitempty"`
	Adresse string `gorm:"size:500" json:"adresse,omitempty"`

	// Licenses
	NumeroPermis   string `gorm:"size:50" json:"numero_permis,omitempty"`
	NumeroCarteVTC string `gorm:"size:50" json:"numero_carte_vtc,omitempty"`

	// Vehicle
	VehiculeMarque          string `gorm:"size:100" json:"vehicule_marque,omitempty"`
	VehiculeModele          string `gorm:"size:100" json:"vehicule_modele,omitempty"`
	VehiculeImmatriculation string `gorm:"size:20" json:"vehicule_immatriculation,omitempty"`

	Status     DriverStatus `gorm:"size:20;not null;default:'active'" json:"status"`
	LastSeenAt *time.Time   `json:"last_seen_at,omitempty"`

	Roles   []Role    `gorm:"many2many:chauffeur_roles;joinForeignKey:ChauffeurID;joinReferences:RoleID" json:"roles,omitempty"`
	Favoris []*Driver `gorm:"many2many:chauffeur_favoris;joinForeignKey:ChauffeurID;joinReferences:FavoriID" json:"-"`
}

// TableName keeps the historical table name.
func (Driver) TableName() string { return "chauffeurs" }

// FullName returns "Prenom Nom", trimmed.
func (d *Driver) FullName() string {
	return strings.TrimSpace(d.Prenom + " " + d.Nom)
}

// IsActive reports whether the driver may use the application.
func (d *Driver) IsActive() bool {
	return d.Status == DriverStatusActive
}

// HasRole reports whether one of the loaded roles has the given name.
func (d *Driver) HasRole(name string) bool {
	for _, r := range d.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// IsProtected reports whether the driver holds an administrative role.
// Protected drivers are skipped by bulk deletion.
func (d *Driver) IsProtected() bool {
	return d.HasRole(RoleSuperAdmin) || d.HasRole(RoleAdmin)
}
