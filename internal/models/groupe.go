package models

import "time"

// MaxActiveGroupesPerOwner caps the number of active groups a driver may own.
const MaxActiveGroupesPerOwner = 5

// InvitationTTL is how long an invitation token stays valid.
const InvitationTTL = 7 * 24 * time.Hour

// MembreRole is the role of a driver inside a group.
type MembreRole string

const (
	MembreRoleMembre MembreRole = "membre"
	MembreRoleAdmin  MembreRole = "admin"
)

// Valid reports whether r is a known membership role.
func (r MembreRole) Valid() bool {
	return r == MembreRoleMembre || r == MembreRoleAdmin
}

// InvitationStatus is the lifecycle state of a group invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
	InvitationExpired  InvitationStatus = "expired"
)

// Groupe is a trust circle of drivers who can see each other's private rides.
// The owner is a member without a membership row.
type Groupe struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Nom         string    `gorm:"size:150;not null" json:"nom"`
	Description string    `gorm:"type:text" json:"description,omitempty"`

	ProprietaireID uint    `gorm:"index;not null" json:"proprietaire_id"`
	Proprietaire   *Driver `gorm:"foreignKey:ProprietaireID" json:"proprietaire,omitempty"`

	Code  string `gorm:"uniqueIndex;size:8;not null" json:"code"`
	Actif bool   `gorm:"not null;default:true" json:"actif"`

	Membres     []GroupeMembre     `gorm:"foreignKey:GroupeID" json:"membres,omitempty"`
	Invitations []GroupeInvitation `gorm:"foreignKey:GroupeID" json:"-"`
}

// IsOwner reports whether driverID owns the group.
func (g *Groupe) IsOwner(driverID uint) bool {
	return g.ProprietaireID == driverID
}

// GroupeMembre is the membership row of a non-owner driver.
type GroupeMembre struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	GroupeID    uint       `gorm:"uniqueIndex:idx_groupe_membre;not null" json:"groupe_id"`
	ChauffeurID uint       `gorm:"uniqueIndex:idx_groupe_membre;index;not null" json:"chauffeur_id"`
	Chauffeur   *Driver    `gorm:"foreignKey:ChauffeurID" json:"chauffeur,omitempty"`
	Role        MembreRole `gorm:"size:20;not null;default:'membre'" json:"role"`
	InvitedByID *uint      `json:"invited_by_id,omitempty"`
	JoinedAt    time.Time  `gorm:"not null" json:"joined_at"`
}

// GroupeInvitation addresses a driver (or a bare e-mail) with a one-time token.
type GroupeInvitation struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time        `json:"created_at"`
	GroupeID    uint             `gorm:"index;not null" json:"groupe_id"`
	Groupe      *Groupe          `gorm:"foreignKey:GroupeID" json:"groupe,omitempty"`
	InviteurID  uint             `gorm:"not null" json:"inviteur_id"`
	ChauffeurID *uint            `gorm:"index" json:"chauffeur_id,omitempty"`
	Email       string           `gorm:"size:255;index" json:"email,omitempty"`
	Token       string           `gorm:"uniqueIndex;size:64;not null" json:"token"`
	Status      InvitationStatus `gorm:"size:20;not null;default:'pending'" json:"status"`
	ExpiresAt   time.Time        `gorm:"not null" json:"expires_at"`
	RespondedAt *time.Time       `json:"responded_at,omitempty"`
}

// IsExpired reports whether the invitation can no longer be answered at now.
func (i *GroupeInvitation) IsExpired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// OwnerID returns the group owner.
func (g *Groupe) OwnerID() uint { return g.ProprietaireID }
