package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// Visibility scopes who can see a ride.
type Visibility string

const (
	VisibilityPublic Visibility = "public"
	VisibilityGroupe Visibility = "groupe"
)

// RideStatus is the lifecycle status of a ride.
type RideStatus string

const (
	RideDisponible RideStatus = "disponible"
	RideAcceptee   RideStatus = "acceptee"
	RideEnCours    RideStatus = "en_cours"
	RideTerminee   RideStatus = "terminee"
	RideAnnulee    RideStatus = "annulee"
)

// ExecutionStatus is the last execution milestone reached by the accepteur.
type ExecutionStatus string

const (
	ExecutionNone          ExecutionStatus = ""
	ExecutionDepart        ExecutionStatus = "depart"
	ExecutionPriseEnCharge ExecutionStatus = "prise_en_charge"
	ExecutionTerminee      ExecutionStatus = "terminee"
)

// executionOrder ranks milestones; a ride only moves forward.
var executionOrder = map[ExecutionStatus]int{
	ExecutionNone:          0,
	ExecutionDepart:        1,
	ExecutionPriseEnCharge: 2,
	ExecutionTerminee:      3,
}

// Rank returns the position of s in the milestone sequence, -1 when unknown.
func (s ExecutionStatus) Rank() int {
	if r, ok := executionOrder[s]; ok {
		return r
	}
	return -1
}

// StatusVendeurVendue marks a ride whose posting has been sold and executed.
const StatusVendeurVendue = "course_vendue"

var (
	ErrGroupeRequired   = errors.New("a groupe ride requires a groupe")
	ErrGroupeNotAllowed = errors.New("a public ride cannot reference a groupe")
	ErrVisibility       = errors.New("visibility must be public or groupe")
)

// Ride is a client transport booking posted by a vendeur and executed by an accepteur.
type Ride struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	VendeurID   uint    `gorm:"index;not null" json:"vendeur_id"`
	Vendeur     *Driver `gorm:"foreignKey:VendeurID" json:"vendeur,omitempty"`
	AccepteurID *uint   `gorm:"index" json:"accepteur_id,omitempty"`
	Accepteur   *Driver `gorm:"foreignKey:AccepteurID" json:"accepteur,omitempty"`

	Visibility Visibility `gorm:"size:20;not null;default:'public'" json:"visibility"`
	GroupeID   *uint      `gorm:"index" json:"groupe_id,omitempty"`
	Groupe     *Groupe    `gorm:"foreignKey:GroupeID" json:"groupe,omitempty"`

	// Booking
	Depart          string    `gorm:"size:500;not null" json:"depart"`
	Arrivee         string    `gorm:"size:500;not null" json:"arrivee"`
	DateCourse      time.Time `gorm:"not null" json:"date_course"`
	Heure           string    `gorm:"size:5" json:"heure,omitempty"`
	Prix            float64   `gorm:"type:decimal(10,2);not null" json:"prix"`
	Passagers       int       `gorm:"not null;default:1" json:"passagers"`
	Bagages         int       `gorm:"not null;default:0" json:"bagages"`
	TypeVehicule    string    `gorm:"size:50" json:"type_vehicule,omitempty"`
	ClientNom       string    `gorm:"size:255" json:"client_nom,omitempty"`
	ClientTelephone string    `gorm:"size:30" json:"client_telephone,omitempty"`
	Notes           string    `gorm:"type:text" json:"notes,omitempty"`

	Status RideStatus `gorm:"size:20;not null;default:'disponible';index" json:"status"`

	// Execution milestones
	StatutExecution ExecutionStatus `gorm:"size:30" json:"statut_execution"`
	DepartAt        *time.Time      `json:"depart_at,omitempty"`
	PriseEnChargeAt *time.Time      `json:"prise_en_charge_at,omitempty"`
	ArriveeAt       *time.Time      `json:"arrivee_at,omitempty"`
	StatusVendeur   string          `gorm:"size:30" json:"status_vendeur,omitempty"`

	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// CheckVisibility enforces visibility=groupe <=> groupe reference set.
func (r *Ride) CheckVisibility() error {
	switch r.Visibility {
	case VisibilityPublic:
		if r.GroupeID != nil {
			return ErrGroupeNotAllowed
		}
	case VisibilityGroupe:
		if r.GroupeID == nil {
			return ErrGroupeRequired
		}
	default:
		return ErrVisibility
	}
	return nil
}

// BeforeCreate refuses to persist a ride breaking the visibility invariant.
func (r *Ride) BeforeCreate(_ *gorm.DB) error {
	return r.CheckVisibility()
}

// IsParticipant reports whether driverID is the vendeur or the accepteur.
func (r *Ride) IsParticipant(driverID uint) bool {
	return r.VendeurID == driverID || r.IsAccepteur(driverID)
}

// IsAccepteur reports whether driverID accepted the ride.
func (r *Ride) IsAccepteur(driverID uint) bool {
	return r.AccepteurID != nil && *r.AccepteurID == driverID
}

// IsClosed reports whether the ride reached a terminal status.
func (r *Ride) IsClosed() bool {
	return r.Status == RideTerminee || r.Status == RideAnnulee
}

// IsExecuted reports whether the accepteur reached the final milestone.
func (r *Ride) IsExecuted() bool {
	return r.StatutExecution == ExecutionTerminee
}
