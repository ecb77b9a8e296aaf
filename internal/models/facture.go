package models

import (
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"
)

// DefaultTauxTVA is the VAT rate (percent) applied when none is given.
const DefaultTauxTVA = 20.0

// FactureType tells who bills whom for which role in the ride.
type FactureType string

const (
	FacturePrestation    FactureType = "prestation"
	FactureSousTraitance FactureType = "sous_traitance"
)

// Valid reports whether t is a known invoice type.
func (t FactureType) Valid() bool {
	return t == FacturePrestation || t == FactureSousTraitance
}

// FactureStatus represents the status of an invoice.
type FactureStatus string

const (
	FactureDraft     FactureStatus = "draft"
	FactureIssued    FactureStatus = "issued"
	FacturePaid      FactureStatus = "paid"
	FactureCancelled FactureStatus = "cancelled"
)

// PartySnapshot freezes the identity of an emitter or recipient at creation time.
type PartySnapshot struct {
	DriverID  uint   `json:"driver_id"`
	Nom       string `json:"nom"`
	Prenom    string `json:"prenom"`
	Email     string `json:"email"`
	Telephone string `json:"telephone,omitempty"`
	Societe   string `json:"societe,omitempty"`
	SIRET     string `json:"siret,omitempty"`
	Adresse   string `json:"adresse,omitempty"`
}

// SnapshotParty copies the billing identity of d.
func SnapshotParty(d *Driver) PartySnapshot {
	if d == nil {
		return PartySnapshot{}
	}
	return PartySnapshot{
		DriverID:  d.ID,
		Nom:       d.Nom,
		Prenom:    d.Prenom,
		Email:     d.Email,
		Telephone: d.Telephone,
		Societe:   d.Societe,
		SIRET:     d.SIRET,
		Adresse:   d.Adresse,
	}
}

// DisplayName returns the company name, or the person name when there is none.
func (p PartySnapshot) DisplayName() string {
	if p.Societe != "" {
		return p.Societe
	}
	return p.Prenom + " " + p.Nom
}

// CourseSnapshot freezes the ride details printed on an invoice.
type CourseSnapshot struct {
	RideID     uint      `json:"ride_id"`
	Depart     string    `json:"depart"`
	Arrivee    string    `json:"arrivee"`
	DateCourse time.Time `json:"date_course"`
	Heure      string    `json:"heure,omitempty"`
	Passagers  int       `json:"passagers"`
	Bagages    int       `json:"bagages"`
	Prix       float64   `json:"prix"`
}

// SnapshotCourse copies the invoice-relevant details of r.
func SnapshotCourse(r *Ride) CourseSnapshot {
	return CourseSnapshot{
		RideID:     r.ID,
		Depart:     r.Depart,
		Arrivee:    r.Arrivee,
		DateCourse: r.DateCourse,
		Heure:      r.Heure,
		Passagers:  r.Passagers,
		Bagages:    r.Bagages,
		Prix:       r.Prix,
	}
}

// Facture is an invoice between two drivers. Once issued only its status moves.
type Facture struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Numero is assigned when the invoice is issued; drafts have none.
	Numero *string     `gorm:"uniqueIndex;size:20" json:"numero,omitempty"`
	Type   FactureType `gorm:"size:20;not null" json:"type"`

	RideID        *uint        `gorm:"index" json:"ride_id,omitempty"`
	Ride          *Ride        `gorm:"foreignKey:RideID" json:"-"`
	TransactionID *uint        `gorm:"index" json:"transaction_id,omitempty"`
	Transaction   *Transaction `gorm:"foreignKey:TransactionID" json:"-"`

	EmetteurID     uint    `gorm:"index;not null" json:"emetteur_id"`
	Emetteur       *Driver `gorm:"foreignKey:EmetteurID" json:"-"`
	DestinataireID uint    `gorm:"index;not null" json:"destinataire_id"`
	Destinataire   *Driver `gorm:"foreignKey:DestinataireID" json:"-"`

	MontantHT  float64 `gorm:"type:decimal(12,2);not null" json:"montant_ht"`
	TauxTVA    float64 `gorm:"type:decimal(5,2);not null" json:"taux_tva"`
	MontantTVA float64 `gorm:"type:decimal(12,2);not null" json:"montant_tva"`
	MontantTTC float64 `gorm:"type:decimal(12,2);not null" json:"montant_ttc"`

	Status       FactureStatus `gorm:"size:20;not null;default:'draft';index" json:"status"`
	DateEmission *time.Time    `json:"date_emission,omitempty"`
	DateEcheance *time.Time    `json:"date_echeance,omitempty"`
	PaidAt       *time.Time    `json:"paid_at,omitempty"`
	Notes        string        `gorm:"type:text" json:"notes,omitempty"`

	EmetteurSnapshot     PartySnapshot   `gorm:"serializer:json;type:text" json:"emetteur"`
	DestinataireSnapshot PartySnapshot   `gorm:"serializer:json;type:text" json:"destinataire"`
	CourseSnapshot       *CourseSnapshot `gorm:"serializer:json;type:text" json:"course,omitempty"`
}

// RoundAmount rounds a monetary value to cents.
func RoundAmount(v float64) float64 {
	return math.Round(v*100) / 100
}

// ComputeAmounts derives VAT and TTC from HT and the VAT rate.
func (f *Facture) ComputeAmounts() {
	f.MontantHT = RoundAmount(f.MontantHT)
	f.MontantTTC = RoundAmount(f.MontantHT * (1 + f.TauxTVA/100))
	f.MontantTVA = RoundAmount(f.MontantTTC - f.MontantHT)
}

// SetMontantHT changes HT and recomputes the derived amounts.
func (f *Facture) SetMontantHT(ht float64) {
	f.MontantHT = ht
	f.ComputeAmounts()
}

// SetTauxTVA changes the VAT rate and recomputes the derived amounts.
func (f *Facture) SetTauxTVA(rate float64) {
	f.TauxTVA = rate
	f.ComputeAmounts()
}

// BeforeSave keeps the cached amounts consistent with HT and rate.
func (f *Facture) BeforeSave(_ *gorm.DB) error {
	f.ComputeAmounts()
	return nil
}

// IsEditable reports whether amounts may still change.
func (f *Facture) IsEditable() bool {
	return f.Status == FactureDraft
}

// NumeroString returns the invoice number or "" for drafts.
func (f *Facture) NumeroString() string {
	if f.Numero == nil {
		return ""
	}
	return *f.Numero
}

// FormatNumero renders an invoice number: FAC-YYYY-NNNNNN.
func FormatNumero(year, seq int) string {
	return fmt.Sprintf("FAC-%d-%06d", year, seq)
}

// FactureSequence is the per-year invoice counter.
type FactureSequence struct {
	Annee         int `gorm:"primaryKey;autoIncrement:false" json:"annee"`
	DernierNumero int `gorm:"not null;default:0" json:"dernier_numero"`
}
