package models

import "time"

// Bounds of a review note.
const (
	NoteMin = 1
	NoteMax = 5
)

// Avis is the single review the accepteur leaves on an executed ride.
type Avis struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	RideID          uint    `gorm:"uniqueIndex;not null" json:"ride_id"`
	Ride            *Ride   `gorm:"foreignKey:RideID" json:"ride,omitempty"`
	AuteurID        uint    `gorm:"index;not null" json:"auteur_id"`
	Auteur          *Driver `gorm:"foreignKey:AuteurID" json:"auteur,omitempty"`
	ChauffeurNoteID uint    `gorm:"index;not null" json:"chauffeur_note_id"`
	ChauffeurNote   *Driver `gorm:"foreignKey:ChauffeurNoteID" json:"chauffeur_note,omitempty"`

	Note        int    `gorm:"not null" json:"note"`
	Commentaire string `gorm:"type:text" json:"commentaire,omitempty"`
}

// TableName pins the plural used by the schema.
func (Avis) TableName() string { return "avis" }

