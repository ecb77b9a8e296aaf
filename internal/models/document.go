package models

import "time"

// DocumentType is the kind of compliance document a driver uploads.
type DocumentType string

const (
	DocumentPermis        DocumentType = "permis"
	DocumentCarteVTC      DocumentType = "carte_vtc"
	DocumentKbis          DocumentType = "kbis"
	DocumentAssurance     DocumentType = "assurance"
	DocumentCarteGrise    DocumentType = "carte_grise"
	DocumentPieceIdentite DocumentType = "piece_identite"
	DocumentAutre         DocumentType = "autre"
)

// Valid reports whether t is a known document type.
func (t DocumentType) Valid() bool {
	switch t {
	case DocumentPermis, DocumentCarteVTC, DocumentKbis, DocumentAssurance,
		DocumentCarteGrise, DocumentPieceIdentite, DocumentAutre:
		return true
	}
	return false
}

// DocumentStatus is the review state of a document.
type DocumentStatus string

const (
	DocumentStatusPending  DocumentStatus = "pending"
	DocumentStatusApproved DocumentStatus = "approved"
	DocumentStatusRejected DocumentStatus = "rejected"
)

// Document is an uploaded file owned by a driver.
type Document struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ChauffeurID  uint         `gorm:"index;not null" json:"chauffeur_id"`
	Chauffeur    *Driver      `gorm:"foreignKey:ChauffeurID" json:"chauffeur,omitempty"`
	Type         DocumentType `gorm:"size:30;not null" json:"type"`
	Filename     string       `gorm:"size:255;not null" json:"-"` // blob key
	OriginalName string       `gorm:"size:255" json:"original_name"`
	MimeType     string       `gorm:"size:100" json:"mime_type"`
	Size         int64        `json:"size"`

	Status          DocumentStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	ValidatedByID   *uint          `json:"validated_by_id,omitempty"`
	RejectionReason string         `gorm:"size:500" json:"rejection_reason,omitempty"`
	ValidatedAt     *time.Time     `json:"validated_at,omitempty"`
	ExpiresAt       *time.Time     `json:"expires_at,omitempty"`

	ShareToken     *string    `gorm:"uniqueIndex;size:64" json:"share_token,omitempty"`
	ShareExpiresAt *time.Time `json:"share_expires_at,omitempty"`
}

// IsShared reports whether the share link is usable at now.
func (d *Document) IsShared(now time.Time) bool {
	return d.ShareToken != nil && d.ShareExpiresAt != nil && now.Before(*d.ShareExpiresAt)
}

// OwnerID returns the driver who uploaded the document.
func (d *Document) OwnerID() uint { return d.ChauffeurID }
