package models

import "time"

// Activity types recorded in the feed.
const (
	ActivityRegister        = "register"
	ActivityLogin           = "login"
	ActivityLogout          = "logout"
	ActivityProfileUpdate   = "profile_update"
	ActivityRideCreated     = "ride_created"
	ActivityRideAccepted    = "ride_accepted"
	ActivityRideCancelled   = "ride_cancelled"
	ActivityRideStatus      = "ride_status"
	ActivityFactureIssued   = "facture_issued"
	ActivityFacturePaid     = "facture_paid"
	ActivityTransactionDone = "transaction_completed"
	ActivityGroupeCreated   = "groupe_created"
	ActivityGroupeJoined    = "groupe_joined"
	ActivityDocumentUpload  = "document_uploaded"
	ActivityAvisGiven       = "avis_given"
)

// ActivityLog is an entry of a driver's activity feed.
type ActivityLog struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
	ChauffeurID uint           `gorm:"index;not null" json:"chauffeur_id"`
	Type        string         `gorm:"size:50;not null;index" json:"type"`
	Description string         `gorm:"size:500" json:"description"`
	Metadata    map[string]any `gorm:"serializer:json;type:text" json:"metadata,omitempty"`
	IP          string         `gorm:"size:64" json:"ip,omitempty"`
	UserAgent   string         `gorm:"size:255" json:"user_agent,omitempty"`
}
