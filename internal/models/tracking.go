package models

import "time"

// RideTracking is one GPS sample reported by the accepteur during a ride.
type RideTracking struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RideID      uint      `gorm:"index:idx_tracking_ride_time;not null" json:"ride_id"`
	ChauffeurID uint      `gorm:"index;not null" json:"chauffeur_id"`
	Latitude    float64   `gorm:"not null" json:"latitude"`
	Longitude   float64   `gorm:"not null" json:"longitude"`
	Speed       *float64  `json:"speed,omitempty"`
	Heading     *float64  `json:"heading,omitempty"`
	Accuracy    *float64  `json:"accuracy,omitempty"`
	RecordedAt  time.Time `gorm:"index:idx_tracking_ride_time;not null" json:"recorded_at"`
}

// TableName keeps tracking samples in a single table.
func (RideTracking) TableName() string { return "ride_tracking" }
