package models

import "time"

// Conversation is a private thread between two drivers about one ride.
// The pair is stored normalized: ParticipantAID < ParticipantBID.
type Conversation struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RideID         uint    `gorm:"uniqueIndex:idx_conversation_pair;not null" json:"ride_id"`
	Ride           *Ride   `gorm:"foreignKey:RideID" json:"ride,omitempty"`
	ParticipantAID uint    `gorm:"uniqueIndex:idx_conversation_pair;index;not null" json:"participant_a_id"`
	ParticipantA   *Driver `gorm:"foreignKey:ParticipantAID" json:"participant_a,omitempty"`
	ParticipantBID uint    `gorm:"uniqueIndex:idx_conversation_pair;index;not null" json:"participant_b_id"`
	ParticipantB   *Driver `gorm:"foreignKey:ParticipantBID" json:"participant_b,omitempty"`

	LastMessageAt *time.Time `gorm:"index" json:"last_message_at,omitempty"`

	Messages []Message `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
}

// NormalizePair orders two driver ids so that the smaller comes first.
func NormalizePair(x, y uint) (uint, uint) {
	if x > y {
		return y, x
	}
	return x, y
}

// HasParticipant reports whether driverID is one of the two participants.
func (c *Conversation) HasParticipant(driverID uint) bool {
	return c.ParticipantAID == driverID || c.ParticipantBID == driverID
}

// OtherParticipant returns the id of the participant that is not driverID.
func (c *Conversation) OtherParticipant(driverID uint) uint {
	if c.ParticipantAID == driverID {
		return c.ParticipantBID
	}
	return c.ParticipantAID
}

// Message is an immutable entry of a conversation.
type Message struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`
	ConversationID uint       `gorm:"index;not null" json:"conversation_id"`
	SenderID       uint       `gorm:"index;not null" json:"sender_id"`
	Contenu        string     `gorm:"type:text;not null" json:"contenu"`
	Lu             bool       `gorm:"not null;default:false" json:"lu"`
	LuAt           *time.Time `json:"lu_at,omitempty"`
}
