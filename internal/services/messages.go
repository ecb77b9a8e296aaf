package services

import (
	"context"
	"errors"
	"time"

	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/diewo77/vtc-exchange/validation"
	"gorm.io/gorm"
)

// MessagingService handles private conversations about a ride.
type MessagingService struct {
	db *gorm.DB
}

func NewMessagingService(db *gorm.DB) *MessagingService {
	return &MessagingService{db: db}
}

// OpenInput designates the ride and, for the vendeur, the other participant.
type OpenInput struct {
	RideID        uint  `json:"ride_id" validate:"required"`
	ParticipantID *uint `json:"participant_id"`
}

// OpenConversation returns the conversation between the actor and the other
// participant about a ride, creating it on first use. One side is always the vendeur.
func (s *MessagingService) OpenConversation(ctx context.Context, actor *models.Driver, in OpenInput) (*models.Conversation, error) {
	if v := validation.Struct(in); !v.Empty() {
		return nil, invalidFields(v)
	}
	db := s.db.WithContext(ctx)
	var ride models.Ride
	if err := db.First(&ride, in.RideID).Error; err != nil {
		return nil, lookup(err, "ride")
	}
	visible, err := rideVisible(db, &ride, actor.ID)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, forbidden("you cannot access this ride")
	}

	other := ride.VendeurID
	if actor.ID == ride.VendeurID {
		if in.ParticipantID == nil {
			return nil, invalidFields(validation.Violations{"participant_id": "required"})
		}
		other = *in.ParticipantID
	} else if in.ParticipantID != nil && *in.ParticipantID != ride.VendeurID {
		return nil, invalid("a conversation must include the vendeur of the ride")
	}
	if other == actor.ID {
		return nil, invalid("you cannot open a conversation with yourself")
	}
	var count int64
	if err := db.Model(&models.Driver{}).Where("id = ?", other).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, notFound("driver not found")
	}

	a, b := models.NormalizePair(actor.ID, other)
	find := func() (*models.Conversation, error) {
		var c models.Conversation
		err := db.Where("ride_id = ? AND participant_a_id = ? AND participant_b_id = ?", ride.ID, a, b).First(&c).Error
		return &c, err
	}
	c, err := find()
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	c = &models.Conversation{RideID: ride.ID, ParticipantAID: a, ParticipantBID: b}
	if err := db.Create(c).Error; err != nil {
		if IsUniqueViolation(err) {
			return find()
		}
		return nil, err
	}
	return c, nil
}

// ConversationSummary is a conversation with the actor's unread count.
type ConversationSummary struct {
	models.Conversation
	Unread int64 `json:"unread"`
}

// ListConversations returns the actor's conversations, most recently active first.
func (s *MessagingService) ListConversations(ctx context.Context, actor *models.Driver) ([]ConversationSummary, error) {
	db := s.db.WithContext(ctx)
	var convs []models.Conversation
	err := db.Preload("Ride").Preload("ParticipantA").Preload("ParticipantB").
		Where("(participant_a_id = ? OR participant_b_id = ?)", actor.ID, actor.ID).
		Order("COALESCE(last_message_at, created_at) DESC, id DESC").
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	out := make([]ConversationSummary, 0, len(convs))
	if len(convs) == 0 {
		return out, nil
	}
	ids := make([]uint, len(convs))
	for i, c := range convs {
		ids[i] = c.ID
	}
	var rows []struct {
		ConversationID uint
		Unread         int64
	}
	err = db.Model(&models.Message{}).
		Select("conversation_id, COUNT(*) AS unread").
		Where("conversation_id IN ? AND sender_id <> ? AND lu = ?", ids, actor.ID, false).
		Group("conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	unread := make(map[uint]int64, len(rows))
	for _, r := range rows {
		unread[r.ConversationID] = r.Unread
	}
	for _, c := range convs {
		out = append(out, ConversationSummary{Conversation: c, Unread: unread[c.ID]})
	}
	return out, nil
}

func (s *MessagingService) participantOf(ctx context.Context, actor *models.Driver, id uint) (*models.Conversation, error) {
	var c models.Conversation
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, lookup(err, "conversation")
	}
	if !c.HasParticipant(actor.ID) {
		return nil, forbidden("you are not a participant of this conversation")
	}
	return &c, nil
}

// Messages returns the messages of a conversation in send order.
func (s *MessagingService) Messages(ctx context.Context, actor *models.Driver, id uint, page Page) ([]models.Message, error) {
	if _, err := s.participantOf(ctx, actor, id); err != nil {
		return nil, err
	}
	var msgs []models.Message
	q := s.db.WithContext(ctx).Where("conversation_id = ?", id).Order("created_at ASC, id ASC")
	err := page.apply(q).Find(&msgs).Error
	return msgs, err
}

// SendInput is the payload of a new message.
type SendInput struct {
	Contenu string `json:"contenu" validate:"notblank,max=5000"`
}

// Send appends a message from the actor.
func (s *MessagingService) Send(ctx context.Context, actor *models.Driver, id uint, in SendInput) (*models.Message, error) {
	if v := validation.Struct(in); !v.Empty() {
		return nil, invalidFields(v)
	}
	c, err := s.participantOf(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	msg := &models.Message{ConversationID: c.ID, SenderID: actor.ID, Contenu: in.Contenu}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(c).Update("last_message_at", msg.CreatedAt).Error
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// MarkRead marks the messages the actor received in a conversation as read.
func (s *MessagingService) MarkRead(ctx context.Context, actor *models.Driver, id uint) (int64, error) {
	if _, err := s.participantOf(ctx, actor, id); err != nil {
		return 0, err
	}
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND lu = ?", id, actor.ID, false).
		Updates(map[string]any{"lu": true, "lu_at": time.Now()})
	return res.RowsAffected, res.Error
}

// UnreadCount counts the messages the actor has not read across conversations.
func (s *MessagingService) UnreadCount(ctx context.Context, actor *models.Driver) (int64, error) {
	db := s.db.WithContext(ctx)
	mine := db.Model(&models.Conversation{}).Select("id").
		Where("(participant_a_id = ? OR participant_b_id = ?)", actor.ID, actor.ID)
	var count int64
	err := db.Model(&models.Message{}).
		Where("conversation_id IN (?) AND sender_id <> ? AND lu = ?", mine, actor.ID, false).
		Count(&count).Error
	return count, err
}
