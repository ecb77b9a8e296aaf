package services

import (
	"context"
	"time"

	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/diewo77/vtc-exchange/validation"
	"gorm.io/gorm"
)

// TrackingService stores GPS samples of rides in progress.
type TrackingService struct {
	db  *gorm.DB
	hub PositionPublisher
}

func NewTrackingService(db *gorm.DB, hub PositionPublisher) *TrackingService {
	return &TrackingService{db: db, hub: hub}
}

// PositionInput is one GPS sample. RecordedAt defaults to the server time.
type PositionInput struct {
	Latitude   *float64   `json:"latitude" validate:"required"`
	Longitude  *float64   `json:"longitude" validate:"required"`
	Speed      *float64   `json:"speed" validate:"omitempty,gte=0"`
	Heading    *float64   `json:"heading" validate:"omitempty,gte=0,lt=360"`
	Accuracy   *float64   `json:"accuracy" validate:"omitempty,gte=0"`
	RecordedAt *time.Time `json:"recorded_at"`
}

// validate checks the tags, then the coordinate bounds.
func (in PositionInput) validate() validation.Violations {
	v := validation.Violations{}
	v.Merge(validation.Struct(in))
	if in.Latitude != nil {
		validation.RangeFloat("latitude", *in.Latitude, -90, 90, v)
	}
	if in.Longitude != nil {
		validation.RangeFloat("longitude", *in.Longitude, -180, 180, v)
	}
	return v
}

func (s *TrackingService) ride(ctx context.Context, id uint) (*models.Ride, error) {
	var r models.Ride
	if err := s.db.WithContext(ctx).First(&r, id).Error; err != nil {
		return nil, lookup(err, "ride")
	}
	return &r, nil
}

// Record stores a sample sent by the accepteur of a ride in progress and
// pushes it to live subscribers.
func (s *TrackingService) Record(ctx context.Context, actor *models.Driver, rideID uint, in PositionInput) (*models.RideTracking, error) {
	if v := in.validate(); !v.Empty() {
		return nil, invalidFields(v)
	}
	r, err := s.ride(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if !r.IsAccepteur(actor.ID) {
		return nil, forbidden("only the accepteur can send positions")
	}
	if r.Status != models.RideEnCours {
		return nil, conflict("ride is not in progress")
	}
	sample := &models.RideTracking{
		RideID:      r.ID,
		ChauffeurID: actor.ID,
		Latitude:    *in.Latitude,
		Longitude:   *in.Longitude,
		Speed:       in.Speed,
		Heading:     in.Heading,
		Accuracy:    in.Accuracy,
		RecordedAt:  time.Now().UTC(),
	}
	if in.RecordedAt != nil {
		sample.RecordedAt = in.RecordedAt.UTC()
	}
	// Pollers resume strictly after the last recorded_at they saw, so samples must arrive in order.
	var latest models.RideTracking
	if err := s.db.WithContext(ctx).Where("ride_id = ?", r.ID).
		Order("recorded_at DESC, id DESC").Limit(1).Find(&latest).Error; err != nil {
		return nil, err
	}
	if latest.ID != 0 && !sample.RecordedAt.After(latest.RecordedAt) {
		return nil, invalidFields(validation.Violations{"recorded_at": "out_of_order"})
	}
	if err := s.db.WithContext(ctx).Create(sample).Error; err != nil {
		return nil, err
	}
	if s.hub != nil {
		s.hub.Publish(*sample)
	}
	return sample, nil
}

// CanRead checks that the actor is the vendeur or the accepteur of the ride.
func (s *TrackingService) CanRead(ctx context.Context, actor *models.Driver, rideID uint) error {
	r, err := s.ride(ctx, rideID)
	if err != nil {
		return err
	}
	if !r.IsParticipant(actor.ID) {
		return forbidden("only the participants can follow this ride")
	}
	return nil
}

// Track returns the samples of a ride in chronological order, after since when given.
func (s *TrackingService) Track(ctx context.Context, actor *models.Driver, rideID uint, since *time.Time) ([]models.RideTracking, error) {
	if err := s.CanRead(ctx, actor, rideID); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Where("ride_id = ?", rideID)
	if since != nil {
		q = q.Where("recorded_at > ?", since.UTC())
	}
	var samples []models.RideTracking
	err := q.Order("recorded_at ASC, id ASC").Find(&samples).Error
	return samples, err
}

// Last returns the latest sample of a ride.
func (s *TrackingService) Last(ctx context.Context, actor *models.Driver, rideID uint) (*models.RideTracking, error) {
	if err := s.CanRead(ctx, actor, rideID); err != nil {
		return nil, err
	}
	var sample models.RideTracking
	err := s.db.WithContext(ctx).Where("ride_id = ?", rideID).Order("recorded_at DESC, id DESC").First(&sample).Error
	if err != nil {
		return nil, lookup(err, "position")
	}
	return &sample, nil
}
