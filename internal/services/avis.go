package services

import (
	"context"
	"fmt"

	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/diewo77/vtc-exchange/validation"
	"gorm.io/gorm"
)

// AvisService records the review an accepteur leaves on an executed ride.
type AvisService struct {
	db       *gorm.DB
	activity *ActivityService
}

func NewAvisService(db *gorm.DB, activity *ActivityService) *AvisService {
	return &AvisService{db: db, activity: activity}
}

// AvisInput is the payload of a review.
type AvisInput struct {
	RideID      uint   `json:"ride_id" validate:"required"`
	Note        int    `json:"note"`
	Commentaire string `json:"commentaire" validate:"max=2000"`
}

// Eligibility tells whether the actor may review a ride, and why not.
type Eligibility struct {
	CanRate bool   `json:"can_rate"`
	Reason  string `json:"reason,omitempty"`
}

// eligibility checks the review gate: the actor is the accepteur, the ride is
// executed and has no review yet. Reason is an error message when not eligible.
func eligibility(db *gorm.DB, ride *models.Ride, actorID uint) (Eligibility, error) {
	if !ride.IsAccepteur(actorID) {
		return Eligibility{Reason: "only the accepteur can review this ride"}, nil
	}
	if !ride.IsExecuted() {
		return Eligibility{Reason: "the ride has not been executed yet"}, nil
	}
	var count int64
	if err := db.Model(&models.Avis{}).Where("ride_id = ?", ride.ID).Count(&count).Error; err != nil {
		return Eligibility{}, err
	}
	if count > 0 {
		return Eligibility{Reason: "this ride has already been reviewed"}, nil
	}
	return Eligibility{CanRate: true}, nil
}

// CanRate reports whether the actor may review the ride.
func (s *AvisService) CanRate(ctx context.Context, actor *models.Driver, rideID uint) (Eligibility, error) {
	var ride models.Ride
	if err := s.db.WithContext(ctx).First(&ride, rideID).Error; err != nil {
		return Eligibility{}, lookup(err, "ride")
	}
	return eligibility(s.db.WithContext(ctx), &ride, actor.ID)
}

// Create records the actor's review of the vendeur. Reviews are immutable.
func (s *AvisService) Create(ctx context.Context, actor *models.Driver, in AvisInput) (*models.Avis, error) {
	v := validation.Struct(in)
	validation.RangeInt("note", in.Note, models.NoteMin, models.NoteMax, v)
	if !v.Empty() {
		return nil, invalidFields(v)
	}
	var ride models.Ride
	if err := s.db.WithContext(ctx).First(&ride, in.RideID).Error; err != nil {
		return nil, lookup(err, "ride")
	}
	el, err := eligibility(s.db.WithContext(ctx), &ride, actor.ID)
	if err != nil {
		return nil, err
	}
	if !el.CanRate {
		if !ride.IsAccepteur(actor.ID) {
			return nil, forbidden(el.Reason)
		}
		return nil, conflict(el.Reason)
	}
	a := &models.Avis{
		RideID:          ride.ID,
		AuteurID:        actor.ID,
		ChauffeurNoteID: ride.VendeurID,
		Note:            in.Note,
		Commentaire:     in.Commentaire,
	}
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		if IsUniqueViolation(err) {
			return nil, conflict("this ride has already been reviewed")
		}
		return nil, err
	}
	s.activity.Log(ctx, actor.ID, models.ActivityAvisGiven, fmt.Sprintf("Avis donné : %d/5", a.Note), map[string]any{"ride_id": ride.ID, "avis_id": a.ID})
	return a, nil
}

// Rating is the review summary of a driver.
type Rating struct {
	ChauffeurID uint          `json:"chauffeur_id"`
	Moyenne     float64       `json:"moyenne"`
	Total       int64         `json:"total"`
	Avis        []models.Avis `json:"avis"`
}

// ForChauffeur returns the reviews a driver received with their average note.
func (s *AvisService) ForChauffeur(ctx context.Context, chauffeurID uint, page Page) (*Rating, error) {
	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&models.Driver{}).Where("id = ?", chauffeurID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, notFound("driver not found")
	}
	var agg struct {
		Moyenne float64
		Total   int64
	}
	err := db.Model(&models.Avis{}).
		Select("COALESCE(AVG(note), 0) AS moyenne, COUNT(*) AS total").
		Where("chauffeur_note_id = ?", chauffeurID).
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}
	r := &Rating{ChauffeurID: chauffeurID, Moyenne: models.RoundAmount(agg.Moyenne), Total: agg.Total}
	q := db.Preload("Auteur").Where("chauffeur_note_id = ?", chauffeurID).Order("created_at DESC, id DESC")
	if err := page.apply(q).Find(&r.Avis).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// Received returns the reviews about the actor.
func (s *AvisService) Received(ctx context.Context, actor *models.Driver, page Page) (*Rating, error) {
	return s.ForChauffeur(ctx, actor.ID, page)
}

// Given returns the reviews the actor wrote.
func (s *AvisService) Given(ctx context.Context, actor *models.Driver, page Page) ([]models.Avis, error) {
	var list []models.Avis
	q := s.db.WithContext(ctx).Preload("ChauffeurNote").Preload("Ride").Where("auteur_id = ?", actor.ID).Order("created_at DESC, id DESC")
	err := page.apply(q).Find(&list).Error
	return list, err
}
