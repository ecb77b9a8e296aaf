package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/diewo77/vtc-exchange/internal/events"
	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/diewo77/vtc-exchange/validation"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// visibleTo restricts q to rides driverID can see: public rides, rides they
// posted or accepted, and rides of their active groups.
func visibleTo(q *gorm.DB, driverID uint) *gorm.DB {
	db := q.Session(&gorm.Session{NewDB: true})
	return q.Where(
		"(rides.visibility = ? OR rides.vendeur_id = ? OR rides.accepteur_id = ? OR rides.groupe_id IN (?))",
		models.VisibilityPublic, driverID, driverID,
		inMemberGroupes(db.Model(&models.Groupe{}).Select("id").Where("actif = ?", true), "id", driverID),
	)
}

// RideService posts, lists and moves rides through their lifecycle.
type RideService struct {
	db       *gorm.DB
	bus      *events.Bus
	activity *ActivityService
}

func NewRideService(db *gorm.DB, bus *events.Bus, activity *ActivityService) *RideService {
	return &RideService{db: db, bus: bus, activity: activity}
}

// RideInput is the payload of ride creation and update.
type RideInput struct {
	Depart          string  `json:"depart" validate:"notblank,max=500"`
	Arrivee         string  `json:"arrivee" validate:"notblank,max=500"`
	DateCourse      string  `json:"date_course" validate:"notblank"`
	Heure           string  `json:"heure" validate:"omitempty,len=5"`
	Prix            float64 `json:"prix" validate:"gt=0"`
	Passagers       int     `json:"passagers" validate:"gte=1,lte=20"`
	Bagages         int     `json:"bagages" validate:"gte=0,lte=20"`
	TypeVehicule    string  `json:"type_vehicule" validate:"max=50"`
	ClientNom       string  `json:"client_nom" validate:"max=255"`
	ClientTelephone string  `json:"client_telephone" validate:"max=30"`
	Notes           string  `json:"notes" validate:"max=5000"`
	Visibility      string  `json:"visibility" validate:"omitempty,oneof=public groupe"`
	GroupeID        *uint   `json:"groupe_id"`
}

// ParseDateCourse accepts a calendar date (2006-01-02) or an RFC 3339 timestamp.
func ParseDateCourse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// prepare validates in and returns the ride fields it describes.
func (s *RideService) prepare(ctx context.Context, actor *models.Driver, in RideInput) (*models.Ride, error) {
	if in.Passagers == 0 {
		in.Passagers = 1
	}
	if in.Visibility == "" {
		in.Visibility = string(models.VisibilityPublic)
	}
	v := validation.Struct(in)
	date, err := ParseDateCourse(in.DateCourse)
	if err != nil && in.DateCourse != "" {
		v.Add("date_course", "invalid_date")
	}
	vis := models.Visibility(in.Visibility)
	if vis == models.VisibilityGroupe && in.GroupeID == nil {
		v.Add("groupe_id", "required")
	}
	if !v.Empty() {
		return nil, invalidFields(v)
	}
	r := &models.Ride{
		VendeurID:       actor.ID,
		Visibility:      vis,
		Depart:          strings.TrimSpace(in.Depart),
		Arrivee:         strings.TrimSpace(in.Arrivee),
		DateCourse:      date,
		Heure:           in.Heure,
		Prix:            models.RoundAmount(in.Prix),
		Passagers:       in.Passagers,
		Bagages:         in.Bagages,
		TypeVehicule:    in.TypeVehicule,
		ClientNom:       in.ClientNom,
		ClientTelephone: in.ClientTelephone,
		Notes:           in.Notes,
		Status:          models.RideDisponible,
	}
	if vis == models.VisibilityGroupe {
		var g models.Groupe
		if err := s.db.WithContext(ctx).First(&g, *in.GroupeID).Error; err != nil {
			return nil, lookup(err, "group")
		}
		member, err := hasMembre(s.db.WithContext(ctx), g.ID, actor.ID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, forbidden("you are not a member of this group")
		}
		if !g.Actif {
			return nil, conflict("this group is no longer active")
		}
		r.GroupeID = &g.ID
	}
	return r, nil
}

// Create posts a ride on behalf of the actor.
func (s *RideService) Create(ctx context.Context, actor *models.Driver, in RideInput) (*models.Ride, error) {
	r, err := s.prepare(ctx, actor, in)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	s.bus.Emit(ctx, events.RideCreated, actor.ID, ridePayload(r))
	s.activity.Log(ctx, actor.ID, models.ActivityRideCreated, fmt.Sprintf("Course publiée : %s → %s", r.Depart, r.Arrivee), map[string]any{"ride_id": r.ID})
	return r, nil
}

func ridePayload(r *models.Ride) map[string]any {
	p := map[string]any{
		"ride_id":          r.ID,
		"vendeur_id":       r.VendeurID,
		"status":           r.Status,
		"statut_execution": r.StatutExecution,
		"visibility":       r.Visibility,
		"prix":             r.Prix,
	}
	if r.AccepteurID != nil {
		p["accepteur_id"] = *r.AccepteurID
	}
	if r.GroupeID != nil {
		p["groupe_id"] = *r.GroupeID
	}
	return p
}

func (s *RideService) load(ctx context.Context, id uint) (*models.Ride, error) {
	var r models.Ride
	err := s.db.WithContext(ctx).Preload("Vendeur").Preload("Accepteur").Preload("Groupe").First(&r, id).Error
	if err != nil {
		return nil, lookup(err, "ride")
	}
	return &r, nil
}

// rideVisible reports whether driverID may see r: public rides, their own
// rides and the rides of their groups.
func rideVisible(db *gorm.DB, r *models.Ride, driverID uint) (bool, error) {
	if r.Visibility == models.VisibilityPublic || r.IsParticipant(driverID) {
		return true, nil
	}
	if r.GroupeID == nil {
		return false, nil
	}
	var count int64
	err := inMemberGroupes(db.Model(&models.Groupe{}), "id", driverID).
		Where("id = ? AND actif = ?", *r.GroupeID, true).
		Count(&count).Error
	return count > 0, err
}

// IsVisibleBy reports whether driverID may see r.
func (s *RideService) IsVisibleBy(ctx context.Context, r *models.Ride, driverID uint) (bool, error) {
	return rideVisible(s.db.WithContext(ctx), r, driverID)
}

// Get returns a ride the actor can see.
func (s *RideService) Get(ctx context.Context, actor *models.Driver, id uint) (*models.Ride, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.IsVisibleBy(ctx, r, actor.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, forbidden("you cannot access this ride")
	}
	return r, nil
}

// ListAvailable returns the rides the actor could accept, soonest first.
func (s *RideService) ListAvailable(ctx context.Context, actor *models.Driver, page Page) ([]models.Ride, error) {
	q := s.db.WithContext(ctx).Model(&models.Ride{}).
		Where("rides.status = ? AND rides.vendeur_id <> ?", models.RideDisponible, actor.ID)
	q = visibleTo(q, actor.ID)
	var rides []models.Ride
	err := page.apply(q.Preload("Vendeur").Preload("Groupe").Order("date_course ASC, id ASC")).Find(&rides).Error
	return rides, err
}

// ListByGroupe returns the rides of a group to one of its members.
func (s *RideService) ListByGroupe(ctx context.Context, actor *models.Driver, groupeID uint, page Page) ([]models.Ride, error) {
	var g models.Groupe
	if err := s.db.WithContext(ctx).First(&g, groupeID).Error; err != nil {
		return nil, lookup(err, "group")
	}
	member, err := hasMembre(s.db.WithContext(ctx), groupeID, actor.ID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, forbidden("you are not a member of this group")
	}
	var rides []models.Ride
	q := s.db.WithContext(ctx).Where("groupe_id = ?", groupeID).Preload("Vendeur").Order("date_course DESC, id DESC")
	err = page.apply(q).Find(&rides).Error
	return rides, err
}

// Ride roles used to filter ListMine.
const (
	RoleVendeur   = "vendeur"
	RoleAccepteur = "accepteur"
)

// ListMine returns the rides the actor posted or accepted. role narrows to one side.
func (s *RideService) ListMine(ctx context.Context, actor *models.Driver, role string, page Page) ([]models.Ride, error) {
	q := s.db.WithContext(ctx).Model(&models.Ride{})
	switch role {
	case RoleVendeur:
		q = q.Where("vendeur_id = ?", actor.ID)
	case RoleAccepteur:
		q = q.Where("accepteur_id = ?", actor.ID)
	case "":
		q = q.Where("(vendeur_id = ? OR accepteur_id = ?)", actor.ID, actor.ID)
	default:
		return nil, invalidFields(validation.Violations{"role": "invalid_choice"})
	}
	var rides []models.Ride
	err := page.apply(q.Preload("Vendeur").Preload("Accepteur").Order("date_course DESC, id DESC")).Find(&rides).Error
	return rides, err
}

// Update edits a ride while nobody has accepted it. Vendeur only.
func (s *RideService) Update(ctx context.Context, actor *models.Driver, id uint, in RideInput) (*models.Ride, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.VendeurID != actor.ID {
		return nil, forbidden("only the vendeur can edit this ride")
	}
	if current.Status != models.RideDisponible {
		return nil, conflict("only an available ride can be edited")
	}
	r, err := s.prepare(ctx, actor, in)
	if err != nil {
		return nil, err
	}
	res := s.db.WithContext(ctx).Model(&models.Ride{}).
		Where("id = ? AND status = ?", id, models.RideDisponible).
		Updates(map[string]any{
			"visibility":       r.Visibility,
			"groupe_id":        r.GroupeID,
			"depart":           r.Depart,
			"arrivee":          r.Arrivee,
			"date_course":      r.DateCourse,
			"heure":            r.Heure,
			"prix":             r.Prix,
			"passagers":        r.Passagers,
			"bagages":          r.Bagages,
			"type_vehicule":    r.TypeVehicule,
			"client_nom":       r.ClientNom,
			"client_telephone": r.ClientTelephone,
			"notes":            r.Notes,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, conflict("only an available ride can be edited")
	}
	return s.load(ctx, id)
}

// Delete removes a ride nobody accepted yet, with its conversations. Vendeur only.
func (s *RideService) Delete(ctx context.Context, actor *models.Driver, id uint) error {
	r, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if r.VendeurID != actor.ID {
		return forbidden("only the vendeur can delete this ride")
	}
	if r.Status != models.RideDisponible {
		return conflict("only an available ride can be deleted")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		convs := tx.Model(&models.Conversation{}).Select("id").Where("ride_id = ?", id)
		if err := tx.Where("conversation_id IN (?)", convs).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("ride_id = ?", id).Delete(&models.Conversation{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ? AND status = ?", id, models.RideDisponible).Delete(&models.Ride{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflict("only an available ride can be deleted")
		}
		return nil
	})
}

// Accept assigns the ride to the actor and opens the pending transaction
// from the vendeur to the accepteur. Only one acceptance can succeed.
func (s *RideService) Accept(ctx context.Context, actor *models.Driver, id uint) (*models.Ride, *models.Transaction, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if r.VendeurID == actor.ID {
		return nil, nil, conflict("cannot accept your own ride")
	}
	visible, err := s.IsVisibleBy(ctx, r, actor.ID)
	if err != nil {
		return nil, nil, err
	}
	if !visible {
		return nil, nil, forbidden("you cannot access this ride")
	}
	if r.Status == models.RideAnnulee {
		return nil, nil, conflict("ride is no longer available")
	}
	if r.Status != models.RideDisponible {
		return nil, nil, conflict("ride already accepted")
	}

	now := time.Now()
	trx := &models.Transaction{
		Reference:      "TRX-" + strings.ToUpper(uuid.NewString()),
		PayeurID:       r.VendeurID,
		BeneficiaireID: actor.ID,
		RideID:         &r.ID,
		Montant:        r.Prix,
		Status:         models.TransactionPending,
		Description:    truncate(fmt.Sprintf("Course #%d : %s → %s", r.ID, r.Depart, r.Arrivee), 500),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Ride{}).
			Where("id = ? AND status = ? AND vendeur_id <> ?", id, models.RideDisponible, actor.ID).
			Updates(map[string]any{
				"status":       models.RideAcceptee,
				"accepteur_id": actor.ID,
				"accepted_at":  now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflict("ride already accepted")
		}
		return tx.Create(trx).Error
	})
	if err != nil {
		return nil, nil, err
	}
	r, err = s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	s.bus.Emit(ctx, events.RideAccepted, actor.ID, ridePayload(r))
	s.activity.Log(ctx, actor.ID, models.ActivityRideAccepted, fmt.Sprintf("Course acceptée : %s → %s", r.Depart, r.Arrivee), map[string]any{"ride_id": r.ID, "transaction_id": trx.ID})
	return r, trx, nil
}

// Cancel cancels a ride that has not terminated and the pending transaction it holds. Vendeur only.
func (s *RideService) Cancel(ctx context.Context, actor *models.Driver, id uint) (*models.Ride, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.VendeurID != actor.ID {
		return nil, forbidden("only the vendeur can cancel this ride")
	}
	if r.IsClosed() {
		return nil, conflict("ride can no longer be cancelled")
	}
	cancellable := []models.RideStatus{models.RideDisponible, models.RideAcceptee, models.RideEnCours}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Ride{}).
			Where("id = ? AND status IN ?", id, cancellable).
			Updates(map[string]any{"status": models.RideAnnulee, "cancelled_at": time.Now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflict("ride can no longer be cancelled")
		}
		return cancelPendingForRide(tx, id)
	})
	if err != nil {
		return nil, err
	}
	r, err = s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.bus.Emit(ctx, events.RideCancelled, actor.ID, ridePayload(r))
	s.activity.Log(ctx, actor.ID, models.ActivityRideCancelled, fmt.Sprintf("Course annulée : %s → %s", r.Depart, r.Arrivee), map[string]any{"ride_id": r.ID})
	return r, nil
}

// UpdateStatus records the next execution milestone. Accepteur only.
// Milestones go depart, prise_en_charge, terminee, one at a time.
func (s *RideService) UpdateStatus(ctx context.Context, actor *models.Driver, id uint, milestone models.ExecutionStatus) (*models.Ride, error) {
	if milestone.Rank() <= 0 {
		return nil, invalidFields(validation.Violations{"statut_execution": "invalid_choice"})
	}
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.IsAccepteur(actor.ID) {
		return nil, forbidden("only the accepteur can update the execution status")
	}
	if r.Status != models.RideAcceptee && r.Status != models.RideEnCours {
		return nil, conflict("ride is not in progress")
	}
	if milestone.Rank() != r.StatutExecution.Rank()+1 {
		return nil, conflict(fmt.Sprintf("cannot move from %q to %q", r.StatutExecution, milestone))
	}

	now := time.Now()
	updates := map[string]any{"statut_execution": milestone}
	switch milestone {
	case models.ExecutionDepart:
		updates["status"] = models.RideEnCours
		updates["depart_at"] = now
	case models.ExecutionPriseEnCharge:
		updates["prise_en_charge_at"] = now
	case models.ExecutionTerminee:
		updates["status"] = models.RideTerminee
		updates["arrivee_at"] = now
		updates["completed_at"] = now
		updates["status_vendeur"] = models.StatusVendeurVendue
	}
	res := s.db.WithContext(ctx).Model(&models.Ride{}).
		Where("id = ? AND accepteur_id = ? AND COALESCE(statut_execution, '') = ?", id, actor.ID, r.StatutExecution).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, conflict("execution status changed concurrently")
	}
	r, err = s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.bus.Emit(ctx, events.RideStatusChanged, actor.ID, ridePayload(r))
	s.activity.Log(ctx, actor.ID, models.ActivityRideStatus, "Étape de course : "+string(milestone), map[string]any{"ride_id": r.ID, "statut_execution": milestone})
	return r, nil
}
