package services

import (
	"context"
	"time"

	"github.com/diewo77/vtc-exchange/internal/events"
	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/diewo77/vtc-exchange/internal/pdf"
	"github.com/diewo77/vtc-exchange/validation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentTerm is the default delay between emission and due date.
const PaymentTerm = 30 * 24 * time.Hour

// FactureService issues and settles invoices between drivers.
type FactureService struct {
	db       *gorm.DB
	bus      *events.Bus
	activity *ActivityService
}

func NewFactureService(db *gorm.DB, bus *events.Bus, activity *ActivityService) *FactureService {
	return &FactureService{db: db, bus: bus, activity: activity}
}

// nextNumero draws the next invoice number of year from the sequence table.
// It must run inside the transaction that stores the invoice.
func nextNumero(tx *gorm.DB, year int) (string, error) {
	seq := models.FactureSequence{Annee: year, DernierNumero: 1}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "annee"}},
		DoUpdates: clause.Assignments(map[string]any{
			"dernier_numero": gorm.Expr("facture_sequences.dernier_numero + 1"),
		}),
	}).Create(&seq).Error
	if err != nil {
		return "", err
	}
	if err := tx.Where("annee = ?", year).First(&seq).Error; err != nil {
		return "", err
	}
	return models.FormatNumero(year, seq.DernierNumero), nil
}

// invoicesExist reports whether any invoice, whatever its type or status, references the ride.
// Generation refuses once a ride has been invoiced in any way.
func invoicesExist(tx *gorm.DB, rideID uint) (bool, error) {
	var count int64
	err := tx.Model(&models.Facture{}).Where("ride_id = ?", rideID).Count(&count).Error
	return count > 0, err
}

// prestationExists reports whether a non-cancelled prestation invoice exists for the ride.
func prestationExists(tx *gorm.DB, rideID uint) (bool, error) {
	var count int64
	err := tx.Model(&models.Facture{}).
		Where("ride_id = ? AND type = ? AND status <> ?", rideID, models.FacturePrestation, models.FactureCancelled).
		Count(&count).Error
	return count > 0, err
}

// createForRide issues the prestation invoice of an executed ride, billed by the
// accepteur to the vendeur. ride must have Vendeur and Accepteur loaded.
func (s *FactureService) createForRide(tx *gorm.DB, ride *models.Ride, trx *models.Transaction) (*models.Facture, error) {
	if ride.Vendeur == nil || ride.Accepteur == nil {
		return nil, invalid("the ride has no accepteur")
	}
	if !ride.IsExecuted() {
		return nil, invalid("the ride has not been executed yet")
	}
	exists, err := invoicesExist(tx, ride.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, conflict("invoices already exist for this course")
	}
	now := time.Now()
	numero, err := nextNumero(tx, now.Year())
	if err != nil {
		return nil, err
	}
	echeance := now.Add(PaymentTerm)
	course := models.SnapshotCourse(ride)
	f := &models.Facture{
		Numero:               &numero,
		Type:                 models.FacturePrestation,
		RideID:               &ride.ID,
		EmetteurID:           ride.Accepteur.ID,
		DestinataireID:       ride.Vendeur.ID,
		MontantHT:            ride.Prix,
		TauxTVA:              models.DefaultTauxTVA,
		Status:               models.FactureIssued,
		DateEmission:         &now,
		DateEcheance:         &echeance,
		EmetteurSnapshot:     models.SnapshotParty(ride.Accepteur),
		DestinataireSnapshot: models.SnapshotParty(ride.Vendeur),
		CourseSnapshot:       &course,
	}
	if trx != nil {
		f.TransactionID = &trx.ID
	}
	if err := tx.Create(f).Error; err != nil {
		return nil, err
	}
	return f, nil
}

// issued publishes the facture.issued event and logs it for the emetteur.
func (s *FactureService) issued(ctx context.Context, actorID uint, f *models.Facture) {
	payload := map[string]any{
		"facture_id":      f.ID,
		"numero":          f.NumeroString(),
		"emetteur_id":     f.EmetteurID,
		"destinataire_id": f.DestinataireID,
		"montant_ttc":     f.MontantTTC,
	}
	if f.RideID != nil {
		payload["ride_id"] = *f.RideID
	}
	s.bus.Emit(ctx, events.FactureIssued, actorID, payload)
	s.activity.Log(ctx, f.EmetteurID, models.ActivityFactureIssued, "Facture émise : "+f.NumeroString(), map[string]any{"facture_id": f.ID})
}

// GenerateForRide issues the prestation invoice of an executed ride. Participants only.
func (s *FactureService) GenerateForRide(ctx context.Context, actor *models.Driver, rideID uint) (*models.Facture, error) {
	var ride models.Ride
	if err := s.db.WithContext(ctx).Preload("Vendeur").Preload("Accepteur").First(&ride, rideID).Error; err != nil {
		return nil, lookup(err, "ride")
	}
	if !ride.IsParticipant(actor.ID) {
		return nil, forbidden("you are not a participant of this ride")
	}
	var f *models.Facture
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var trx models.Transaction
		err := tx.Where("ride_id = ? AND status <> ?", rideID, models.TransactionCancelled).
			Order("id DESC").Limit(1).Find(&trx).Error
		if err != nil {
			return err
		}
		var ref *models.Transaction
		if trx.ID != 0 {
			ref = &trx
		}
		f, err = s.createForRide(tx, &ride, ref)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.issued(ctx, actor.ID, f)
	return f, nil
}

// FactureFilter narrows List.
type FactureFilter struct {
	Status string
	Type   string
	Role   string
	Page   Page
}

// Invoice sides used to filter List.
const (
	SideEmetteur     = "emetteur"
	SideDestinataire = "destinataire"
)

// List returns the invoices the actor emitted or received, newest first.
func (s *FactureService) List(ctx context.Context, actor *models.Driver, f FactureFilter) ([]models.Facture, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Facture{})
	switch f.Role {
	case SideEmetteur:
		q = q.Where("emetteur_id = ?", actor.ID)
	case SideDestinataire:
		q = q.Where("destinataire_id = ?", actor.ID)
	case "":
		q = q.Where("(emetteur_id = ? OR destinataire_id = ?)", actor.ID, actor.ID)
	default:
		return nil, 0, invalidFields(validation.Violations{"role": "invalid_choice"})
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Facture
	err := f.Page.apply(q.Order("created_at DESC, id DESC")).Find(&list).Error
	return list, total, err
}

// Get returns an invoice to its emetteur or destinataire.
func (s *FactureService) Get(ctx context.Context, actor *models.Driver, id uint) (*models.Facture, error) {
	var f models.Facture
	if err := s.db.WithContext(ctx).First(&f, id).Error; err != nil {
		return nil, lookup(err, "invoice")
	}
	if f.EmetteurID != actor.ID && f.DestinataireID != actor.ID {
		return nil, forbidden("you are not a party to this invoice")
	}
	return &f, nil
}

// FactureInput is the payload of a manual invoice.
type FactureInput struct {
	RideID       uint     `json:"ride_id" validate:"required"`
	Type         string   `json:"type" validate:"omitempty,oneof=prestation sous_traitance"`
	MontantHT    *float64 `json:"montant_ht"`
	TauxTVA      *float64 `json:"taux_tva" validate:"omitempty,gte=0,lte=100"`
	Notes        string   `json:"notes" validate:"max=5000"`
	DateEcheance string   `json:"date_echeance"`
}

func parseEcheance(s string, v validation.Violations) *time.Time {
	if s == "" {
		return nil
	}
	t, err := ParseDateCourse(s)
	if err != nil {
		v.Add("date_echeance", "invalid_date")
		return nil
	}
	return &t
}

// CreateManual drafts an invoice from the actor to the other participant of a ride.
// A ride carries at most one non-cancelled prestation invoice.
func (s *FactureService) CreateManual(ctx context.Context, actor *models.Driver, in FactureInput) (*models.Facture, error) {
	if in.Type == "" {
		in.Type = string(models.FacturePrestation)
	}
	v := validation.Struct(in)
	echeance := parseEcheance(in.DateEcheance, v)
	if !v.Empty() {
		return nil, invalidFields(v)
	}
	var ride models.Ride
	if err := s.db.WithContext(ctx).Preload("Vendeur").Preload("Accepteur").First(&ride, in.RideID).Error; err != nil {
		return nil, lookup(err, "ride")
	}
	if !ride.IsParticipant(actor.ID) {
		return nil, forbidden("you are not a participant of this ride")
	}
	if ride.Accepteur == nil {
		return nil, invalid("the ride has no accepteur")
	}
	emetteur, destinataire := ride.Accepteur, ride.Vendeur
	if actor.ID == ride.VendeurID {
		emetteur, destinataire = ride.Vendeur, ride.Accepteur
	}
	course := models.SnapshotCourse(&ride)
	f := &models.Facture{
		Type:                 models.FactureType(in.Type),
		RideID:               &ride.ID,
		EmetteurID:           emetteur.ID,
		DestinataireID:       destinataire.ID,
		MontantHT:            ride.Prix,
		TauxTVA:              models.DefaultTauxTVA,
		Status:               models.FactureDraft,
		DateEcheance:         echeance,
		Notes:                in.Notes,
		EmetteurSnapshot:     models.SnapshotParty(emetteur),
		DestinataireSnapshot: models.SnapshotParty(destinataire),
		CourseSnapshot:       &course,
	}
	if in.MontantHT != nil {
		f.MontantHT = *in.MontantHT
	}
	if in.TauxTVA != nil {
		f.TauxTVA = *in.TauxTVA
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if f.Type == models.FacturePrestation {
			exists, err := prestationExists(tx, ride.ID)
			if err != nil {
				return err
			}
			if exists {
				return conflict("invoices already exist for this course")
			}
		}
		var trx models.Transaction
		if err := tx.Where("ride_id = ? AND status <> ?", ride.ID, models.TransactionCancelled).Order("id DESC").Limit(1).Find(&trx).Error; err != nil {
			return err
		}
		if trx.ID != 0 {
			f.TransactionID = &trx.ID
		}
		return tx.Create(f).Error
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// FactureUpdate edits a draft invoice. Nil fields are left unchanged.
type FactureUpdate struct {
	MontantHT    *float64 `json:"montant_ht"`
	TauxTVA      *float64 `json:"taux_tva" validate:"omitempty,gte=0,lte=100"`
	Notes        *string  `json:"notes" validate:"omitempty,max=5000"`
	DateEcheance *string  `json:"date_echeance"`
}

func (s *FactureService) ownDraft(ctx context.Context, actor *models.Driver, id uint) (*models.Facture, error) {
	f, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if f.EmetteurID != actor.ID {
		return nil, forbidden("only the emetteur can modify this invoice")
	}
	if !f.IsEditable() {
		return nil, conflict("only a draft invoice can be modified")
	}
	return f, nil
}

// Update edits a draft invoice; amounts are recomputed. Emetteur only.
func (s *FactureService) Update(ctx context.Context, actor *models.Driver, id uint, in FactureUpdate) (*models.Facture, error) {
	v := validation.Struct(in)
	if in.MontantHT != nil {
		validation.PositiveFloat("montant_ht", *in.MontantHT, v)
	}
	var echeance *time.Time
	if in.DateEcheance != nil {
		echeance = parseEcheance(*in.DateEcheance, v)
	}
	if !v.Empty() {
		return nil, invalidFields(v)
	}
	f, err := s.ownDraft(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if in.MontantHT != nil {
		f.SetMontantHT(*in.MontantHT)
	}
	if in.TauxTVA != nil {
		f.SetTauxTVA(*in.TauxTVA)
	}
	if in.Notes != nil {
		f.Notes = *in.Notes
	}
	if echeance != nil {
		f.DateEcheance = echeance
	}
	res := s.db.WithContext(ctx).Model(f).Where("status = ?", models.FactureDraft).Select("montant_ht", "taux_tva", "montant_tva", "montant_ttc", "notes", "date_echeance").Updates(f)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, conflict("only a draft invoice can be modified")
	}
	return f, nil
}

// Issue numbers a draft invoice and issues it. Emetteur only.
func (s *FactureService) Issue(ctx context.Context, actor *models.Driver, id uint) (*models.Facture, error) {
	f, err := s.ownDraft(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		numero, err := nextNumero(tx, now.Year())
		if err != nil {
			return err
		}
		updates := map[string]any{"numero": numero, "status": models.FactureIssued, "date_emission": now}
		if f.DateEcheance == nil {
			echeance := now.Add(PaymentTerm)
			updates["date_echeance"] = echeance
			f.DateEcheance = &echeance
		}
		res := tx.Model(&models.Facture{}).Where("id = ? AND status = ?", id, models.FactureDraft).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflict("only a draft invoice can be issued")
		}
		f.Numero = &numero
		return nil
	})
	if err != nil {
		return nil, err
	}
	f.Status = models.FactureIssued
	f.DateEmission = &now
	s.issued(ctx, actor.ID, f)
	return f, nil
}

// MarkAsPaid settles an issued invoice. Destinataire only.
func (s *FactureService) MarkAsPaid(ctx context.Context, actor *models.Driver, id uint) (*models.Facture, error) {
	f, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if f.DestinataireID != actor.ID {
		return nil, forbidden("only the destinataire can mark this invoice as paid")
	}
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.Facture{}).
		Where("id = ? AND status = ?", id, models.FactureIssued).
		Updates(map[string]any{"status": models.FacturePaid, "paid_at": now})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, conflict("only an issued invoice can be marked as paid")
	}
	f.Status = models.FacturePaid
	f.PaidAt = &now
	s.activity.Log(ctx, actor.ID, models.ActivityFacturePaid, "Facture payée : "+f.NumeroString(), map[string]any{"facture_id": f.ID})
	return f, nil
}

// Cancel cancels a draft or issued invoice. Emetteur only.
func (s *FactureService) Cancel(ctx context.Context, actor *models.Driver, id uint) (*models.Facture, error) {
	f, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if f.EmetteurID != actor.ID {
		return nil, forbidden("only the emetteur can cancel this invoice")
	}
	res := s.db.WithContext(ctx).Model(&models.Facture{}).
		Where("id = ? AND status IN ?", id, []models.FactureStatus{models.FactureDraft, models.FactureIssued}).
		Update("status", models.FactureCancelled)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, conflict("only a draft or issued invoice can be cancelled")
	}
	f.Status = models.FactureCancelled
	return f, nil
}

// PDF renders an invoice for one of its parties.
func (s *FactureService) PDF(ctx context.Context, actor *models.Driver, id uint) ([]byte, *models.Facture, error) {
	f, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	out, err := pdf.Facture(f)
	if err != nil {
		return nil, nil, err
	}
	return out, f, nil
}
