package services

import (
	"context"
	"fmt"
	"time"

	"github.com/diewo77/vtc-exchange/internal/events"
	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/diewo77/vtc-exchange/validation"
	"gorm.io/gorm"
)

// LedgerService reads and settles the transactions opened at ride acceptance.
type LedgerService struct {
	db       *gorm.DB
	factures *FactureService
	bus      *events.Bus
	activity *ActivityService
}

func NewLedgerService(db *gorm.DB, factures *FactureService, bus *events.Bus, activity *ActivityService) *LedgerService {
	return &LedgerService{db: db, factures: factures, bus: bus, activity: activity}
}

// cancelPendingForRide cancels the pending transaction of a ride, if any.
func cancelPendingForRide(tx *gorm.DB, rideID uint) error {
	return tx.Model(&models.Transaction{}).
		Where("ride_id = ? AND status = ?", rideID, models.TransactionPending).
		Update("status", models.TransactionCancelled).Error
}

// Transaction sides used to filter List.
const (
	SidePayeur       = "payeur"
	SideBeneficiaire = "beneficiaire"
)

// TransactionFilter narrows List.
type TransactionFilter struct {
	Status string
	Role   string
	Page   Page
}

// List returns the actor's transactions, newest first, with the total count.
func (s *LedgerService) List(ctx context.Context, actor *models.Driver, f TransactionFilter) ([]models.Transaction, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Transaction{})
	switch f.Role {
	case SidePayeur:
		q = q.Where("payeur_id = ?", actor.ID)
	case SideBeneficiaire:
		q = q.Where("beneficiaire_id = ?", actor.ID)
	case "":
		q = q.Where("(payeur_id = ? OR beneficiaire_id = ?)", actor.ID, actor.ID)
	default:
		return nil, 0, invalidFields(validation.Violations{"role": "invalid_choice"})
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Transaction
	err := f.Page.apply(q.Preload("Payeur").Preload("Beneficiaire").Preload("Ride").Order("created_at DESC, id DESC")).Find(&list).Error
	return list, total, err
}

// TransactionStats sums the actor's transactions by side and status.
type TransactionStats struct {
	TotalRecu         float64 `json:"total_recu"`
	TotalPaye         float64 `json:"total_paye"`
	EnAttenteRecevoir float64 `json:"en_attente_recevoir"`
	EnAttentePayer    float64 `json:"en_attente_payer"`
	NbTransactions    int64   `json:"nb_transactions"`
	NbCompleted       int64   `json:"nb_completed"`
	NbPending         int64   `json:"nb_pending"`
}

// Stats computes the actor's ledger totals.
func (s *LedgerService) Stats(ctx context.Context, actor *models.Driver) (*TransactionStats, error) {
	db := s.db.WithContext(ctx)
	sum := func(column string, status models.TransactionStatus) (float64, error) {
		var total float64
		err := db.Model(&models.Transaction{}).
			Select("COALESCE(SUM(montant), 0)").
			Where(column+" = ? AND status = ?", actor.ID, status).
			Scan(&total).Error
		return total, err
	}
	st := &TransactionStats{}
	var err error
	if st.TotalRecu, err = sum("beneficiaire_id", models.TransactionCompleted); err != nil {
		return nil, err
	}
	if st.TotalPaye, err = sum("payeur_id", models.TransactionCompleted); err != nil {
		return nil, err
	}
	if st.EnAttenteRecevoir, err = sum("beneficiaire_id", models.TransactionPending); err != nil {
		return nil, err
	}
	if st.EnAttentePayer, err = sum("payeur_id", models.TransactionPending); err != nil {
		return nil, err
	}
	mine := db.Model(&models.Transaction{}).Where("(payeur_id = ? OR beneficiaire_id = ?)", actor.ID, actor.ID)
	if err := mine.Session(&gorm.Session{}).Count(&st.NbTransactions).Error; err != nil {
		return nil, err
	}
	if err := mine.Session(&gorm.Session{}).Where("status = ?", models.TransactionCompleted).Count(&st.NbCompleted).Error; err != nil {
		return nil, err
	}
	if err := mine.Session(&gorm.Session{}).Where("status = ?", models.TransactionPending).Count(&st.NbPending).Error; err != nil {
		return nil, err
	}
	return st, nil
}

func (s *LedgerService) load(ctx context.Context, id uint) (*models.Transaction, error) {
	var t models.Transaction
	if err := s.db.WithContext(ctx).Preload("Ride").First(&t, id).Error; err != nil {
		return nil, lookup(err, "transaction")
	}
	return &t, nil
}

// Get returns a transaction to one of its parties.
func (s *LedgerService) Get(ctx context.Context, actor *models.Driver, id uint) (*models.Transaction, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.PayeurID != actor.ID && t.BeneficiaireID != actor.ID {
		return nil, forbidden("you are not a party to this transaction")
	}
	return t, nil
}

// Complete releases a pending transaction. Payeur only, once the ride is executed.
// The prestation invoice of the ride is generated in the same database
// transaction unless one already exists. The invoice is nil when skipped.
func (s *LedgerService) Complete(ctx context.Context, actor *models.Driver, id uint) (*models.Transaction, *models.Facture, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if t.PayeurID != actor.ID {
		return nil, nil, forbidden("only the payeur can complete this transaction")
	}
	if !t.IsPending() {
		return nil, nil, conflict("transaction is not pending")
	}
	if t.Ride != nil && !t.Ride.IsExecuted() {
		return nil, nil, conflict("the ride has not been executed yet")
	}

	now := time.Now()
	var facture *models.Facture
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Transaction{}).
			Where("id = ? AND status = ?", id, models.TransactionPending).
			Updates(map[string]any{"status": models.TransactionCompleted, "completed_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflict("transaction is not pending")
		}
		if t.RideID == nil {
			return nil
		}
		exists, err := invoicesExist(tx, *t.RideID)
		if err != nil || exists {
			return err
		}
		var ride models.Ride
		if err := tx.Preload("Vendeur").Preload("Accepteur").First(&ride, *t.RideID).Error; err != nil {
			return err
		}
		t.Status = models.TransactionCompleted
		t.CompletedAt = &now
		facture, err = s.factures.createForRide(tx, &ride, t)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	t.Status = models.TransactionCompleted
	t.CompletedAt = &now
	payload := map[string]any{"transaction_id": t.ID, "reference": t.Reference, "montant": t.Montant}
	if t.RideID != nil {
		payload["ride_id"] = *t.RideID
	}
	s.bus.Emit(ctx, events.TransactionCompleted, actor.ID, payload)
	s.activity.Log(ctx, actor.ID, models.ActivityTransactionDone, fmt.Sprintf("Transaction %s réglée", t.Reference), map[string]any{"transaction_id": t.ID})
	if facture != nil {
		s.factures.issued(ctx, facture.EmetteurID, facture)
	}
	return t, facture, nil
}

// Refund reverses a completed transaction. Beneficiaire only.
func (s *LedgerService) Refund(ctx context.Context, actor *models.Driver, id uint) (*models.Transaction, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.BeneficiaireID != actor.ID {
		return nil, forbidden("only the beneficiaire can refund this transaction")
	}
	res := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, models.TransactionCompleted).
		Update("status", models.TransactionRefunded)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, conflict("only a completed transaction can be refunded")
	}
	t.Status = models.TransactionRefunded
	return t, nil
}
