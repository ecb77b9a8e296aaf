package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/diewo77/vtc-exchange/internal/events"
	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateInvoiceScenario(t *testing.T) {
	env := setup(t)
	a := env.driver(t, "alice")
	b := env.driver(t, "bob")
	r, trx := env.executedRide(t, a, b, 100)

	f, err := env.svc.Factures.GenerateForRide(ctx, b, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FacturePrestation, f.Type)
	assert.Equal(t, b.ID, f.EmetteurID)
	assert.Equal(t, a.ID, f.DestinataireID)
	assert.Equal(t, 100.0, f.MontantHT)
	assert.Equal(t, 20.0, f.TauxTVA)
	assert.Equal(t, 20.0, f.MontantTVA)
	assert.Equal(t, 120.0, f.MontantTTC)
	assert.Equal(t, models.FactureIssued, f.Status)
	assert.Equal(t, fmt.Sprintf("FAC-%d-000001", time.Now().Year()), f.NumeroString())
	require.NotNil(t, f.TransactionID)
	assert.Equal(t, trx.ID, *f.TransactionID)
	assert.Equal(t, "bob", f.EmetteurSnapshot.Prenom)
	assert.Equal(t, "alice@vtc.test", f.DestinataireSnapshot.Email)
	require.NotNil(t, f.CourseSnapshot)
	assert.Equal(t, "Aéroport CDG", f.CourseSnapshot.Arrivee)
	assert.Contains(t, env.events.Types(), events.FactureIssued)

	_, err = env.svc.Factures.GenerateForRide(ctx, b, r.ID)
	assertKind(t, err, ErrConflict)
	assert.Equal(t, "invoices already exist for this course", err.Error())
	assert.EqualValues(t, 1, env.count(t, &models.Facture{}, "ride_id = ?", r.ID))

	var stored models.Facture
	require.NoError(t, env.db.First(&stored, f.ID).Error)
	assert.Equal(t, f.EmetteurSnapshot, stored.EmetteurSnapshot)
	assert.Equal(t, f.CourseSnapshot.Depart, stored.CourseSnapshot.Depart)
}

func TestGenerateRequiresExecutedRide(t *testing.T) {
	env := setup(t)
	a := env.driver(t, "alice")
	b := env.driver(t, "bob")
	r := env.ride(t, a, publicRide(50))

	_, err := env.svc.Factures.GenerateForRide(ctx, a, r.ID)
	assertKind(t, err, ErrValidation)

	_, _, err = env.svc.Rides.Accept(ctx, b, r.ID)
	require.NoError(t, err)
	_, err = env.svc.Rides.UpdateStatus(ctx, b, r.ID, models.ExecutionDepart)
	require.NoError(t, err)
	_, err = env.svc.Factures.GenerateForRide(ctx, b, r.ID)
	assertKind(t, err, ErrValidation)
	assert.Zero(t, env.count(t, &models.Facture{}, ""))
	assert.Zero(t, env.count(t, &models.FactureSequence{}, ""))

	c := env.driver(t, "carol")
	_, err = env.svc.Factures.GenerateForRide(ctx, c, r.ID)
	assertKind(t, err, ErrForbidden)
}

func TestInvoiceNumbersAreSequential(t *testing.T) {
	env := setup(t)
	a := env.driver(t, "alice")
	b := env.driver(t, "bob")
	year := time.Now().Year()
	for i := 1; i <= 3; i++ {
		r, _ := env.executedRide(t, a, b, 10*float64(i))
		f, err := env.svc.Factures.GenerateForRide(ctx, a, r.ID)
		require.NoError(t, err)
		assert.Equal(t, models.FormatNumero(year, i), f.NumeroString())
	}
	var seq models.FactureSequence
	require.NoError(t, env.db.First(&seq, "annee = ?", year).Error)
	assert.Equal(t, 3, seq.DernierNumero)
}

func TestMarkAsPaidAndCancel(t *testing.T) {
	env := setup(t)
	a := env.driver(t, "alice")
	b := env.driver(t, "bob")
	r, _ := env.executedRide(t, a, b, 75.5)
	f, err := env.svc.Factures.GenerateForRide(ctx, b, r.ID)
	require.NoError(t, err)

	_, err = env.svc.Factures.MarkAsPaid(ctx, b, f.ID)
	assertKind(t, err, ErrForbidden)
	paid, err := env.svc.Factures.MarkAsPaid(ctx, a, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FacturePaid, paid.Status)
	assert.NotNil(t, paid.PaidAt)
	_, err = env.svc.Factures.MarkAsPaid(ctx, a, f.ID)
	assertKind(t, err, ErrConflict)

	_, err = env.svc.Factures.Cancel(ctx, b, f.ID)
	assertKind(t, err, ErrConflict)

	outsider := env.driver(t, "carol")
	_, err = env.svc.Factures.Get(ctx, outsider, f.ID)
	assertKind(t, err, ErrForbidden)
}

func TestManualInvoiceLifecycle(t *testing.T) {
	env := setup(t)
	a := env.driver(t, "alice")
	b := env.driver(t, "bob")
	r := env.ride(t, a, publicRide(90))
	_, _, err := env.svc.Rides.Accept(ctx, b, r.ID)
	require.NoError(t, err)

	draft, err := env.svc.Factures.CreateManual(ctx, a, FactureInput{RideID: r.ID, Type: "sous_traitance"})
	require.NoError(t, err)
	assert.Equal(t, models.FactureDraft, draft.Status)
	assert.Nil(t, draft.Numero)
	assert.Equal(t, a.ID, draft.EmetteurID)
	assert.Equal(t, b.ID, draft.DestinataireID)
	assert.Equal(t, 108.0, draft.MontantTTC)

	ht := 33.33
	rate := 10.0
	_, err = env.svc.Factures.Update(ctx, b, draft.ID, FactureUpdate{MontantHT: &ht})
	assertKind(t, err, ErrForbidden)
	updated, err := env.svc.Factures.Update(ctx, a, draft.ID, FactureUpdate{MontantHT: &ht, TauxTVA: &rate})
	require.NoError(t, err)
	assert.Equal(t, 33.33, updated.MontantHT)
	assert.Equal(t, 36.66, updated.MontantTTC)
	assert.Equal(t, 3.33, updated.MontantTVA)

	var stored models.Facture
	require.NoError(t, env.db.First(&stored, draft.ID).Error)
	assert.Equal(t, 36.66, stored.MontantTTC)

	issued, err := env.svc.Factures.Issue(ctx, a, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FactureIssued, issued.Status)
	assert.Equal(t, models.FormatNumero(time.Now().Year(), 1), issued.NumeroString())
	require.NotNil(t, issued.DateEcheance)
	assert.WithinDuration(t, time.Now().Add(PaymentTerm), *issued.DateEcheance, time.Minute)

	_, err = env.svc.Factures.Update(ctx, a, draft.ID, FactureUpdate{MontantHT: &ht})
	assertKind(t, err, ErrConflict)
	_, err = env.svc.Factures.Issue(ctx, a, draft.ID)
	assertKind(t, err, ErrConflict)

	cancelled, err := env.svc.Factures.Cancel(ctx, a, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FactureCancelled, cancelled.Status)
}

func TestManualPrestationIsUniquePerRide(t *testing.T) {
	env := setup(t)
	a := env.driver(t, "alice")
	b := env.driver(t, "bob")
	r, _ := env.executedRide(t, a, b, 40)

	draft, err := env.svc.Factures.CreateManual(ctx, b, FactureInput{RideID: r.ID})
	require.NoError(t, err)
	assert.Equal(t, models.FacturePrestation, draft.Type)

	_, err = env.svc.Factures.GenerateForRide(ctx, b, r.ID)
	assertKind(t, err, ErrConflict)
	_, err = env.svc.Factures.CreateManual(ctx, b, FactureInput{RideID: r.ID})
	assertKind(t, err, ErrConflict)

	// A cancelled prestation frees manual drafting, never generation.
	_, err = env.svc.Factures.Cancel(ctx, b, draft.ID)
	require.NoError(t, err)
	_, err = env.svc.Factures.GenerateForRide(ctx, b, r.ID)
	assertKind(t, err, ErrConflict)
	assert.EqualValues(t, 1, env.count(t, &models.Facture{}, "ride_id = ?", r.ID))
	_, err = env.svc.Factures.CreateManual(ctx, b, FactureInput{RideID: r.ID})
	require.NoError(t, err)
}

func TestGenerateRefusesRideWithAnyInvoice(t *testing.T) {
	env := setup(t)
	a := env.driver(t, "alice")
	b := env.driver(t, "bob")
	r, trx := env.executedRide(t, a, b, 70)

	_, err := env.svc.Factures.CreateManual(ctx, a, FactureInput{RideID: r.ID, Type: "sous_traitance"})
	require.NoError(t, err)

	_, err = env.svc.Factures.GenerateForRide(ctx, b, r.ID)
	assertKind(t, err, ErrConflict)
	assert.EqualValues(t, 1, env.count(t, &models.Facture{}, "ride_id = ?", r.ID))

	done, f, err := env.svc.Ledger.Complete(ctx, a, trx.ID)
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.Equal(t, models.TransactionCompleted, done.Status)
	assert.EqualValues(t, 1, env.count(t, &models.Facture{}, "ride_id = ?", r.ID))
}

func TestListFacturesByRole(t *testing.T) {
	env := setup(t)
	a := env.driver(t, "alice")
	b := env.driver(t, "bob")
	r, _ := env.executedRide(t, a, b, 40)
	_, err := env.svc.Factures.GenerateForRide(ctx, b, r.ID)
	require.NoError(t, err)

	emitted, total, err := env.svc.Factures.List(ctx, b, FactureFilter{Role: SideEmetteur})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, emitted, 1)
	_, total, err = env.svc.Factures.List(ctx, b, FactureFilter{Role: SideDestinataire})
	require.NoError(t, err)
	assert.Zero(t, total)
	_, total, err = env.svc.Factures.List(ctx, a, FactureFilter{Status: string(models.FactureIssued)})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestFacturePDF(t *testing.T) {
	env := setup(t)
	a := env.driver(t, "alice")
	b := env.driver(t, "bob")
	r, _ := env.executedRide(t, a, b, 40)
	f, err := env.svc.Factures.GenerateForRide(ctx, b, r.ID)
	require.NoError(t, err)

	out, got, err := env.svc.Factures.PDF(ctx, a, f.ID)
	require.NoError(t, err)
	assert.Equal(t, f.ID, got.ID)
	assert.Equal(t, "%PDF", string(out[:4]))
}
