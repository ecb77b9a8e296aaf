package services

import (
	"testing"

	"github.com/diewo77/vtc-exchange/internal/events"
	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteTransactionGeneratesInvoice(t *testing.T) {
	env := setup(t)
	a := env.driver(t, "alice")
	b := env.driver(t, "bob")
	r := env.ride(t, a, publicRide(120))
	_, trx, err := env.svc.Rides.Accept(ctx, b, r.ID)
	require.NoError(t, err)

	_, _, err = env.svc.Ledger.Complete(ctx, a, trx.ID)
	assertKind(t, err, ErrConflict)

	for _, m := range []models.ExecutionStatus{models.ExecutionDepart, models.ExecutionPriseEnCharge, models.ExecutionTerminee} {
		_, err = env.svc.Rides.UpdateStatus(ctx, b, r.ID, m)
		require.NoError(t, err)
	}

	_, _, err = env.svc.Ledger.Complete(ctx, b, trx.ID)
	assertKind(t, err, ErrForbidden)

	done, f, err := env.svc.Ledger.Complete(ctx, a, trx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
	require.NotNil(t, f)
	assert.Equal(t, b.ID, f.EmetteurID)
	assert.Equal(t, 144.0, f.MontantTTC)
	assert.Contains(t, env.events.Types(), events.TransactionCompleted)

	_, _, err = env.svc.Ledger.Complete(ctx, a, trx.ID)
	assertKind(t, err, ErrConflict)
	assert.EqualValues(t, 1, env.count(t, &models.Facture{}, "ride_id = ?", r.ID))
}

func TestCompleteSkipsExistingInvoice(t *testing.T) {
	env := setup(t)
	a := env.driver(t, "alice")
	b := env.driver(t, "bob")
	r, trx := env.executedRide(t, a, b, 60)
	_, err := env.svc.Factures.GenerateForRide(ctx, b, r.ID)
	require.NoError(t, err)

	done, f, err := env.svc.Ledger.Complete(ctx, a, trx.ID)
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.Equal(t, models.TransactionCompleted, done.Status)
	assert.EqualValues(t, 1, env.count(t, &models.Facture{}, "ride_id = ?", r.ID))
}

func TestRefundAndStats(t *testing.T) {
	env := setup(t)
	a := env.driver(t, "alice")
	b := env.driver(t, "bob")
	_, trx1 := env.executedRide(t, a, b, 100)
	r2 := env.ride(t, a, publicRide(40))
	_, _, err := env.svc.Rides.Accept(ctx, b, r2.ID)
	require.NoError(t, err)

	_, _, err = env.svc.Ledger.Complete(ctx, a, trx1.ID)
	require.NoError(t, err)

	st, err := env.svc.Ledger.Stats(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, 100.0, st.TotalRecu)
	assert.Equal(t, 40.0, st.EnAttenteRecevoir)
	assert.Zero(t, st.TotalPaye)
	assert.EqualValues(t, 2, st.NbTransactions)
	assert.EqualValues(t, 1, st.NbCompleted)
	assert.EqualValues(t, 1, st.NbPending)

	st, err = env.svc.Ledger.Stats(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 100.0, st.TotalPaye)
	assert.Equal(t, 40.0, st.EnAttentePayer)

	_, err = env.svc.Ledger.Refund(ctx, a, trx1.ID)
	assertKind(t, err, ErrForbidden)
	refunded, err := env.svc.Ledger.Refund(ctx, b, trx1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionRefunded, refunded.Status)
	_, err = env.svc.Ledger.Refund(ctx, b, trx1.ID)
	assertKind(t, err, ErrConflict)

	list, total, err := env.svc.Ledger.List(ctx, a, TransactionFilter{Role: SidePayeur, Status: string(models.TransactionPending)})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, r2.ID, *list[0].RideID)

	outsider := env.driver(t, "carol")
	_, err = env.svc.Ledger.Get(ctx, outsider, trx1.ID)
	assertKind(t, err, ErrForbidden)
}
