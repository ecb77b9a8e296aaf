package services

import (
	"testing"

	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviewOncePerRide(t *testing.T) {
	env := setup(t)
	a := env.driver(t, "alice")
	b := env.driver(t, "bob")
	r, _ := env.executedRide(t, a, b, 50)

	el, err := env.svc.Avis.CanRate(ctx, b, r.ID)
	require.NoError(t, err)
	assert.True(t, el.CanRate)

	avis, err := env.svc.Avis.Create(ctx, b, AvisInput{RideID: r.ID, Note: 4, Commentaire: "Client ponctuel"})
	require.NoError(t, err)
	assert.Equal(t, a.ID, avis.ChauffeurNoteID)
	assert.Equal(t, b.ID, avis.AuteurID)

	_, err = env.svc.Avis.Create(ctx, b, AvisInput{RideID: r.ID, Note: 5})
	assertKind(t, err, ErrConflict)
	assert.EqualValues(t, 1, env.count(t, &models.Avis{}, "ride_id = ?", r.ID))

	el, err = env.svc.Avis.CanRate(ctx, b, r.ID)
	require.NoError(t, err)
	assert.False(t, el.CanRate)
	assert.NotEmpty(t, el.Reason)
}

func TestReviewGate(t *testing.T) {
	env := setup(t)
	a := env.driver(t, "alice")
	b := env.driver(t, "bob")
	r := env.ride(t, a, publicRide(50))
	_, _, err := env.svc.Rides.Accept(ctx, b, r.ID)
	require.NoError(t, err)

	_, err = env.svc.Avis.Create(ctx, b, AvisInput{RideID: r.ID, Note: 4})
	assertKind(t, err, ErrConflict)
	_, err = env.svc.Avis.Create(ctx, a, AvisInput{RideID: r.ID, Note: 4})
	assertKind(t, err, ErrForbidden)

	for _, note := range []int{0, 6, -1} {
		_, err = env.svc.Avis.Create(ctx, b, AvisInput{RideID: r.ID, Note: note})
		assertKind(t, err, ErrValidation)
		assertField(t, err, "note", "out_of_range")
	}
	assert.Zero(t, env.count(t, &models.Avis{}, ""))
}

func TestRatingSummary(t *testing.T) {
	env := setup(t)
	a := env.driver(t, "alice")
	b := env.driver(t, "bob")
	c := env.driver(t, "carol")
	r1, _ := env.executedRide(t, a, b, 50)
	r2, _ := env.executedRide(t, a, c, 50)
	_, err := env.svc.Avis.Create(ctx, b, AvisInput{RideID: r1.ID, Note: 5})
	require.NoError(t, err)
	_, err = env.svc.Avis.Create(ctx, c, AvisInput{RideID: r2.ID, Note: 2})
	require.NoError(t, err)

	rating, err := env.svc.Avis.ForChauffeur(ctx, a.ID, Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, rating.Total)
	assert.Equal(t, 3.5, rating.Moyenne)
	assert.Len(t, rating.Avis, 2)

	received, err := env.svc.Avis.Received(ctx, b, Page{})
	require.NoError(t, err)
	assert.Zero(t, received.Total)
	given, err := env.svc.Avis.Given(ctx, b, Page{})
	require.NoError(t, err)
	require.Len(t, given, 1)
	assert.Equal(t, r1.ID, given[0].RideID)

	_, err = env.svc.Avis.ForChauffeur(ctx, 9999, Page{})
	assertKind(t, err, ErrNotFound)
}
