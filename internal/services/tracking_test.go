package services

import (
	"testing"
	"time"

	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestRecordPositionRequiresRideInProgress(t *testing.T) {
	env := setup(t)
	a := env.driver(t, "alice")
	b := env.driver(t, "bob")
	r := env.ride(t, a, publicRide(50))
	_, _, err := env.svc.Rides.Accept(ctx, b, r.ID)
	require.NoError(t, err)

	pos := PositionInput{Latitude: ptr(48.8566), Longitude: ptr(2.3522)}
	_, err = env.svc.Tracking.Record(ctx, b, r.ID, pos)
	assertKind(t, err, ErrConflict)

	_, err = env.svc.Rides.UpdateStatus(ctx, b, r.ID, models.ExecutionDepart)
	require.NoError(t, err)
	_, err = env.svc.Tracking.Record(ctx, a, r.ID, pos)
	assertKind(t, err, ErrForbidden)

	_, err = env.svc.Tracking.Record(ctx, b, r.ID, PositionInput{Latitude: ptr(91.0), Longitude: ptr(2.0)})
	assertField(t, err, "latitude", "out_of_range")
	_, err = env.svc.Tracking.Record(ctx, b, r.ID, PositionInput{Longitude: ptr(2.0)})
	assertField(t, err, "latitude", "required")

	live, cancel := env.hub.Subscribe(r.ID, 4)
	defer cancel()
	sample, err := env.svc.Tracking.Record(ctx, b, r.ID, pos)
	require.NoError(t, err)
	assert.Equal(t, b.ID, sample.ChauffeurID)
	select {
	case got := <-live:
		assert.Equal(t, sample.ID, got.ID)
	default:
		t.Fatal("sample was not published")
	}
}

func TestTrackSinceAndLast(t *testing.T) {
	env := setup(t)
	a := env.driver(t, "alice")
	b := env.driver(t, "bob")
	c := env.driver(t, "carol")
	r := env.ride(t, a, publicRide(50))
	_, _, err := env.svc.Rides.Accept(ctx, b, r.ID)
	require.NoError(t, err)
	_, err = env.svc.Rides.UpdateStatus(ctx, b, r.ID, models.ExecutionDepart)
	require.NoError(t, err)

	_, err = env.svc.Tracking.Last(ctx, a, r.ID)
	assertKind(t, err, ErrNotFound)

	base := time.Date(2026, 11, 2, 8, 30, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		_, err = env.svc.Tracking.Record(ctx, b, r.ID, PositionInput{
			Latitude:   ptr(48.85 + float64(i)/100),
			Longitude:  ptr(2.35),
			Speed:      ptr(30.0),
			RecordedAt: &at,
		})
		require.NoError(t, err)
	}

	all, err := env.svc.Tracking.Track(ctx, a, r.ID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	since := base.Add(30 * time.Second)
	recent, err := env.svc.Tracking.Track(ctx, a, r.ID, &since)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	// Late or duplicate stamps would be skipped by a poller resuming after the newest sample.
	for _, at := range []time.Time{base.Add(90 * time.Second), base.Add(2 * time.Minute)} {
		at := at
		_, err = env.svc.Tracking.Record(ctx, b, r.ID, PositionInput{
			Latitude:   ptr(48.90),
			Longitude:  ptr(2.35),
			RecordedAt: &at,
		})
		assertField(t, err, "recorded_at", "out_of_order")
	}
	assert.Equal(t, int64(3), env.count(t, &models.RideTracking{}, "ride_id = ?", r.ID))

	last, err := env.svc.Tracking.Last(ctx, b, r.ID)
	require.NoError(t, err)
	assert.InDelta(t, 48.87, last.Latitude, 1e-9)

	_, err = env.svc.Tracking.Track(ctx, c, r.ID, nil)
	assertKind(t, err, ErrForbidden)
}
