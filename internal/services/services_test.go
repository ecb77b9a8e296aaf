package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/diewo77/vtc-exchange/gate"
	"github.com/diewo77/vtc-exchange/internal/db"
	"github.com/diewo77/vtc-exchange/internal/events"
	"github.com/diewo77/vtc-exchange/internal/logger"
	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/diewo77/vtc-exchange/internal/notify"
	"github.com/diewo77/vtc-exchange/internal/storage"
	"github.com/diewo77/vtc-exchange/internal/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// fakeAuthz grants everything to admins and owner-only access to Ownable resources.
type fakeAuthz struct {
	admins map[uint]bool
}

func (f *fakeAuthz) CanAccess(_ context.Context, driverID uint, _ string, _ gate.Action) bool {
	return f.admins[driverID]
}

func (f *fakeAuthz) Allowed(_ context.Context, driverID uint, _ string, _ gate.Action, resource any) bool {
	if f.admins[driverID] {
		return true
	}
	if o, ok := resource.(interface{ OwnerID() uint }); ok {
		return o.OwnerID() == driverID
	}
	return resource == nil
}

type fakeCache struct {
	users []uint
	all   int
}

func (c *fakeCache) InvalidateUser(id uint) { c.users = append(c.users, id) }
func (c *fakeCache) InvalidateAll()         { c.all++ }

type testEnv struct {
	db     *gorm.DB
	svc    *Services
	events *events.Memory
	outbox *notify.Outbox
	hub    *tracking.Hub
	authz  *fakeAuthz
	cache  *fakeCache
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true, Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(conn))
	require.NoError(t, db.Seed(conn))

	store, err := storage.NewFS(t.TempDir())
	require.NoError(t, err)
	env := &testEnv{
		db:     conn,
		events: &events.Memory{},
		outbox: &notify.Outbox{},
		hub:    tracking.NewHub(),
		authz:  &fakeAuthz{admins: map[uint]bool{}},
		cache:  &fakeCache{},
	}
	env.svc = New(conn, Options{
		Bus:     events.NewBus(env.events, logger.Discard()),
		Mailer:  env.outbox,
		Store:   store,
		Hub:     env.hub,
		Authz:   env.authz,
		Cache:   env.cache,
		Log:     logger.Discard(),
		BaseURL: "https://vtc.test",
	})
	env.svc.Drivers.cost = bcrypt.MinCost
	return env
}

var ctx = context.Background()

func (e *testEnv) driver(t *testing.T, name string) *models.Driver {
	t.Helper()
	d, err := e.svc.Drivers.Register(ctx, RegisterInput{
		Email:    name + "@vtc.test",
		Password: "motdepasse",
		Nom:      strings.ToUpper(name),
		Prenom:   name,
	})
	require.NoError(t, err)
	return d
}

func (e *testEnv) withRole(t *testing.T, d *models.Driver, roleName string) *models.Driver {
	t.Helper()
	var role models.Role
	require.NoError(t, e.db.Where("name = ?", roleName).First(&role).Error)
	require.NoError(t, e.db.Model(d).Association("Roles").Replace([]models.Role{role}))
	d.Roles = []models.Role{role}
	return d
}

func publicRide(prix float64) RideInput {
	return RideInput{
		Depart:     "Gare de Lyon, Paris",
		Arrivee:    "Aéroport CDG",
		DateCourse: "2026-11-02",
		Heure:      "08:30",
		Prix:       prix,
		Passagers:  2,
	}
}

func (e *testEnv) ride(t *testing.T, vendeur *models.Driver, in RideInput) *models.Ride {
	t.Helper()
	r, err := e.svc.Rides.Create(ctx, vendeur, in)
	require.NoError(t, err)
	return r
}

// executedRide posts a public ride by vendeur, accepted and executed by accepteur.
func (e *testEnv) executedRide(t *testing.T, vendeur, accepteur *models.Driver, prix float64) (*models.Ride, *models.Transaction) {
	t.Helper()
	r := e.ride(t, vendeur, publicRide(prix))
	_, trx, err := e.svc.Rides.Accept(ctx, accepteur, r.ID)
	require.NoError(t, err)
	for _, m := range []models.ExecutionStatus{models.ExecutionDepart, models.ExecutionPriseEnCharge, models.ExecutionTerminee} {
		r, err = e.svc.Rides.UpdateStatus(ctx, accepteur, r.ID, m)
		require.NoError(t, err)
	}
	return r, trx
}

func (e *testEnv) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	q := e.db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func assertKind(t *testing.T, err error, kind error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, kind), "got %v, want kind %v", err, kind)
}

func assertField(t *testing.T, err error, field, code string) {
	t.Helper()
	var se *Error
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, code, se.Fields[field], "fields: %v", se.Fields)
}

func TestPageApplyBounds(t *testing.T) {
	env := setup(t)
	a := env.driver(t, "alice")
	for i := 0; i < 3; i++ {
		env.ride(t, a, publicRide(10))
	}
	rides, err := env.svc.Rides.ListMine(ctx, a, "", Page{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, rides, 2)
	rides, err = env.svc.Rides.ListMine(ctx, a, "", Page{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, rides, 1)
}

func TestActivityFeed(t *testing.T) {
	env := setup(t)
	a := env.driver(t, "alice")
	c := WithClientInfo(ctx, "203.0.113.7", "curl/8")
	env.svc.Activity.Log(c, a.ID, models.ActivityLogin, "Connexion", nil)

	logs, total, err := env.svc.Activity.List(ctx, a.ID, ActivityFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Equal(t, models.ActivityLogin, logs[0].Type)
	assert.Equal(t, "203.0.113.7", logs[0].IP)

	logs, total, err = env.svc.Activity.List(ctx, a.ID, ActivityFilter{Type: models.ActivityRegister})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, models.ActivityRegister, logs[0].Type)
}

func TestNilActivityServiceIsNoop(t *testing.T) {
	var s *ActivityService
	s.Log(ctx, 1, models.ActivityLogin, "x", nil)
}
