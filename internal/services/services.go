// Package services holds the business rules of the ride exchange. Every
// operation takes the acting driver explicitly.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/diewo77/vtc-exchange/gate"
	"github.com/diewo77/vtc-exchange/internal/events"
	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/diewo77/vtc-exchange/internal/notify"
	"github.com/diewo77/vtc-exchange/internal/storage"
	"gorm.io/gorm"
)

// Authorizer answers RBAC questions. It is the same evaluation path used by the route middleware.
type Authorizer interface {
	CanAccess(ctx context.Context, driverID uint, module string, action gate.Action) bool
	Allowed(ctx context.Context, driverID uint, module string, action gate.Action, resource any) bool
}

// ProfileCache is invalidated when roles or account status change.
type ProfileCache interface {
	InvalidateUser(driverID uint)
	InvalidateAll()
}

// PositionPublisher fans GPS samples out to live subscribers.
type PositionPublisher interface {
	Publish(sample models.RideTracking)
}

// Options carries the collaborators of the services.
type Options struct {
	Bus    *events.Bus
	Mailer notify.Mailer
	Store  storage.BlobStore
	Hub    PositionPublisher
	Authz  Authorizer
	Cache  ProfileCache
	Log    *slog.Logger

	BaseURL         string
	InvitationTTL   time.Duration
	ShareDefaultTTL time.Duration
	ShareMaximumTTL time.Duration
	MaxUploadSize   int64
}

// Services groups every service sharing one database handle.
type Services struct {
	Activity  *ActivityService
	Drivers   *DriverService
	RBAC      *RBACService
	Groupes   *GroupeService
	Rides     *RideService
	Ledger    *LedgerService
	Factures  *FactureService
	Messaging *MessagingService
	Avis      *AvisService
	Tracking  *TrackingService
	Documents *DocumentService
}

// New builds the services. Zero durations and sizes take their defaults.
func New(db *gorm.DB, opts Options) *Services {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.InvitationTTL <= 0 {
		opts.InvitationTTL = models.InvitationTTL
	}
	if opts.ShareDefaultTTL <= 0 {
		opts.ShareDefaultTTL = 48 * time.Hour
	}
	if opts.ShareMaximumTTL <= 0 {
		opts.ShareMaximumTTL = 30 * 24 * time.Hour
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = DefaultMaxUploadSize
	}

	activity := NewActivityService(db, opts.Log)
	factures := NewFactureService(db, opts.Bus, activity)
	return &Services{
		Activity:  activity,
		Drivers:   NewDriverService(db, opts.Cache, activity),
		RBAC:      NewRBACService(db, opts.Cache),
		Groupes:   NewGroupeService(db, opts.Mailer, activity, opts.Log, opts.BaseURL, opts.InvitationTTL),
		Rides:     NewRideService(db, opts.Bus, activity),
		Ledger:    NewLedgerService(db, factures, opts.Bus, activity),
		Factures:  factures,
		Messaging: NewMessagingService(db),
		Avis:      NewAvisService(db, activity),
		Tracking:  NewTrackingService(db, opts.Hub),
		Documents: NewDocumentService(db, opts.Store, opts.Authz, activity, opts.MaxUploadSize, opts.ShareDefaultTTL, opts.ShareMaximumTTL),
	}
}

// Page bounds list queries.
type Page struct {
	Limit  int
	Offset int
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func (p Page) apply(q *gorm.DB) *gorm.DB {
	limit := p.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := max(p.Offset, 0)
	return q.Limit(limit).Offset(offset)
}
