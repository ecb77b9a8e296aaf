package policy

import (
	"context"
	"log/slog"
	"time"

	"github.com/diewo77/vtc-exchange/gate"
	"github.com/diewo77/vtc-exchange/internal/handlers"
	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/diewo77/vtc-exchange/internal/services"
	"github.com/diewo77/vtc-exchange/internal/tracking"
	"gorm.io/gorm"
)

// DefaultCacheTTL is how long resolved profiles are kept.
const DefaultCacheTTL = 5 * time.Minute

// RouterConfig holds the authorization gate, the services and the handlers built on them.
type RouterConfig struct {
	AuthGate *AuthGate
	Services *services.Services
	Hub      *tracking.Hub

	AuthHandler      *handlers.AuthHandler
	DriverHandler    *handlers.DriverHandler
	RBACHandler      *handlers.RBACHandler
	RideHandler      *handlers.RideHandler
	GroupeHandler    *handlers.GroupeHandler
	LedgerHandler    *handlers.LedgerHandler
	FactureHandler   *handlers.FactureHandler
	MessagingHandler *handlers.MessagingHandler
	AvisHandler      *handlers.AvisHandler
	TrackingHandler  *handlers.TrackingHandler
	DocumentHandler  *handlers.DocumentHandler
}

// Options configures NewRouterConfig. Services.Authz, Services.Cache and
// Services.Hub are filled in by NewRouterConfig.
type Options struct {
	CacheTTL time.Duration
	Services services.Options
	Log      *slog.Logger
}

// NewRouterConfig wires the gate, its resource policies, the services and the handlers.
func NewRouterConfig(db *gorm.DB, opts Options) *RouterConfig {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	authGate := NewAuthGate(db, opts.CacheTTL)

	// Documents belong to their uploader; reviewers read everyone's.
	isReviewer := func(ctx context.Context, driverID uint) bool {
		return authGate.CanAccess(ctx, driverID, models.ModuleChauffeurs, gate.ActionWrite)
	}
	authGate.RegisterPolicy(models.ModuleDocuments, NewAdminBypassPolicy(NewOwnershipPolicy(), isReviewer))

	hub := tracking.NewHub()
	svcOpts := opts.Services
	svcOpts.Authz = authGate
	svcOpts.Cache = authGate
	svcOpts.Hub = hub
	if svcOpts.Log == nil {
		svcOpts.Log = opts.Log
	}
	svc := services.New(db, svcOpts)

	log := opts.Log
	return &RouterConfig{
		AuthGate: authGate,
		Services: svc,
		Hub:      hub,

		AuthHandler:      handlers.NewAuthHandler(svc, log),
		DriverHandler:    handlers.NewDriverHandler(svc, log),
		RBACHandler:      handlers.NewRBACHandler(svc, authGate, log),
		RideHandler:      handlers.NewRideHandler(svc, log),
		GroupeHandler:    handlers.NewGroupeHandler(svc, log),
		LedgerHandler:    handlers.NewLedgerHandler(svc, log),
		FactureHandler:   handlers.NewFactureHandler(svc, log),
		MessagingHandler: handlers.NewMessagingHandler(svc, log),
		AvisHandler:      handlers.NewAvisHandler(svc, log),
		TrackingHandler:  handlers.NewTrackingHandler(svc, hub, log),
		DocumentHandler:  handlers.NewDocumentHandler(svc, log),
	}
}
