package main

import (
	"net/http"

	"github.com/diewo77/vtc-exchange/auth"
	"github.com/diewo77/vtc-exchange/gate"
	"github.com/diewo77/vtc-exchange/httpx"
	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/diewo77/vtc-exchange/internal/policy"
	"gorm.io/gorm"
)

// App is the main application handler that sets up all routes.
type App struct {
	mux       *http.ServeMux
	db        *gorm.DB
	routerCfg *policy.RouterConfig
}

// NewApp creates a new application with all routes configured.
func NewApp(db *gorm.DB, routerCfg *policy.RouterConfig) *App {
	app := &App{
		mux:       http.NewServeMux(),
		db:        db,
		routerCfg: routerCfg,
	}
	app.setupRoutes()
	return app
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	auth.Middleware(a.mux).ServeHTTP(w, r)
}

// setupRoutes configures all application routes.
func (a *App) setupRoutes() {
	cfg := a.routerCfg

	// ─────────────────────────────────────────────────────────────────────────
	// Public routes
	// ─────────────────────────────────────────────────────────────────────────
	ah := cfg.AuthHandler
	a.mux.HandleFunc("GET /healthz", a.healthz)
	a.mux.HandleFunc("POST /api/auth/register", ah.Register)
	a.mux.HandleFunc("POST /api/auth/login", ah.Login)
	a.mux.HandleFunc("POST /api/auth/logout", ah.Logout)
	a.mux.HandleFunc("GET /api/documents/{id}/{action}", a.documentAction)

	// ─────────────────────────────────────────────────────────────────────────
	// Authenticated routes
	// ─────────────────────────────────────────────────────────────────────────
	dh := cfg.DriverHandler
	a.mux.Handle("GET /api/me", a.requireAuth(http.HandlerFunc(ah.Me)))
	a.mux.Handle("PUT /api/me", a.requireAuth(http.HandlerFunc(ah.UpdateMe)))
	a.mux.Handle("GET /api/activity", a.requireAuth(http.HandlerFunc(dh.MyActivity)))
	a.mux.Handle("GET /api/chauffeurs/favoris", a.requireAuth(http.HandlerFunc(dh.Favoris)))
	a.mux.Handle("POST /api/chauffeurs/{id}/favori", a.requireAuth(http.HandlerFunc(dh.AddFavori)))
	a.mux.Handle("DELETE /api/chauffeurs/{id}/favori", a.requireAuth(http.HandlerFunc(dh.RemoveFavori)))
	a.mux.Handle("GET /api/rbac/me", a.requireAuth(http.HandlerFunc(cfg.RBACHandler.Me)))

	// ─────────────────────────────────────────────────────────────────────────
	// Protected resource routes (auth + module permission)
	// ─────────────────────────────────────────────────────────────────────────
	rh := cfg.RideHandler
	a.protect("POST /api/rides", models.ModuleRides, gate.ActionWrite, rh.Create)
	a.protect("GET /api/rides/available", models.ModuleRides, gate.ActionRead, rh.Available)
	a.protect("GET /api/rides/mine", models.ModuleRides, gate.ActionRead, rh.Mine)
	a.protect("GET /api/rides/groupe/{id}", models.ModuleRides, gate.ActionRead, rh.ByGroupe)
	a.protect("GET /api/rides/{id}", models.ModuleRides, gate.ActionRead, rh.Get)
	a.protect("PUT /api/rides/{id}", models.ModuleRides, gate.ActionWrite, rh.Update)
	a.protect("DELETE /api/rides/{id}", models.ModuleRides, gate.ActionDelete, rh.Delete)
	a.protect("POST /api/rides/{id}/accept", models.ModuleRides, gate.ActionWrite, rh.Accept)
	a.protect("POST /api/rides/{id}/cancel", models.ModuleRides, gate.ActionWrite, rh.Cancel)
	a.protect("POST /api/rides/{id}/status", models.ModuleRides, gate.ActionWrite, rh.UpdateStatus)

	gh := cfg.GroupeHandler
	a.protect("GET /api/groupes", models.ModuleGroupes, gate.ActionRead, gh.List)
	a.protect("POST /api/groupes", models.ModuleGroupes, gate.ActionWrite, gh.Create)
	a.protect("GET /api/groupes/invitations", models.ModuleGroupes, gate.ActionRead, gh.Invitations)
	a.protect("POST /api/groupes/invitations/{token}/respond", models.ModuleGroupes, gate.ActionWrite, gh.Respond)
	a.protect("GET /api/groupes/{id}", models.ModuleGroupes, gate.ActionRead, gh.Get)
	a.protect("PUT /api/groupes/{id}", models.ModuleGroupes, gate.ActionWrite, gh.Update)
	a.protect("DELETE /api/groupes/{id}", models.ModuleGroupes, gate.ActionDelete, gh.Delete)
	a.protect("POST /api/groupes/{id}/{action}", models.ModuleGroupes, gate.ActionWrite, a.groupeAction)
	a.protect("GET /api/groupes/{id}/membres", models.ModuleGroupes, gate.ActionRead, gh.Membres)
	a.protect("PUT /api/groupes/{id}/membres/{chauffeurId}", models.ModuleGroupes, gate.ActionWrite, gh.ChangeMembreRole)
	a.protect("DELETE /api/groupes/{id}/membres/{chauffeurId}", models.ModuleGroupes, gate.ActionWrite, gh.RemoveMembre)

	lh := cfg.LedgerHandler
	a.protect("GET /api/transactions", models.ModuleTransactions, gate.ActionRead, lh.List)
	a.protect("GET /api/transactions/stats", models.ModuleTransactions, gate.ActionRead, lh.Stats)
	a.protect("GET /api/transactions/{id}", models.ModuleTransactions, gate.ActionRead, lh.Get)
	a.protect("POST /api/transactions/{id}/complete", models.ModuleTransactions, gate.ActionWrite, lh.Complete)
	a.protect("POST /api/transactions/{id}/refund", models.ModuleTransactions, gate.ActionWrite, lh.Refund)

	fh := cfg.FactureHandler
	a.protect("GET /api/factures", models.ModuleFactures, gate.ActionRead, fh.List)
	a.protect("POST /api/factures", models.ModuleFactures, gate.ActionWrite, fh.Create)
	a.protect("GET /api/factures/{id}", models.ModuleFactures, gate.ActionRead, fh.Get)
	a.protect("PUT /api/factures/{id}", models.ModuleFactures, gate.ActionWrite, fh.Update)
	a.protect("GET /api/factures/{id}/pdf", models.ModuleFactures, gate.ActionRead, fh.PDF)
	a.protect("POST /api/factures/{id}/{action}", models.ModuleFactures, gate.ActionWrite, a.factureAction)

	th := cfg.TrackingHandler
	a.protect("POST /api/tracking/position/{rideId}", models.ModuleTracking, gate.ActionWrite, th.Record)
	a.protect("GET /api/tracking/ride/{rideId}", models.ModuleTracking, gate.ActionRead, th.Track)
	a.protect("GET /api/tracking/ride/{rideId}/last", models.ModuleTracking, gate.ActionRead, th.Last)
	a.protect("GET /api/tracking/ride/{rideId}/ws", models.ModuleTracking, gate.ActionRead, th.Stream)

	mh := cfg.MessagingHandler
	a.protect("GET /api/conversations", models.ModuleMessages, gate.ActionRead, mh.List)
	a.protect("POST /api/conversations", models.ModuleMessages, gate.ActionWrite, mh.Open)
	a.protect("GET /api/conversations/{id}/messages", models.ModuleMessages, gate.ActionRead, mh.Messages)
	a.protect("POST /api/conversations/{id}/messages", models.ModuleMessages, gate.ActionWrite, mh.Send)
	a.protect("POST /api/conversations/{id}/read", models.ModuleMessages, gate.ActionWrite, mh.MarkRead)

	vh := cfg.AvisHandler
	a.protect("POST /api/avis", models.ModuleAvis, gate.ActionWrite, vh.Create)
	a.protect("GET /api/avis/can-rate/{rideId}", models.ModuleAvis, gate.ActionRead, vh.CanRate)
	a.protect("GET /api/avis/chauffeur/{id}", models.ModuleAvis, gate.ActionRead, vh.ForChauffeur)
	a.protect("GET /api/avis/mes-avis", models.ModuleAvis, gate.ActionRead, vh.Received)
	a.protect("GET /api/avis/mes-avis-donnes", models.ModuleAvis, gate.ActionRead, vh.Given)

	doc := cfg.DocumentHandler
	a.protect("GET /api/documents", models.ModuleDocuments, gate.ActionRead, doc.List)
	a.protect("POST /api/documents", models.ModuleDocuments, gate.ActionWrite, doc.Upload)
	a.protect("GET /api/documents/{id}", models.ModuleDocuments, gate.ActionRead, doc.Get)
	a.protect("DELETE /api/documents/{id}", models.ModuleDocuments, gate.ActionDelete, doc.Delete)
	a.protect("POST /api/documents/{id}/share", models.ModuleDocuments, gate.ActionWrite, doc.Share)

	// ─────────────────────────────────────────────────────────────────────────
	// Administration
	// ─────────────────────────────────────────────────────────────────────────
	a.protect("GET /api/documents/pending", models.ModuleChauffeurs, gate.ActionWrite, doc.Pending)
	a.protect("POST /api/documents/{id}/validate", models.ModuleChauffeurs, gate.ActionWrite, doc.Validate)
	a.protect("GET /api/chauffeurs", models.ModuleChauffeurs, gate.ActionRead, dh.List)
	a.protect("PUT /api/chauffeurs/{id}/status", models.ModuleChauffeurs, gate.ActionWrite, dh.SetStatus)
	a.protect("POST /api/chauffeurs/bulk-delete", models.ModuleChauffeurs, gate.ActionDelete, dh.BulkDelete)
	a.protect("GET /api/chauffeurs/{id}/activity", models.ModuleActivity, gate.ActionRead, dh.Activity)

	bh := cfg.RBACHandler
	a.protect("GET /api/rbac/roles", models.ModuleRBAC, gate.ActionRead, bh.Roles)
	a.protect("POST /api/rbac/roles", models.ModuleRBAC, gate.ActionWrite, bh.CreateRole)
	a.protect("PUT /api/rbac/roles/{id}", models.ModuleRBAC, gate.ActionWrite, bh.UpdateRole)
	a.protect("DELETE /api/rbac/roles/{id}", models.ModuleRBAC, gate.ActionDelete, bh.DeleteRole)
	a.protect("GET /api/rbac/permissions", models.ModuleRBAC, gate.ActionRead, bh.Permissions)
	a.protect("PUT /api/rbac/users/{id}/role", models.ModuleRBAC, gate.ActionWrite, bh.AssignRole)
}

// protect registers a route requiring authentication and module:action.
func (a *App) protect(pattern, module string, action gate.Action, h http.HandlerFunc) {
	a.mux.Handle(pattern, a.requireAuth(a.requirePermission(module, action)(h)))
}

// groupeAction dispatches POST /api/groupes/{id}/{action}. The join route
// /api/groupes/join/{code} shares its shape.
func (a *App) groupeAction(w http.ResponseWriter, r *http.Request) {
	gh := a.routerCfg.GroupeHandler
	if r.PathValue("id") == "join" {
		r.SetPathValue("code", r.PathValue("action"))
		gh.Join(w, r)
		return
	}
	switch r.PathValue("action") {
	case "invite":
		gh.Invite(w, r)
	case "leave":
		gh.Leave(w, r)
	case "regenerate-code":
		gh.RegenerateCode(w, r)
	default:
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
	}
}

// factureAction dispatches POST /api/factures/{id}/{action}. The generation
// route /api/factures/generate/{rideId} shares its shape.
func (a *App) factureAction(w http.ResponseWriter, r *http.Request) {
	fh := a.routerCfg.FactureHandler
	if r.PathValue("id") == "generate" {
		r.SetPathValue("rideId", r.PathValue("action"))
		fh.Generate(w, r)
		return
	}
	switch r.PathValue("action") {
	case "issue":
		fh.Issue(w, r)
	case "pay":
		fh.Pay(w, r)
	case "cancel":
		fh.Cancel(w, r)
	default:
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
	}
}

// documentAction dispatches GET /api/documents/{id}/{action}. Shared links
// (/api/documents/shared/{token}) are public; downloads need documents:read.
func (a *App) documentAction(w http.ResponseWriter, r *http.Request) {
	dh := a.routerCfg.DocumentHandler
	if r.PathValue("id") == "shared" {
		r.SetPathValue("token", r.PathValue("action"))
		dh.Shared(w, r)
		return
	}
	if r.PathValue("action") != "download" {
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	a.requireAuth(a.requirePermission(models.ModuleDocuments, gate.ActionRead)(http.HandlerFunc(dh.Download))).ServeHTTP(w, r)
}

// ─────────────────────────────────────────────────────────────────────────────
// Middleware
// ─────────────────────────────────────────────────────────────────────────────

// requireAuth answers 401 unless a valid, non-blocked driver is attached.
func (a *App) requireAuth(next http.Handler) http.Handler {
	return auth.RequireAuth(next)
}

// requirePermission wraps a handler to require module:action.
func (a *App) requirePermission(module string, action gate.Action) func(http.Handler) http.Handler {
	return a.routerCfg.AuthGate.RequirePermission(module, action)
}

func (a *App) healthz(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := a.db.DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		httpx.JSONError(w, http.StatusServiceUnavailable, "database_unavailable", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
