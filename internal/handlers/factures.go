package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/diewo77/vtc-exchange/httpx"
	"github.com/diewo77/vtc-exchange/internal/services"
)

// FactureHandler serves invoices.
type FactureHandler struct {
	base
	factures *services.FactureService
}

func NewFactureHandler(svc *services.Services, log *slog.Logger) *FactureHandler {
	return &FactureHandler{base: newBase(svc, log), factures: svc.Factures}
}

// List returns the driver's invoices; ?status=, ?type= and ?role=emetteur|destinataire filter them.
func (h *FactureHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	factures, total, err := h.factures.List(r.Context(), actor, services.FactureFilter{
		Status: q.Get("status"),
		Type:   q.Get("type"),
		Role:   q.Get("role"),
		Page:   pageFrom(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list(factures, total))
}

func (h *FactureHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	f, err := h.factures.Get(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, f)
}

// Create drafts a manual invoice.
func (h *FactureHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in services.FactureInput
	if !decode(w, r, &in) {
		return
	}
	f, err := h.factures.CreateManual(withClient(r), actor, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, f)
}

func (h *FactureHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in services.FactureUpdate
	if !decode(w, r, &in) {
		return
	}
	f, err := h.factures.Update(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, f)
}

// Generate issues the prestation invoice of an executed ride.
func (h *FactureHandler) Generate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	rideID, ok := pathID(w, r, "rideId")
	if !ok {
		return
	}
	f, err := h.factures.GenerateForRide(withClient(r), actor, rideID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, f)
}

func (h *FactureHandler) Issue(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	f, err := h.factures.Issue(withClient(r), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, f)
}

func (h *FactureHandler) Pay(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	f, err := h.factures.MarkAsPaid(withClient(r), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, f)
}

func (h *FactureHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	f, err := h.factures.Cancel(withClient(r), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, f)
}

// PDF renders the invoice as an attachment.
func (h *FactureHandler) PDF(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	body, f, err := h.factures.PDF(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	name := f.NumeroString()
	if name == "" {
		name = "brouillon-" + strconv.FormatUint(uint64(f.ID), 10)
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".pdf"))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
