package handlers

import (
	"log/slog"
	"net/http"

	"github.com/diewo77/vtc-exchange/httpx"
	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/diewo77/vtc-exchange/internal/services"
)

// RideHandler serves the ride exchange.
type RideHandler struct {
	base
	rides *services.RideService
}

func NewRideHandler(svc *services.Services, log *slog.Logger) *RideHandler {
	return &RideHandler{base: newBase(svc, log), rides: svc.Rides}
}

func (h *RideHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in services.RideInput
	if !decode(w, r, &in) {
		return
	}
	ride, err := h.rides.Create(withClient(r), actor, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ride)
}

func (h *RideHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ride, err := h.rides.Get(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ride)
}

// Available lists the rides the driver can accept.
func (h *RideHandler) Available(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	rides, err := h.rides.ListAvailable(r.Context(), actor, pageFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rides)
}

func (h *RideHandler) ByGroupe(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	rides, err := h.rides.ListByGroupe(r.Context(), actor, id, pageFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rides)
}

// Mine lists the driver's rides; ?role=vendeur|accepteur narrows the side.
func (h *RideHandler) Mine(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	rides, err := h.rides.ListMine(r.Context(), actor, r.URL.Query().Get("role"), pageFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rides)
}

func (h *RideHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in services.RideInput
	if !decode(w, r, &in) {
		return
	}
	ride, err := h.rides.Update(withClient(r), actor, id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ride)
}

func (h *RideHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.rides.Delete(withClient(r), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.NoContent(w)
}

// Accept takes a ride and opens its escrow transaction.
func (h *RideHandler) Accept(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ride, trx, err := h.rides.Accept(withClient(r), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ride": ride, "transaction": trx})
}

func (h *RideHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ride, err := h.rides.Cancel(withClient(r), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ride)
}

type milestoneRequest struct {
	StatutExecution models.ExecutionStatus `json:"statut_execution"`
}

// UpdateStatus records the next execution milestone.
func (h *RideHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in milestoneRequest
	if !decode(w, r, &in) {
		return
	}
	ride, err := h.rides.UpdateStatus(withClient(r), actor, id, in.StatutExecution)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ride)
}
