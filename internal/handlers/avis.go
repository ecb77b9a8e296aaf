package handlers

import (
	"log/slog"
	"net/http"

	"github.com/diewo77/vtc-exchange/httpx"
	"github.com/diewo77/vtc-exchange/internal/services"
)

// AvisHandler serves ride reviews.
type AvisHandler struct {
	base
	avis *services.AvisService
}

func NewAvisHandler(svc *services.Services, log *slog.Logger) *AvisHandler {
	return &AvisHandler{base: newBase(svc, log), avis: svc.Avis}
}

func (h *AvisHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in services.AvisInput
	if !decode(w, r, &in) {
		return
	}
	a, err := h.avis.Create(withClient(r), actor, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, a)
}

func (h *AvisHandler) CanRate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	rideID, ok := pathID(w, r, "rideId")
	if !ok {
		return
	}
	e, err := h.avis.CanRate(r.Context(), actor, rideID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

// ForChauffeur returns the rating and reviews of any driver.
func (h *AvisHandler) ForChauffeur(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	rating, err := h.avis.ForChauffeur(r.Context(), id, pageFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rating)
}

// Received returns the reviews about the driver.
func (h *AvisHandler) Received(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	rating, err := h.avis.Received(r.Context(), actor, pageFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rating)
}

// Given returns the reviews written by the driver.
func (h *AvisHandler) Given(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	avis, err := h.avis.Given(r.Context(), actor, pageFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, avis)
}
