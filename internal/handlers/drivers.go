package handlers

import (
	"log/slog"
	"net/http"

	"github.com/diewo77/vtc-exchange/httpx"
	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/diewo77/vtc-exchange/internal/services"
)

// DriverHandler serves driver administration, favorites and activity feeds.
type DriverHandler struct {
	base
	activity *services.ActivityService
}

func NewDriverHandler(svc *services.Services, log *slog.Logger) *DriverHandler {
	return &DriverHandler{base: newBase(svc, log), activity: svc.Activity}
}

// List returns drivers filtered by status and a search term.
func (h *DriverHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}
	q := r.URL.Query()
	drivers, total, err := h.drivers.List(r.Context(), services.DriverFilter{
		Status: q.Get("status"),
		Search: q.Get("q"),
		Page:   pageFrom(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list(drivers, total))
}

type statusRequest struct {
	Status models.DriverStatus `json:"status"`
}

// SetStatus blocks, suspends or reactivates a driver.
func (h *DriverHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in statusRequest
	if !decode(w, r, &in) {
		return
	}
	d, err := h.drivers.SetStatus(r.Context(), actor, id, in.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

type bulkDeleteRequest struct {
	IDs []uint `json:"ids"`
}

// BulkDelete removes drivers and reports the ones that were kept.
func (h *DriverHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in bulkDeleteRequest
	if !decode(w, r, &in) {
		return
	}
	res, err := h.drivers.BulkDelete(r.Context(), actor, in.IDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *DriverHandler) Favoris(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	favoris, err := h.drivers.Favoris(r.Context(), actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, favoris)
}

func (h *DriverHandler) AddFavori(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.drivers.AddFavori(r.Context(), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.NoContent(w)
}

func (h *DriverHandler) RemoveFavori(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.drivers.RemoveFavori(r.Context(), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.NoContent(w)
}

// MyActivity returns the authenticated driver's activity feed.
func (h *DriverHandler) MyActivity(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	h.feed(w, r, actor.ID)
}

// Activity returns the activity feed of any driver.
func (h *DriverHandler) Activity(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	h.feed(w, r, id)
}

func (h *DriverHandler) feed(w http.ResponseWriter, r *http.Request, driverID uint) {
	logs, total, err := h.activity.List(r.Context(), driverID, services.ActivityFilter{
		Type: r.URL.Query().Get("type"),
		Page: pageFrom(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list(logs, total))
}
