package handlers

import (
	"log/slog"
	"net/http"

	"github.com/diewo77/vtc-exchange/httpx"
	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/diewo77/vtc-exchange/internal/services"
)

// GroupeHandler serves trust groups, their members and invitations.
type GroupeHandler struct {
	base
	groupes *services.GroupeService
}

func NewGroupeHandler(svc *services.Services, log *slog.Logger) *GroupeHandler {
	return &GroupeHandler{base: newBase(svc, log), groupes: svc.Groupes}
}

// List returns the groups the driver owns or belongs to.
func (h *GroupeHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	groupes, err := h.groupes.ListMine(r.Context(), actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, groupes)
}

func (h *GroupeHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in services.GroupeInput
	if !decode(w, r, &in) {
		return
	}
	g, err := h.groupes.Create(withClient(r), actor, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, g)
}

func (h *GroupeHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	g, err := h.groupes.Get(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}

func (h *GroupeHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in services.GroupeInput
	if !decode(w, r, &in) {
		return
	}
	g, err := h.groupes.Update(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}

// Delete deactivates a group.
func (h *GroupeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.groupes.Delete(r.Context(), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.NoContent(w)
}

func (h *GroupeHandler) Join(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	g, err := h.groupes.JoinByCode(withClient(r), actor, r.PathValue("code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}

func (h *GroupeHandler) RegenerateCode(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	g, err := h.groupes.RegenerateCode(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}

func (h *GroupeHandler) Invite(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in services.InviteInput
	if !decode(w, r, &in) {
		return
	}
	inv, err := h.groupes.Invite(withClient(r), actor, id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

// Invitations lists the pending invitations addressed to the driver.
func (h *GroupeHandler) Invitations(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	invs, err := h.groupes.MyInvitations(r.Context(), actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invs)
}

type respondRequest struct {
	Accept bool `json:"accept"`
}

func (h *GroupeHandler) Respond(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in respondRequest
	if !decode(w, r, &in) {
		return
	}
	inv, err := h.groupes.RespondInvitation(withClient(r), actor, r.PathValue("token"), in.Accept)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *GroupeHandler) Leave(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.groupes.Leave(r.Context(), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.NoContent(w)
}

func (h *GroupeHandler) Membres(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	membres, err := h.groupes.ListMembres(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, membres)
}

func (h *GroupeHandler) RemoveMembre(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	chauffeurID, ok := pathID(w, r, "chauffeurId")
	if !ok {
		return
	}
	if err := h.groupes.RemoveMembre(r.Context(), actor, id, chauffeurID); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.NoContent(w)
}

type membreRoleRequest struct {
	Role models.MembreRole `json:"role"`
}

func (h *GroupeHandler) ChangeMembreRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	chauffeurID, ok := pathID(w, r, "chauffeurId")
	if !ok {
		return
	}
	var in membreRoleRequest
	if !decode(w, r, &in) {
		return
	}
	if err := h.groupes.ChangeMembreRole(r.Context(), actor, id, chauffeurID, in.Role); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.NoContent(w)
}
