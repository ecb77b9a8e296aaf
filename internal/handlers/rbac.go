package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/diewo77/vtc-exchange/gate"
	"github.com/diewo77/vtc-exchange/httpx"
	"github.com/diewo77/vtc-exchange/internal/services"
)

// PermissionReader exposes the effective permissions of a driver.
type PermissionReader interface {
	Effective(ctx context.Context, driverID uint) (granted, denied []gate.Permission, err error)
}

// RBACHandler manages roles, their access rights and role assignment.
type RBACHandler struct {
	base
	rbac  *services.RBACService
	perms PermissionReader
}

func NewRBACHandler(svc *services.Services, perms PermissionReader, log *slog.Logger) *RBACHandler {
	return &RBACHandler{base: newBase(svc, log), rbac: svc.RBAC, perms: perms}
}

func (h *RBACHandler) Roles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.rbac.ListRoles(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *RBACHandler) Permissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.rbac.ListPermissions(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *RBACHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var in services.RoleInput
	if !decode(w, r, &in) {
		return
	}
	role, err := h.rbac.CreateRole(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *RBACHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in services.RoleInput
	if !decode(w, r, &in) {
		return
	}
	role, err := h.rbac.UpdateRole(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *RBACHandler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.rbac.DeleteRole(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.NoContent(w)
}

type assignRoleRequest struct {
	RoleID uint `json:"role_id"`
}

// AssignRole gives a driver a single role.
func (h *RBACHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in assignRoleRequest
	if !decode(w, r, &in) {
		return
	}
	d, err := h.rbac.AssignRole(r.Context(), actor, id, in.RoleID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

// Me returns the roles and effective permissions of the authenticated driver.
func (h *RBACHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	granted, denied, err := h.perms.Effective(r.Context(), actor.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	roles := make([]string, 0, len(actor.Roles))
	for _, role := range actor.Roles {
		roles = append(roles, role.Name)
	}
	if granted == nil {
		granted = []gate.Permission{}
	}
	if denied == nil {
		denied = []gate.Permission{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"chauffeur_id": actor.ID,
		"roles":        roles,
		"permissions":  granted,
		"denied":       denied,
	})
}
