package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/diewo77/vtc-exchange/auth"
	"github.com/diewo77/vtc-exchange/httpx"
	"github.com/diewo77/vtc-exchange/internal/services"
)

// AuthHandler signs drivers up and in, and serves their own profile.
type AuthHandler struct {
	base
}

func NewAuthHandler(svc *services.Services, log *slog.Logger) *AuthHandler {
	return &AuthHandler{base: newBase(svc, log)}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account and opens a session.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in services.RegisterInput
	if !decode(w, r, &in) {
		return
	}
	d, err := h.drivers.Register(withClient(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	auth.CreateSession(w, d.ID)
	httpx.JSON(w, http.StatusCreated, d)
}

// Login checks credentials, sets the session cookie and returns a bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if !decode(w, r, &in) {
		return
	}
	d, err := h.drivers.Authenticate(withClient(r), in.Email, in.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	token, exp, err := auth.IssueToken(d.ID, time.Now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	auth.CreateSession(w, d.ID)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": exp,
		"chauffeur":  d,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSession(w)
	httpx.NoContent(w)
}

// Me returns the authenticated driver.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, actor)
}

// UpdateMe edits the authenticated driver's profile.
func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in services.ProfileInput
	if !decode(w, r, &in) {
		return
	}
	d, err := h.drivers.UpdateProfile(withClient(r), actor, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}
