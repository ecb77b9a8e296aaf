// Package handlers exposes the services as a JSON API.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/diewo77/vtc-exchange/auth"
	"github.com/diewo77/vtc-exchange/httpx"
	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/diewo77/vtc-exchange/internal/services"
)

// base carries what every handler needs to resolve the actor and report errors.
type base struct {
	drivers *services.DriverService
	log     *slog.Logger
}

func newBase(svc *services.Services, log *slog.Logger) base {
	if log == nil {
		log = slog.Default()
	}
	return base{drivers: svc.Drivers, log: log}
}

// actor loads the authenticated driver, answering 401 when there is none.
func (b base) actor(w http.ResponseWriter, r *http.Request) (*models.Driver, bool) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.JSONError(w, http.StatusUnauthorized, "unauthorized", nil)
		return nil, false
	}
	d, err := b.drivers.Get(r.Context(), uid)
	if errors.Is(err, services.ErrNotFound) {
		httpx.JSONError(w, http.StatusUnauthorized, "unauthorized", nil)
		return nil, false
	}
	if err != nil {
		b.fail(w, r, err)
		return nil, false
	}
	return d, true
}

// fail maps a service error to its HTTP answer. Unknown errors are logged
// and hidden behind internal_error.
func (b base) fail(w http.ResponseWriter, r *http.Request, err error) {
	var se *services.Error
	if errors.As(err, &se) {
		status := http.StatusBadRequest
		switch {
		case errors.Is(se.Kind, services.ErrUnauthorized):
			status = http.StatusUnauthorized
		case errors.Is(se.Kind, services.ErrForbidden):
			status = http.StatusForbidden
		case errors.Is(se.Kind, services.ErrNotFound):
			status = http.StatusNotFound
		}
		var details any
		if len(se.Fields) > 0 {
			details = se.Fields
		}
		httpx.JSONError(w, status, se.Message, details)
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	b.log.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
}

// pathID parses a numeric path parameter, answering 400 when malformed.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	id, err := strconv.ParseUint(r.PathValue(name), 10, 64)
	if err != nil || id == 0 {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", map[string]string{name: "invalid"})
		return 0, false
	}
	return uint(id), true
}

// decode reads the JSON body into dst, answering 400 on malformed input.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.Decode(r, dst); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return false
	}
	return true
}

// pageFrom reads limit and offset from the query string.
func pageFrom(r *http.Request) services.Page {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return services.Page{Limit: limit, Offset: offset}
}

// withClient attaches the caller address and user agent for the activity log.
func withClient(r *http.Request) context.Context {
	return services.WithClientInfo(r.Context(), clientIP(r), r.UserAgent())
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// list wraps a collection with its total for paginated listings.
func list(items any, total int64) map[string]any {
	return map[string]any{"items": items, "total": total}
}
