package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/diewo77/vtc-exchange/httpx"
	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/diewo77/vtc-exchange/internal/services"
	"github.com/diewo77/vtc-exchange/internal/tracking"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxInboundSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// LiveFeed hands out live GPS samples of a ride.
type LiveFeed interface {
	Subscribe(rideID uint, buf int) (<-chan models.RideTracking, func())
}

// TrackingHandler serves GPS positions of rides in progress.
type TrackingHandler struct {
	base
	tracking *services.TrackingService
	feed     LiveFeed
}

func NewTrackingHandler(svc *services.Services, feed LiveFeed, log *slog.Logger) *TrackingHandler {
	return &TrackingHandler{base: newBase(svc, log), tracking: svc.Tracking, feed: feed}
}

// Record stores a position sent by the accepteur.
func (h *TrackingHandler) Record(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	rideID, ok := pathID(w, r, "rideId")
	if !ok {
		return
	}
	var in services.PositionInput
	if !decode(w, r, &in) {
		return
	}
	sample, err := h.tracking.Record(r.Context(), actor, rideID, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sample)
}

// Track returns the samples of a ride, after ?since= (RFC3339) when given.
func (h *TrackingHandler) Track(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	rideID, ok := pathID(w, r, "rideId")
	if !ok {
		return
	}
	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"since": "invalid_date"})
			return
		}
		since = &t
	}
	samples, err := h.tracking.Track(r.Context(), actor, rideID, since)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, samples)
}

func (h *TrackingHandler) Last(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	rideID, ok := pathID(w, r, "rideId")
	if !ok {
		return
	}
	sample, err := h.tracking.Last(r.Context(), actor, rideID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sample)
}

// Stream upgrades to a websocket pushing every new sample of the ride,
// starting with the latest known one.
func (h *TrackingHandler) Stream(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	rideID, ok := pathID(w, r, "rideId")
	if !ok {
		return
	}
	if err := h.tracking.CanRead(r.Context(), actor, rideID); err != nil {
		h.fail(w, r, err)
		return
	}
	samples, cancel := h.feed.Subscribe(rideID, tracking.DefaultBuffer)
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "ride_id", rideID, "error", err)
		return
	}
	defer conn.Close()

	last, err := h.tracking.Last(r.Context(), actor, rideID)
	switch {
	case err == nil:
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(last); err != nil {
			return
		}
	case !errors.Is(err, services.ErrNotFound):
		h.log.Warn("loading last position failed", "ride_id", rideID, "error", err)
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(maxInboundSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case sample, ok := <-samples:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(sample); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
