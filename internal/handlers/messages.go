package handlers

import (
	"log/slog"
	"net/http"

	"github.com/diewo77/vtc-exchange/httpx"
	"github.com/diewo77/vtc-exchange/internal/services"
)

// MessagingHandler serves ride conversations.
type MessagingHandler struct {
	base
	messaging *services.MessagingService
}

func NewMessagingHandler(svc *services.Services, log *slog.Logger) *MessagingHandler {
	return &MessagingHandler{base: newBase(svc, log), messaging: svc.Messaging}
}

// List returns the driver's conversations with their unread counts.
func (h *MessagingHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	convs, err := h.messaging.ListConversations(r.Context(), actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	unread, err := h.messaging.UnreadCount(r.Context(), actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"conversations": convs, "unread": unread})
}

// Open finds or creates the conversation of a ride with a participant.
func (h *MessagingHandler) Open(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in services.OpenInput
	if !decode(w, r, &in) {
		return
	}
	conv, err := h.messaging.OpenConversation(r.Context(), actor, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, conv)
}

func (h *MessagingHandler) Messages(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	msgs, err := h.messaging.Messages(r.Context(), actor, id, pageFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, msgs)
}

func (h *MessagingHandler) Send(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in services.SendInput
	if !decode(w, r, &in) {
		return
	}
	msg, err := h.messaging.Send(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, msg)
}

// MarkRead marks the messages received in a conversation as read.
func (h *MessagingHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	n, err := h.messaging.MarkRead(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"marked": n})
}
