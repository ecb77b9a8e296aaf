package handlers

import (
	"log/slog"
	"net/http"

	"github.com/diewo77/vtc-exchange/httpx"
	"github.com/diewo77/vtc-exchange/internal/services"
)

// LedgerHandler serves the escrow transactions of the driver.
type LedgerHandler struct {
	base
	ledger *services.LedgerService
}

func NewLedgerHandler(svc *services.Services, log *slog.Logger) *LedgerHandler {
	return &LedgerHandler{base: newBase(svc, log), ledger: svc.Ledger}
}

// List returns the driver's transactions; ?status= and ?role=payeur|beneficiaire filter them.
func (h *LedgerHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	trxs, total, err := h.ledger.List(r.Context(), actor, services.TransactionFilter{
		Status: q.Get("status"),
		Role:   q.Get("role"),
		Page:   pageFrom(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list(trxs, total))
}

func (h *LedgerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	stats, err := h.ledger.Stats(r.Context(), actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *LedgerHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	trx, err := h.ledger.Get(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, trx)
}

// Complete releases the escrow; the invoice generated on the way, if any, is returned too.
func (h *LedgerHandler) Complete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	trx, facture, err := h.ledger.Complete(withClient(r), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transaction": trx, "facture": facture})
}

func (h *LedgerHandler) Refund(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	trx, err := h.ledger.Refund(withClient(r), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, trx)
}
