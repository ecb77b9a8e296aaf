package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/diewo77/vtc-exchange/httpx"
	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/diewo77/vtc-exchange/internal/services"
)

// multipartOverhead leaves room for the form fields around the file.
const multipartOverhead = 1 << 20

// DocumentHandler serves compliance documents.
type DocumentHandler struct {
	base
	documents *services.DocumentService
}

func NewDocumentHandler(svc *services.Services, log *slog.Logger) *DocumentHandler {
	return &DocumentHandler{base: newBase(svc, log), documents: svc.Documents}
}

// Upload stores the multipart field "file" with its "type" and optional "expires_at".
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	limit := h.documents.MaxSize()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"file": "too_large"})
			return
		}
		httpx.JSONError(w, http.StatusBadRequest, "invalid_form", nil)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"file": "required"})
		return
	}
	defer file.Close()

	in := services.UploadInput{
		Type:         r.FormValue("type"),
		OriginalName: header.Filename,
		Body:         file,
	}
	if raw := r.FormValue("expires_at"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"expires_at": "invalid_date"})
			return
		}
		in.ExpiresAt = &t
	}
	doc, err := h.documents.Upload(withClient(r), actor, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	docs, err := h.documents.List(r.Context(), actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, docs)
}

// Pending lists the documents awaiting review.
func (h *DocumentHandler) Pending(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}
	docs, err := h.documents.ListPending(r.Context(), pageFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, docs)
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	doc, err := h.documents.Get(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

// Download streams the document content.
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	doc, rc, err := h.documents.Open(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer rc.Close()
	h.serve(w, doc, rc)
}

// Shared streams a document behind an unexpired share token. No authentication.
func (h *DocumentHandler) Shared(w http.ResponseWriter, r *http.Request) {
	doc, rc, err := h.documents.OpenShared(r.Context(), r.PathValue("token"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer rc.Close()
	h.serve(w, doc, rc)
}

func (h *DocumentHandler) serve(w http.ResponseWriter, doc *models.Document, body io.Reader) {
	w.Header().Set("Content-Type", doc.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(doc.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", doc.OriginalName))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.log.Warn("document stream interrupted", "document_id", doc.ID, "error", err)
	}
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.documents.Delete(r.Context(), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.NoContent(w)
}

// Validate approves or rejects a pending document.
func (h *DocumentHandler) Validate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in services.ReviewInput
	if !decode(w, r, &in) {
		return
	}
	doc, err := h.documents.Validate(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

// Share creates a public link to a document.
func (h *DocumentHandler) Share(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in services.ShareInput
	if r.ContentLength != 0 && !decode(w, r, &in) {
		return
	}
	doc, err := h.documents.Share(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"token":      doc.ShareToken,
		"expires_at": doc.ShareExpiresAt,
		"path":       "/api/documents/shared/" + *doc.ShareToken,
	})
}
