package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/diewo77/vtc-exchange/gate"
	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/diewo77/vtc-exchange/internal/storage"
	"github.com/diewo77/vtc-exchange/validation"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultMaxUploadSize caps uploaded documents.
const DefaultMaxUploadSize int64 = 10 << 20

// sniffLen is the number of bytes inspected to detect the content type.
const sniffLen = 512

// allowedTypes maps the accepted content types to the stored extension.
var allowedTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
}

// DocumentService stores compliance documents and runs their review workflow.
type DocumentService struct {
	db       *gorm.DB
	store    storage.BlobStore
	authz    Authorizer
	activity *ActivityService

	maxSize      int64
	shareDefault time.Duration
	shareMax     time.Duration
}

func NewDocumentService(db *gorm.DB, store storage.BlobStore, authz Authorizer, activity *ActivityService, maxSize int64, shareDefault, shareMax time.Duration) *DocumentService {
	return &DocumentService{
		db:           db,
		store:        store,
		authz:        authz,
		activity:     activity,
		maxSize:      maxSize,
		shareDefault: shareDefault,
		shareMax:     shareMax,
	}
}

// MaxSize returns the upload size limit in bytes.
func (s *DocumentService) MaxSize() int64 { return s.maxSize }

// UploadInput describes an uploaded file.
type UploadInput struct {
	Type         string
	OriginalName string
	ExpiresAt    *time.Time
	Body         io.Reader
}

// Upload stores a document for the actor. The content type is sniffed from
// the bytes, not trusted from the client.
func (s *DocumentService) Upload(ctx context.Context, actor *models.Driver, in UploadInput) (*models.Document, error) {
	v := validation.Violations{}
	validation.Required("type", in.Type, v)
	if !models.DocumentType(in.Type).Valid() {
		v.Add("type", "invalid_choice")
	}
	if in.Body == nil {
		v.Add("file", "required")
	}
	if !v.Empty() {
		return nil, invalidFields(v)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(in.Body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	head = head[:n]
	if n == 0 {
		return nil, invalidFields(validation.Violations{"file": "required"})
	}
	mimeType, _, _ := mime.ParseMediaType(http.DetectContentType(head))
	ext, ok := allowedTypes[mimeType]
	if !ok {
		return nil, invalidFields(validation.Violations{"file": "unsupported_type"})
	}

	body := io.MultiReader(bytes.NewReader(head), io.LimitReader(in.Body, s.maxSize-int64(n)+1))
	key, size, err := s.store.Put(ctx, actor.ID, ext, body)
	if err != nil {
		return nil, err
	}
	if size > s.maxSize {
		_ = s.store.Delete(ctx, key)
		return nil, invalidFields(validation.Violations{"file": "too_large"})
	}

	doc := &models.Document{
		ChauffeurID:  actor.ID,
		Type:         models.DocumentType(in.Type),
		Filename:     key,
		OriginalName: truncate(filepath.Base(in.OriginalName), 255),
		MimeType:     mimeType,
		Size:         size,
		Status:       models.DocumentStatusPending,
		ExpiresAt:    in.ExpiresAt,
	}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		_ = s.store.Delete(ctx, key)
		return nil, err
	}
	s.activity.Log(ctx, actor.ID, models.ActivityDocumentUpload, "Document déposé : "+string(doc.Type), map[string]any{"document_id": doc.ID})
	return doc, nil
}

// List returns the actor's documents, newest first.
func (s *DocumentService) List(ctx context.Context, actor *models.Driver) ([]models.Document, error) {
	var docs []models.Document
	err := s.db.WithContext(ctx).Where("chauffeur_id = ?", actor.ID).Order("created_at DESC, id DESC").Find(&docs).Error
	return docs, err
}

// ListPending returns the documents awaiting review, oldest first.
func (s *DocumentService) ListPending(ctx context.Context, page Page) ([]models.Document, error) {
	var docs []models.Document
	q := s.db.WithContext(ctx).Preload("Chauffeur").Where("status = ?", models.DocumentStatusPending).Order("created_at ASC, id ASC")
	err := page.apply(q).Find(&docs).Error
	return docs, err
}

// get loads a document the actor may act on: its owner, or an administrator.
func (s *DocumentService) get(ctx context.Context, actor *models.Driver, id uint, action gate.Action) (*models.Document, error) {
	var doc models.Document
	if err := s.db.WithContext(ctx).First(&doc, id).Error; err != nil {
		return nil, lookup(err, "document")
	}
	allowed := doc.ChauffeurID == actor.ID
	if s.authz != nil {
		allowed = s.authz.Allowed(ctx, actor.ID, models.ModuleDocuments, action, &doc)
	}
	if !allowed {
		return nil, forbidden("you cannot access this document")
	}
	return &doc, nil
}

// Get returns a document's metadata.
func (s *DocumentService) Get(ctx context.Context, actor *models.Driver, id uint) (*models.Document, error) {
	return s.get(ctx, actor, id, gate.ActionRead)
}

// Open returns a document with its content. The caller closes the reader.
func (s *DocumentService) Open(ctx context.Context, actor *models.Driver, id uint) (*models.Document, io.ReadCloser, error) {
	doc, err := s.get(ctx, actor, id, gate.ActionRead)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Open(ctx, doc.Filename)
	if err != nil {
		return nil, nil, err
	}
	return doc, rc, nil
}

// Delete removes a document that has not been approved.
func (s *DocumentService) Delete(ctx context.Context, actor *models.Driver, id uint) error {
	doc, err := s.get(ctx, actor, id, gate.ActionDelete)
	if err != nil {
		return err
	}
	if doc.Status == models.DocumentStatusApproved {
		return conflict("an approved document cannot be deleted")
	}
	if err := s.db.WithContext(ctx).Delete(doc).Error; err != nil {
		return err
	}
	return s.store.Delete(ctx, doc.Filename)
}

// Review decisions.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// ReviewInput approves or rejects a document.
type ReviewInput struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Reason   string `json:"reason" validate:"required_if=Decision reject,max=500"`
}

// Validate records the review of a pending document. Reviewers need
// chauffeurs:write and cannot review their own documents.
func (s *DocumentService) Validate(ctx context.Context, actor *models.Driver, id uint, in ReviewInput) (*models.Document, error) {
	in.Reason = strings.TrimSpace(in.Reason)
	if v := validation.Struct(in); !v.Empty() {
		return nil, invalidFields(v)
	}
	if s.authz == nil || !s.authz.CanAccess(ctx, actor.ID, models.ModuleChauffeurs, gate.ActionWrite) {
		return nil, forbidden("you cannot review documents")
	}
	var doc models.Document
	if err := s.db.WithContext(ctx).First(&doc, id).Error; err != nil {
		return nil, lookup(err, "document")
	}
	if doc.ChauffeurID == actor.ID {
		return nil, forbidden("you cannot review your own document")
	}
	now := time.Now()
	status := models.DocumentStatusApproved
	reason := ""
	if in.Decision == DecisionReject {
		status = models.DocumentStatusRejected
		reason = in.Reason
	}
	res := s.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ? AND status = ?", id, models.DocumentStatusPending).
		Updates(map[string]any{
			"status":           status,
			"validated_by_id":  actor.ID,
			"validated_at":     now,
			"rejection_reason": reason,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, conflict("document already reviewed")
	}
	doc.Status = status
	doc.ValidatedByID = &actor.ID
	doc.ValidatedAt = &now
	doc.RejectionReason = reason
	return &doc, nil
}

// ShareInput sets the lifetime of a share link, in hours. Zero takes the default.
type ShareInput struct {
	TTLHours int `json:"ttl_hours" validate:"gte=0"`
}

// Share creates a public link to one of the actor's documents.
func (s *DocumentService) Share(ctx context.Context, actor *models.Driver, id uint, in ShareInput) (*models.Document, error) {
	if v := validation.Struct(in); !v.Empty() {
		return nil, invalidFields(v)
	}
	ttl := s.shareDefault
	if in.TTLHours > 0 {
		ttl = time.Duration(in.TTLHours) * time.Hour
	}
	if ttl > s.shareMax {
		return nil, invalidFields(validation.Violations{"ttl_hours": "too_large"})
	}
	doc, err := s.get(ctx, actor, id, gate.ActionWrite)
	if err != nil {
		return nil, err
	}
	if doc.ChauffeurID != actor.ID {
		return nil, forbidden("only the owner can share this document")
	}
	token := uuid.NewString()
	expires := time.Now().Add(ttl)
	err = s.db.WithContext(ctx).Model(doc).Updates(map[string]any{"share_token": token, "share_expires_at": expires}).Error
	if err != nil {
		return nil, err
	}
	doc.ShareToken = &token
	doc.ShareExpiresAt = &expires
	return doc, nil
}

// OpenShared returns the document behind an unexpired share token.
func (s *DocumentService) OpenShared(ctx context.Context, token string) (*models.Document, io.ReadCloser, error) {
	var doc models.Document
	if err := s.db.WithContext(ctx).Where("share_token = ?", token).First(&doc).Error; err != nil {
		return nil, nil, lookup(err, "document")
	}
	if !doc.IsShared(time.Now()) {
		return nil, nil, notFound("share link expired")
	}
	rc, err := s.store.Open(ctx, doc.Filename)
	if err != nil {
		return nil, nil, err
	}
	return &doc, rc, nil
}
