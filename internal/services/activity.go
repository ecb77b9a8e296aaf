package services

import (
	"context"
	"log/slog"

	"github.com/diewo77/vtc-exchange/internal/models"
	"gorm.io/gorm"
)

type clientInfoKey struct{}

type clientInfo struct {
	ip        string
	userAgent string
}

// WithClientInfo attaches the caller's IP and user agent, recorded with activity entries.
func WithClientInfo(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientInfoKey{}, clientInfo{ip: ip, userAgent: userAgent})
}

// ActivityService appends to and reads the per-driver activity feed.
type ActivityService struct {
	db  *gorm.DB
	log *slog.Logger
}

func NewActivityService(db *gorm.DB, log *slog.Logger) *ActivityService {
	return &ActivityService{db: db, log: log}
}

// Log appends an entry. Failures are logged, not returned: the feed never blocks an operation.
func (s *ActivityService) Log(ctx context.Context, driverID uint, typ, description string, metadata map[string]any) {
	if s == nil {
		return
	}
	entry := models.ActivityLog{
		ChauffeurID: driverID,
		Type:        typ,
		Description: description,
		Metadata:    metadata,
	}
	if info, ok := ctx.Value(clientInfoKey{}).(clientInfo); ok {
		entry.IP = info.ip
		entry.UserAgent = truncate(info.userAgent, 255)
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.log.Warn("activity log failed", "chauffeur_id", driverID, "type", typ, "error", err)
	}
}

// ActivityFilter narrows List.
type ActivityFilter struct {
	Type string
	Page Page
}

// List returns the newest entries of driverID first, with the total count.
func (s *ActivityService) List(ctx context.Context, driverID uint, f ActivityFilter) ([]models.ActivityLog, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.ActivityLog{}).Where("chauffeur_id = ?", driverID)
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var logs []models.ActivityLog
	err := f.Page.apply(q.Order("created_at DESC, id DESC")).Find(&logs).Error
	return logs, total, err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
