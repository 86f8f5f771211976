package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"tournament-ledger/models"
)

// ActivityService reads the inbox and the admin audit trail written by the
// side-effect sinks.
type ActivityService struct {
	Store *LedgerStore
}

func NewActivityService(store *LedgerStore) *ActivityService {
	return &ActivityService{Store: store}
}

func clampLimit(limit, def, max int) int {
	if limit < 1 || limit > max {
		return def
	}
	return limit
}

// Notifications returns the user's newest notifications, optionally unread only.
func (s *ActivityService) Notifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	limit = clampLimit(limit, 50, 200)
	var out []models.Notification
	err := s.Store.read(ctx, "notifications", func(db *gorm.DB) error {
		q := db.Where("user_id = ?", userID)
		if unreadOnly {
			q = q.Where("read_at IS NULL")
		}
		return q.Order("created_at DESC").Limit(limit).Find(&out).Error
	})
	return out, err
}

// MarkRead stamps every unread notification of the user and returns how many changed.
func (s *ActivityService) MarkRead(ctx context.Context, userID string) (int64, error) {
	res := s.Store.DB.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", time.Now())
	return res.RowsAffected, res.Error
}

type AuditFilter struct {
	ActorID      string
	TargetUserID string
	Action       string
	Limit        int
}

func (s *ActivityService) AuditLog(ctx context.Context, f AuditFilter) ([]models.AdminAuditLog, error) {
	limit := clampLimit(f.Limit, 100, 500)
	var out []models.AdminAuditLog
	err := s.Store.read(ctx, "audit_log", func(db *gorm.DB) error {
		q := db.Model(&models.AdminAuditLog{})
		if f.ActorID != "" {
			q = q.Where("actor_id = ?", f.ActorID)
		}
		if f.TargetUserID != "" {
			q = q.Where("target_user_id = ?", f.TargetUserID)
		}
		if f.Action != "" {
			q = q.Where("action = ?", f.Action)
		}
		return q.Order("created_at DESC").Limit(limit).Find(&out).Error
	})
	return out, err
}
