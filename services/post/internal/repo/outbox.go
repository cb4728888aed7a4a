package repo

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/Skotchmaster/social_platform/services/post/internal/models"
)

// PendingEvents returns undispatched events created before olderThan, oldest
// first.
func (r *GormRepo) PendingEvents(ctx context.Context, olderThan time.Time, limit int) ([]models.OutboxEvent, error) {
	var out []models.OutboxEvent
	err := r.DB.WithContext(ctx).
		Where("dispatched_at IS NULL AND created_at <= ?", olderThan.UTC()).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *GormRepo) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	return r.DB.WithContext(ctx).
		Model(&models.OutboxEvent{}).
		Where("id = ? AND dispatched_at IS NULL", id).
		Updates(map[string]any{
			"dispatched_at": at.UTC(),
			"attempts":      gorm.Expr("attempts + 1"),
			"last_error":    "",
		}).Error
}

func (r *GormRepo) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := truncateUTF8(cause.Error(), maxLastError)
	return r.DB.WithContext(ctx).
		Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": msg,
		}).Error
}

// PurgeDispatched removes dispatched events older than before.
func (r *GormRepo) PurgeDispatched(ctx context.Context, before time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).
		Where("dispatched_at IS NOT NULL AND dispatched_at < ?", before.UTC()).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

const maxLastError = 500

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
