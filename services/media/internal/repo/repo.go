package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/Skotchmaster/social_platform/services/media/internal/models"
)

type GormRepo struct {
	DB *gorm.DB
}

func (r *GormRepo) CreateMedia(ctx context.Context, m *models.Media) error {
	return r.DB.WithContext(ctx).Create(m).Error
}

func (r *GormRepo) ListMedia(ctx context.Context) ([]models.Media, error) {
	out := make([]models.Media, 0)
	err := r.DB.WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&out).Error
	return out, err
}

// MediaByIDs returns the rows among ids that still exist and belong to userID.
func (r *GormRepo) MediaByIDs(ctx context.Context, userID string, ids []string) ([]models.Media, error) {
	out := make([]models.Media, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	err := r.DB.WithContext(ctx).Where("id IN ? AND user_id = ?", ids, userID).Find(&out).Error
	return out, err
}

// DeleteMedia removes the row if it still exists. Deleting a missing row is
// not an error.
func (r *GormRepo) DeleteMedia(ctx context.Context, id string) (bool, error) {
	res := r.DB.WithContext(ctx).Where("id = ?", id).Delete(&models.Media{})
	return res.RowsAffected > 0, res.Error
}
