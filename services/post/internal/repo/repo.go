package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Skotchmaster/social_platform/services/post/internal/models"
)

var ErrPostNotFound = errors.New("post not found")

type GormRepo struct {
	DB *gorm.DB
}

// CreatePost stores p and its creation event atomically.
func (r *GormRepo) CreatePost(ctx context.Context, p *models.Post, build func(*models.Post) (*models.OutboxEvent, error)) (*models.OutboxEvent, error) {
	var ev *models.OutboxEvent
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			return err
		}
		var err error
		if ev, err = build(p); err != nil {
			return err
		}
		return tx.Create(ev).Error
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (r *GormRepo) ListPosts(ctx context.Context, offset, limit int) (int64, []models.Post, error) {
	var total int64
	if err := r.DB.WithContext(ctx).Model(&models.Post{}).Count(&total).Error; err != nil {
		return 0, nil, err
	}

	items := make([]models.Post, 0, limit)
	if err := r.DB.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&items).Error; err != nil {
		return 0, nil, err
	}
	return total, items, nil
}

func (r *GormRepo) GetPost(ctx context.Context, id string) (*models.Post, error) {
	var p models.Post
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	return &p, nil
}

// DeleteOwnedPost deletes the post if userID owns it and records the
// deletion event in the same transaction. Posts owned by someone else are
// reported as not found.
func (r *GormRepo) DeleteOwnedPost(ctx context.Context, id, userID string, build func(*models.Post) (*models.OutboxEvent, error)) (*models.Post, *models.OutboxEvent, error) {
	var (
		post models.Post
		ev   *models.OutboxEvent
	)
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&post).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPostNotFound
			}
			return err
		}

		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Post{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrPostNotFound
		}

		var err error
		if ev, err = build(&post); err != nil {
			return err
		}
		return tx.Create(ev).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &post, ev, nil
}
