package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/social_platform/pkg/tokens"
	"github.com/Skotchmaster/social_platform/services/identity/internal/models"
)

// RefreshStore is the gorm implementation of tokens.RefreshStore.
type RefreshStore struct {
	DB *gorm.DB
}

func (s *RefreshStore) Save(ctx context.Context, tokenHash string, rec tokens.RefreshRecord) error {
	row := models.RefreshToken{
		UserID:    rec.UserID,
		SessionID: rec.SessionID,
		TokenHash: tokenHash,
		ExpiresAt: rec.ExpiresAt.UTC(),
	}
	return s.DB.WithContext(ctx).Create(&row).Error
}

// Consume removes the row for tokenHash and returns it. The delete decides
// the winner: a caller whose delete affects no row gets ErrRefreshNotFound
// even if it read the row first.
func (s *RefreshStore) Consume(ctx context.Context, tokenHash string) (*tokens.RefreshRecord, error) {
	var rec *tokens.RefreshRecord
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.RefreshToken
		if err := tx.Where("token_hash = ?", tokenHash).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return tokens.ErrRefreshNotFound
			}
			return err
		}

		res := tx.Where("id = ? AND token_hash = ?", row.ID, tokenHash).Delete(&models.RefreshToken{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return tokens.ErrRefreshNotFound
		}

		rec = &tokens.RefreshRecord{UserID: row.UserID, SessionID: row.SessionID, ExpiresAt: row.ExpiresAt}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *RefreshStore) Delete(ctx context.Context, tokenHash string) error {
	return s.DB.WithContext(ctx).Where("token_hash = ?", tokenHash).Delete(&models.RefreshToken{}).Error
}

// PurgeExpired deletes rows past their expiry and reports how many went.
func (s *RefreshStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&models.RefreshToken{})
	return res.RowsAffected, res.Error
}
