package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Skotchmaster/social_platform/pkg/apperr"
	"github.com/Skotchmaster/social_platform/pkg/logging"
	"github.com/Skotchmaster/social_platform/services/media/internal/models"
)

const DefaultMaxUploadBytes = 5 << 20

type Repo interface {
	CreateMedia(ctx context.Context, m *models.Media) error
	ListMedia(ctx context.Context) ([]models.Media, error)
	MediaByIDs(ctx context.Context, userID string, ids []string) ([]models.Media, error)
	DeleteMedia(ctx context.Context, id string) (bool, error)
}

type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

type MediaService struct {
	Repo  Repo
	Store ObjectStore
	// Concurrency bounds parallel deletes while handling one event.
	Concurrency int
}

type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

func objectKey(userID, name string) string {
	ext := strings.ToLower(path.Ext(name))
	return fmt.Sprintf("media/%s/%s%s", userID, uuid.NewString(), ext)
}

func (s *MediaService) Upload(ctx context.Context, userID string, up Upload) (*models.Media, error) {
	l := logging.FromContext(ctx).With("svc", "media.upload")
	if up.Body == nil || up.Size <= 0 {
		return nil, apperr.Validation("No file found. Please add a file and try again!")
	}
	if up.ContentType == "" {
		up.ContentType = "application/octet-stream"
	}

	key := objectKey(userID, up.Name)
	l.Info("media_upload_started", "name", up.Name, "type", up.ContentType, "size", up.Size)
	if err := s.Store.Put(ctx, key, up.Body, up.Size, up.ContentType); err != nil {
		l.Error("media_upload_failed", "status", 503, "error", err)
		return nil, apperr.Transient("Error uploading media", err)
	}

	m := &models.Media{
		UserID:       userID,
		ObjectKey:    key,
		OriginalName: up.Name,
		MimeType:     up.ContentType,
		URL:          s.Store.URL(key),
	}
	if err := s.Repo.CreateMedia(ctx, m); err != nil {
		if derr := s.Store.Delete(context.WithoutCancel(ctx), key); derr != nil {
			l.Warn("orphan_object_left", "key", key, "error", derr)
		}
		l.Error("media_save_failed", "status", 503, "error", err)
		return nil, apperr.Transient("Error saving media", err)
	}

	l.Info("media_uploaded", "media_id", m.ID, "key", key)
	return m, nil
}

func (s *MediaService) ListMedia(ctx context.Context) ([]models.Media, error) {
	items, err := s.Repo.ListMedia(ctx)
	if err != nil {
		return nil, apperr.Transient("Error fetching media", err)
	}
	return items, nil
}

// DeleteResult counts what happened to the media of one deleted post.
type DeleteResult struct {
	Found   int
	Deleted int
	Failed  map[string]error
}

// DeleteMany deletes the object and then the row of every media in ids that
// still exists and is owned by userID. Items are independent: one failing does
// not stop the rest. Ids without such a row are skipped.
func (s *MediaService) DeleteMany(ctx context.Context, userID string, ids []string) (DeleteResult, error) {
	l := logging.FromContext(ctx)

	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	rows, err := s.Repo.MediaByIDs(ctx, userID, valid)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("lookup media: %w", err)
	}

	res := DeleteResult{Found: len(rows), Failed: map[string]error{}}
	var mu sync.Mutex

	var g errgroup.Group
	limit := s.Concurrency
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)
	for _, m := range rows {
		g.Go(func() error {
			err := s.deleteOne(ctx, m)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed[m.ID] = err
				l.Error("media_delete_failed", "media_id", m.ID, "error", err)
				return nil
			}
			res.Deleted++
			l.Info("media_deleted", "media_id", m.ID)
			return nil
		})
	}
	_ = g.Wait()
	return res, nil
}

func (s *MediaService) deleteOne(ctx context.Context, m models.Media) error {
	if err := s.Store.Delete(ctx, m.ObjectKey); err != nil {
		return err
	}
	if _, err := s.Repo.DeleteMedia(ctx, m.ID); err != nil {
		return fmt.Errorf("delete media row: %w", err)
	}
	return nil
}

// Err summarizes failed items, or nil when every item was deleted.
func (r DeleteResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for id, err := range r.Failed {
		errs = append(errs, fmt.Errorf("media %s: %w", id, err))
	}
	return errors.Join(errs...)
}
