package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Skotchmaster/social_platform/pkg/apperr"
	"github.com/Skotchmaster/social_platform/pkg/cache"
	"github.com/Skotchmaster/social_platform/pkg/eventbus"
	"github.com/Skotchmaster/social_platform/pkg/logging"
	"github.com/Skotchmaster/social_platform/services/post/internal/models"
	"github.com/Skotchmaster/social_platform/services/post/internal/repo"
	"github.com/Skotchmaster/social_platform/services/post/internal/transport"
	"github.com/Skotchmaster/social_platform/services/post/internal/util"
)

var ErrPostNotFound = apperr.E(apperr.KindNotFound, "Post not found", nil)

type Repo interface {
	CreatePost(ctx context.Context, p *models.Post, build func(*models.Post) (*models.OutboxEvent, error)) (*models.OutboxEvent, error)
	ListPosts(ctx context.Context, offset, limit int) (int64, []models.Post, error)
	GetPost(ctx context.Context, id string) (*models.Post, error)
	DeleteOwnedPost(ctx context.Context, id, userID string, build func(*models.Post) (*models.OutboxEvent, error)) (*models.Post, *models.OutboxEvent, error)
	MarkDispatched(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, cause error) error
}

type Publisher interface {
	PublishEvent(ctx context.Context, ev eventbus.Event) error
}

type PostService struct {
	Repo   Repo
	Events Publisher
	Cache  *cache.Cache
	Clock  clockwork.Clock
}

func (s *PostService) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func validateCreate(req *transport.CreatePostRequest) error {
	req.Content = strings.TrimSpace(req.Content)
	switch n := utf8.RuneCountInString(req.Content); {
	case n < 3:
		return apperr.Validation("content must be at least 3 characters")
	case n > 500:
		return apperr.Validation("content must be at most 500 characters")
	}

	ids := make([]string, 0, len(req.MediaIDs))
	for _, id := range req.MediaIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, err := uuid.Parse(id); err != nil {
			return apperr.Validation("mediaIds must contain media ids")
		}
		ids = append(ids, id)
	}
	req.MediaIDs = ids
	return nil
}

func (s *PostService) CreatePost(ctx context.Context, userID string, req transport.CreatePostRequest) (*models.Post, error) {
	l := logging.FromContext(ctx).With("svc", "post.create")
	if err := validateCreate(&req); err != nil {
		l.Warn("create_post_rejected", "status", 400, "reason", err.Error())
		return nil, err
	}

	// The write and everything after it outlive a disconnecting caller.
	detached := context.WithoutCancel(ctx)
	post := &models.Post{UserID: userID, Content: req.Content, MediaIDs: req.MediaIDs}
	ev, err := s.Repo.CreatePost(detached, post, func(p *models.Post) (*models.OutboxEvent, error) {
		e, err := eventbus.NewEvent(eventbus.PostCreated, eventbus.PostCreatedPayload{
			PostID:    p.ID,
			UserID:    p.UserID,
			Content:   p.Content,
			CreatedAt: p.CreatedAt,
		})
		if err != nil {
			return nil, err
		}
		return models.OutboxFromEvent(e), nil
	})
	if err != nil {
		l.Error("create_post_failed", "status", 503, "error", err)
		return nil, apperr.Transient("Error creating post", err)
	}

	s.dispatch(detached, ev)
	s.invalidate(detached, cache.PostWritePatterns(post.ID))

	l.Info("post_created", "post_id", post.ID)
	return post, nil
}

func (s *PostService) ListPosts(ctx context.Context, page, size int) (*transport.PostList, error) {
	page, size = util.Normalize(page, size)
	offset, limit := util.Calculate(page, size)

	return cache.Fetch(ctx, s.Cache, cache.PostListKey(page, limit), cache.PostListTTL, func(ctx context.Context) (*transport.PostList, error) {
		total, posts, err := s.Repo.ListPosts(ctx, offset, limit)
		if err != nil {
			return nil, apperr.Transient("Error fetching post list", err)
		}
		return &transport.PostList{
			Posts:       posts,
			CurrentPage: page,
			TotalPages:  util.TotalPages(total, limit),
			TotalPosts:  total,
		}, nil
	})
}

func (s *PostService) GetPost(ctx context.Context, id string) (*models.Post, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrPostNotFound
	}
	return cache.Fetch(ctx, s.Cache, cache.PostKey(id), cache.PostTTL, func(ctx context.Context) (*models.Post, error) {
		p, err := s.Repo.GetPost(ctx, id)
		if err != nil {
			if errors.Is(err, repo.ErrPostNotFound) {
				return nil, ErrPostNotFound
			}
			return nil, apperr.Transient("Error fetching post detail", err)
		}
		return p, nil
	})
}

// DeletePost removes a post owned by userID and starts the media cascade.
// The delete, the publish and the cache invalidation run to completion even if
// the caller has gone away.
func (s *PostService) DeletePost(ctx context.Context, userID, id string) error {
	l := logging.FromContext(ctx).With("svc", "post.delete", "post_id", id)
	if _, err := uuid.Parse(id); err != nil {
		return ErrPostNotFound
	}

	detached := context.WithoutCancel(ctx)
	_, ev, err := s.Repo.DeleteOwnedPost(detached, id, userID, func(p *models.Post) (*models.OutboxEvent, error) {
		mediaIDs := p.MediaIDs
		if mediaIDs == nil {
			mediaIDs = []string{}
		}
		e, err := eventbus.NewEvent(eventbus.PostDeleted, eventbus.PostDeletedPayload{
			PostID:   p.ID,
			UserID:   userID,
			MediaIDs: mediaIDs,
		})
		if err != nil {
			return nil, err
		}
		return models.OutboxFromEvent(e), nil
	})
	if err != nil {
		if errors.Is(err, repo.ErrPostNotFound) {
			l.Warn("delete_post_rejected", "status", 404, "reason", "not found or not owner")
			return ErrPostNotFound
		}
		l.Error("delete_post_failed", "status", 503, "error", err)
		return apperr.Transient("Error deleting post", err)
	}

	s.dispatch(detached, ev)
	s.invalidate(detached, cache.PostWritePatterns(id))

	l.Info("post_deleted")
	return nil
}

// dispatch publishes ev and marks its outbox row. A failed publish leaves the
// row pending for the relay.
func (s *PostService) dispatch(ctx context.Context, ev *models.OutboxEvent) {
	l := logging.FromContext(ctx)
	if s.Events == nil {
		return
	}
	if err := s.Events.PublishEvent(ctx, ev.Event()); err != nil {
		l.Error("event_publish_failed", "event", ev.Name, "event_id", ev.ID, "reason", "left for outbox relay", "error", err)
		if merr := s.Repo.MarkFailed(ctx, ev.ID, err); merr != nil {
			l.Error("outbox_mark_failed", "event_id", ev.ID, "error", merr)
		}
		return
	}
	if err := s.Repo.MarkDispatched(ctx, ev.ID, s.now()); err != nil {
		l.Warn("outbox_mark_failed", "event_id", ev.ID, "error", err)
	}
}

func (s *PostService) invalidate(ctx context.Context, patterns []string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Invalidate(ctx, patterns...); err != nil {
		logging.FromContext(ctx).Error("cache_invalidate_failed", "patterns", patterns, "error", err)
	}
}
