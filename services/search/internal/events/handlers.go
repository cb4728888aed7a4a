// Package events keeps the search index in step with post writes.
package events

import (
	"context"
	"errors"

	"github.com/Skotchmaster/social_platform/pkg/cache"
	"github.com/Skotchmaster/social_platform/pkg/eventbus"
	"github.com/Skotchmaster/social_platform/pkg/logging"
	"github.com/Skotchmaster/social_platform/services/search/internal/index"
)

var errMissingPostID = errors.New("event has no postId")

type Indexer interface {
	Put(ctx context.Context, p index.Post) error
	Delete(ctx context.Context, postID string) error
}

type Handlers struct {
	Index Indexer
	Cache *cache.Cache
}

func (h *Handlers) Register(reg *eventbus.Registry) error {
	if err := reg.Subscribe(eventbus.PostCreated, h.PostCreated); err != nil {
		return err
	}
	return reg.Subscribe(eventbus.PostDeleted, h.PostDeleted)
}

func (h *Handlers) PostCreated(ctx context.Context, ev eventbus.Event) error {
	var p eventbus.PostCreatedPayload
	if err := ev.Decode(&p); err != nil {
		return err
	}
	l := logging.FromContext(ctx).With("handler", "search.post_created", "post_id", p.PostID, "event_id", ev.ID)
	if p.PostID == "" {
		return eventbus.Permanent(errMissingPostID)
	}

	if err := h.Index.Put(ctx, index.Post{
		PostID:    p.PostID,
		UserID:    p.UserID,
		Content:   p.Content,
		CreatedAt: p.CreatedAt,
	}); err != nil {
		l.Error("post_index_failed", "error", err)
		return err
	}
	h.invalidate(ctx)
	l.Info("post_indexed")
	return nil
}

func (h *Handlers) PostDeleted(ctx context.Context, ev eventbus.Event) error {
	var p eventbus.PostDeletedPayload
	if err := ev.Decode(&p); err != nil {
		return err
	}
	l := logging.FromContext(ctx).With("handler", "search.post_deleted", "post_id", p.PostID, "event_id", ev.ID)
	if p.PostID == "" {
		return eventbus.Permanent(errMissingPostID)
	}

	if err := h.Index.Delete(ctx, p.PostID); err != nil {
		l.Error("post_unindex_failed", "error", err)
		return err
	}
	h.invalidate(ctx)
	l.Info("post_unindexed")
	return nil
}

// invalidate drops cached results computed before the index changed.
func (h *Handlers) invalidate(ctx context.Context) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Invalidate(ctx, cache.SearchPattern); err != nil {
		logging.FromContext(ctx).Warn("cache_invalidate_failed", "patterns", cache.SearchPattern, "error", err)
	}
}
