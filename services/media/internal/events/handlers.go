// Package events reacts to events published by other services.
package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/Skotchmaster/social_platform/pkg/eventbus"
	"github.com/Skotchmaster/social_platform/pkg/logging"
	"github.com/Skotchmaster/social_platform/services/media/internal/service"
)

var errMissingUserID = errors.New("event has no userId")

type MediaDeleter interface {
	DeleteMany(ctx context.Context, userID string, ids []string) (service.DeleteResult, error)
}

func Register(reg *eventbus.Registry, svc MediaDeleter) error {
	return reg.Subscribe(eventbus.PostDeleted, PostDeleted(svc))
}

// PostDeleted removes the media of a deleted post that belong to the post's
// author. Media owned by anyone else is left alone. If every item fails the
// event is retried. If only some fail, the rest stay deleted and the event is
// acknowledged with the failures reported.
func PostDeleted(svc MediaDeleter) eventbus.Handler {
	return func(ctx context.Context, ev eventbus.Event) error {
		var p eventbus.PostDeletedPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		l := logging.FromContext(ctx).With("handler", "media.post_deleted", "post_id", p.PostID, "event_id", ev.ID)

		if p.UserID == "" {
			return eventbus.Permanent(errMissingUserID)
		}
		if len(p.MediaIDs) == 0 {
			l.Info("post_deleted_no_media")
			return nil
		}

		res, err := svc.DeleteMany(ctx, p.UserID, p.MediaIDs)
		if err != nil {
			l.Error("post_media_cleanup_failed", "error", err)
			return err
		}

		switch {
		case res.Found == 0:
			l.Info("post_media_already_deleted", "requested", len(p.MediaIDs))
			return nil
		case len(res.Failed) == res.Found:
			l.Error("post_media_cleanup_failed", "failed", len(res.Failed), "error", res.Err())
			return fmt.Errorf("delete media of post %s: %w", p.PostID, res.Err())
		case len(res.Failed) > 0:
			l.Warn("post_media_cleanup_partial", "deleted", res.Deleted, "failed", len(res.Failed))
			return eventbus.Partial(fmt.Errorf("delete media of post %s: %w", p.PostID, res.Err()))
		}
		l.Info("post_media_cleaned", "deleted", res.Deleted)
		return nil
	}
}
