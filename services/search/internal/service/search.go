package service

import (
	"context"

	"github.com/Skotchmaster/social_platform/pkg/apperr"
	"github.com/Skotchmaster/social_platform/pkg/cache"
	"github.com/Skotchmaster/social_platform/pkg/logging"
	"github.com/Skotchmaster/social_platform/services/search/internal/index"
)

const ResultLimit = 10

type Searcher interface {
	Search(ctx context.Context, query string, size int) ([]index.Post, error)
}

type SearchService struct {
	Index Searcher
	Cache *cache.Cache
}

// SearchPosts returns up to ResultLimit posts matching query. Results are
// cached per normalized query until the next post write.
func (s *SearchService) SearchPosts(ctx context.Context, query string) ([]index.Post, error) {
	l := logging.FromContext(ctx).With("svc", "search.posts")
	q := cache.NormalizeQuery(query)
	if q == "" {
		l.Warn("search_rejected", "status", 400, "reason", "empty query")
		return nil, apperr.Validation("query is required")
	}

	return cache.Fetch(ctx, s.Cache, cache.SearchKey(q), cache.SearchTTL, func(ctx context.Context) ([]index.Post, error) {
		posts, err := s.Index.Search(ctx, q, ResultLimit)
		if err != nil {
			l.Error("search_failed", "status", 503, "error", err)
			return nil, apperr.Transient("Error while searching post", err)
		}
		return posts, nil
	})
}
