package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/social_platform/pkg/apperr"
	"github.com/Skotchmaster/social_platform/pkg/cache"
	"github.com/Skotchmaster/social_platform/pkg/db/dbtest"
	"github.com/Skotchmaster/social_platform/pkg/eventbus"
	"github.com/Skotchmaster/social_platform/services/post/internal/models"
	"github.com/Skotchmaster/social_platform/services/post/internal/repo"
	"github.com/Skotchmaster/social_platform/services/post/internal/transport"
)

type fakePublisher struct {
	mu      sync.Mutex
	events  []eventbus.Event
	ctxErrs []error
	fail    bool
}

func (p *fakePublisher) PublishEvent(ctx context.Context, ev eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ctxErrs = append(p.ctxErrs, ctx.Err())
	if p.fail {
		return &eventbus.PublishError{Topic: ev.Name, EventID: ev.ID, Err: errors.New("broker down")}
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) named(name string) []eventbus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []eventbus.Event
	for _, ev := range p.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	svc  *PostService
	repo *repo.GormRepo
	pub  *fakePublisher
	mr   *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := dbtest.Open(t, &models.Post{}, &models.OutboxEvent{})
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	r := &repo.GormRepo{DB: gdb}
	pub := &fakePublisher{}
	return &fixture{
		svc:  &PostService{Repo: r, Events: pub, Cache: cache.New(rdb, 100*time.Millisecond)},
		repo: r,
		pub:  pub,
		mr:   mr,
	}
}

func (f *fixture) create(t *testing.T, userID string, mediaIDs ...string) *models.Post {
	t.Helper()
	p, err := f.svc.CreatePost(context.Background(), userID, transport.CreatePostRequest{Content: "hello world", MediaIDs: mediaIDs})
	require.NoError(t, err)
	return p
}

func (f *fixture) outboxRow(t *testing.T, id string) models.OutboxEvent {
	t.Helper()
	var row models.OutboxEvent
	require.NoError(t, f.repo.DB.Where("id = ?", id).First(&row).Error)
	return row
}

func TestCreatePost_PublishesAndInvalidatesLists(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	owner := uuid.NewString()

	list, err := f.svc.ListPosts(ctx, 1, 10)
	require.NoError(t, err)
	require.Zero(t, list.TotalPosts)
	require.True(t, f.mr.Exists(cache.PostListKey(1, 10)))
	require.NoError(t, f.mr.Set("search:hello", "[]"))

	p := f.create(t, owner)

	assert.False(t, f.mr.Exists(cache.PostListKey(1, 10)))
	assert.False(t, f.mr.Exists("search:hello"))

	list, err = f.svc.ListPosts(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.TotalPosts)
	assert.Equal(t, 1, list.TotalPages)

	created := f.pub.named(eventbus.PostCreated)
	require.Len(t, created, 1)
	var payload eventbus.PostCreatedPayload
	require.NoError(t, created[0].Decode(&payload))
	assert.Equal(t, p.ID, payload.PostID)
	assert.NotNil(t, f.outboxRow(t, created[0].ID).DispatchedAt)
}

func TestCreatePost_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for _, req := range []transport.CreatePostRequest{
		{Content: "hi"},
		{Content: string(make([]rune, 501))},
		{Content: "valid content", MediaIDs: []string{"not-a-uuid"}},
	} {
		_, err := f.svc.CreatePost(context.Background(), uuid.NewString(), req)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	}
	assert.Empty(t, f.pub.named(eventbus.PostCreated))
}

func TestDeletePost_Cascade(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	owner := uuid.NewString()
	media := []string{uuid.NewString(), uuid.NewString()}
	p := f.create(t, owner, media...)

	_, err := f.svc.GetPost(ctx, p.ID)
	require.NoError(t, err)
	_, err = f.svc.ListPosts(ctx, 1, 10)
	require.NoError(t, err)
	require.True(t, f.mr.Exists(cache.PostKey(p.ID)))
	require.NoError(t, f.mr.Set("search:hello", "[]"))

	require.NoError(t, f.svc.DeletePost(ctx, owner, p.ID))

	deleted := f.pub.named(eventbus.PostDeleted)
	require.Len(t, deleted, 1)
	var payload eventbus.PostDeletedPayload
	require.NoError(t, deleted[0].Decode(&payload))
	assert.Equal(t, p.ID, payload.PostID)
	assert.Equal(t, owner, payload.UserID)
	assert.ElementsMatch(t, media, payload.MediaIDs)

	assert.False(t, f.mr.Exists(cache.PostKey(p.ID)))
	assert.False(t, f.mr.Exists(cache.PostListKey(1, 10)))
	assert.False(t, f.mr.Exists("search:hello"))
	assert.NotNil(t, f.outboxRow(t, deleted[0].ID).DispatchedAt)

	_, err = f.svc.GetPost(ctx, p.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeletePost_NotOwnerIsNotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	p := f.create(t, uuid.NewString())

	err := f.svc.DeletePost(context.Background(), uuid.NewString(), p.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Empty(t, f.pub.named(eventbus.PostDeleted))

	_, err = f.svc.GetPost(context.Background(), p.ID)
	assert.NoError(t, err)
}

func TestDeletePost_PublishFailureKeepsDeleteAndOutboxRow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	owner := uuid.NewString()
	p := f.create(t, owner, uuid.NewString())
	f.pub.fail = true

	require.NoError(t, f.svc.DeletePost(context.Background(), owner, p.ID))

	_, err := f.repo.GetPost(context.Background(), p.ID)
	assert.ErrorIs(t, err, repo.ErrPostNotFound)

	var rows []models.OutboxEvent
	require.NoError(t, f.repo.DB.Where("name = ?", eventbus.PostDeleted).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].DispatchedAt)
	assert.Equal(t, 1, rows[0].Attempts)
	assert.Contains(t, rows[0].LastError, "broker down")
}

type cancelAfterDelete struct {
	Repo
	cancel context.CancelFunc
}

func (c cancelAfterDelete) DeleteOwnedPost(ctx context.Context, id, userID string, build func(*models.Post) (*models.OutboxEvent, error)) (*models.Post, *models.OutboxEvent, error) {
	p, ev, err := c.Repo.DeleteOwnedPost(ctx, id, userID, build)
	c.cancel()
	return p, ev, err
}

func TestDeletePost_ClientDisconnectDoesNotAbandonCascade(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	owner := uuid.NewString()
	p := f.create(t, owner)
	_, err := f.svc.GetPost(context.Background(), p.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	f.svc.Repo = cancelAfterDelete{Repo: f.repo, cancel: cancel}

	require.NoError(t, f.svc.DeletePost(ctx, owner, p.ID))
	require.Error(t, ctx.Err())

	require.Len(t, f.pub.named(eventbus.PostDeleted), 1)
	f.pub.mu.Lock()
	last := f.pub.ctxErrs[len(f.pub.ctxErrs)-1]
	f.pub.mu.Unlock()
	assert.NoError(t, last)
	assert.False(t, f.mr.Exists(cache.PostKey(p.ID)))
}

func TestWrites_CommitWhenCallerAlreadyGone(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	owner := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, err := f.svc.CreatePost(ctx, owner, transport.CreatePostRequest{Content: "hello world"})
	require.NoError(t, err)
	_, err = f.repo.GetPost(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, f.pub.named(eventbus.PostCreated), 1)

	require.NoError(t, f.svc.DeletePost(ctx, owner, p.ID))
	_, err = f.repo.GetPost(context.Background(), p.ID)
	assert.ErrorIs(t, err, repo.ErrPostNotFound)
	require.Len(t, f.pub.named(eventbus.PostDeleted), 1)
}

func TestReads_DegradeWhenCacheIsDown(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	p := f.create(t, uuid.NewString())
	f.mr.Close()

	got, err := f.svc.GetPost(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	list, err := f.svc.ListPosts(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.TotalPosts)
}

func TestGetPost_BadIDIsNotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.svc.GetPost(context.Background(), "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
