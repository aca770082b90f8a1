package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/forumfeed/internal/model"
	"github.com/d60-Lab/forumfeed/internal/repository"
)

// recordingTrigger 同步记录触发，替代异步执行器
type recordingTrigger struct {
	mu    sync.Mutex
	posts []int64
	sites []fanoutJob
}

func (r *recordingTrigger) TriggerPost(postID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts = append(r.posts, postID)
}

func (r *recordingTrigger) TriggerSite(userID, siteID int64, remove bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sites = append(r.sites, fanoutJob{userID: userID, siteID: siteID, remove: remove})
}

func newPostEnv(t *testing.T) (*feedEnv, PostService, *recordingTrigger) {
	e := newFeedEnv(t)
	trigger := &recordingTrigger{}
	svc := NewPostService(e.db, repository.NewSiteRepository(e.db), e.posts, e.bookmarks, trigger)
	return e, svc, trigger
}

func TestCreatePostSetsAuthorWatch(t *testing.T) {
	e, svc, trigger := newPostEnv(t)
	ctx := context.Background()
	e.createSite(t, "golang")

	info, err := svc.CreatePost(ctx, 1, "golang", "hello", "<p>world</p>")
	require.NoError(t, err)
	require.True(t, info.Watch)
	require.True(t, info.CanEdit)
	require.Equal(t, "golang", info.Site)

	bm, err := e.bookmarks.Get(ctx, info.ID, 1)
	require.NoError(t, err)
	require.True(t, bm.Watch)

	require.Equal(t, []int64{info.ID}, trigger.posts)

	post, err := e.posts.GetPost(ctx, info.ID)
	require.NoError(t, err)
	require.Equal(t, post.CreatedAt.Unix(), post.CommentedAt.Unix())
}

func TestCreatePostUnknownSite(t *testing.T) {
	_, svc, _ := newPostEnv(t)
	_, err := svc.CreatePost(context.Background(), 1, "missing", "t", "c")
	require.ErrorIs(t, err, ErrSiteNotFound)
}

func TestCreateCommentBumpsActivity(t *testing.T) {
	e, svc, trigger := newPostEnv(t)
	ctx := context.Background()
	site := e.createSite(t, "s")
	postID := e.createPost(t, site, 2, ts(10), ts(10))

	comment, err := svc.CreateComment(ctx, 3, postID, nil, "nice")
	require.NoError(t, err)
	require.NotZero(t, comment.ID)

	post, err := e.posts.GetPost(ctx, postID)
	require.NoError(t, err)
	require.Equal(t, 1, post.Comments)
	require.True(t, post.CommentedAt.After(ts(10)))

	// 评论者自动关注并已读到自己的评论
	bm, err := e.bookmarks.Get(ctx, postID, 3)
	require.NoError(t, err)
	require.True(t, bm.Watch)
	require.Equal(t, 1, bm.ReadComments)
	require.NotNil(t, bm.LastCommentID)
	require.Equal(t, comment.ID, *bm.LastCommentID)

	require.Equal(t, []int64{postID}, trigger.posts)
}

func TestCreateCommentRecountsExisting(t *testing.T) {
	e, svc, _ := newPostEnv(t)
	ctx := context.Background()
	site := e.createSite(t, "s")
	postID := e.createPost(t, site, 2, ts(10), ts(10))

	// 计数器落后于实际评论数时，写入必须重算而不是 +1
	stale := model.Comment{PostID: postID, AuthorID: 4, Source: "first", Html: "first"}
	require.NoError(t, e.db.Create(&stale).Error)

	_, err := svc.CreateComment(ctx, 3, postID, nil, "second")
	require.NoError(t, err)

	post, err := e.posts.GetPost(ctx, postID)
	require.NoError(t, err)
	require.Equal(t, 2, post.Comments)

	bm, err := e.bookmarks.Get(ctx, postID, 3)
	require.NoError(t, err)
	require.Equal(t, 2, bm.ReadComments)
}

func TestCreateCommentMissingPost(t *testing.T) {
	_, svc, trigger := newPostEnv(t)
	_, err := svc.CreateComment(context.Background(), 3, 999, nil, "x")
	require.ErrorIs(t, err, ErrPostNotFound)
	require.Empty(t, trigger.posts)
}

func TestEditPostAuthorOnly(t *testing.T) {
	e, svc, trigger := newPostEnv(t)
	ctx := context.Background()
	site := e.createSite(t, "s")
	postID := e.createPost(t, site, 2, ts(10), ts(10))

	require.ErrorIs(t, svc.EditPost(ctx, 3, postID, "t", "c"), ErrAccessDenied)
	require.Empty(t, trigger.posts)

	require.NoError(t, svc.EditPost(ctx, 2, postID, "updated", "body"))
	post, err := e.posts.GetPost(ctx, postID)
	require.NoError(t, err)
	require.Equal(t, "updated", post.Title)
	require.Equal(t, "body", post.Source)
	require.Equal(t, []int64{postID}, trigger.posts)

	// 内容未变不触发扇出
	require.NoError(t, svc.EditPost(ctx, 2, postID, "updated", "body"))
	require.Len(t, trigger.posts, 1)
}

func TestSubscribeTriggersSiteFanOut(t *testing.T) {
	e := newFeedEnv(t)
	trigger := &recordingTrigger{}
	svc := NewSubscriptionService(repository.NewSiteRepository(e.db), e.subs, trigger)
	ctx := context.Background()
	siteID := e.createSite(t, "s")

	require.NoError(t, svc.Subscribe(ctx, 1, "s", true, false))
	require.Equal(t, []fanoutJob{{userID: 1, siteID: siteID, remove: false}}, trigger.sites)

	// 重复订阅不再触发
	require.NoError(t, svc.Subscribe(ctx, 1, "s", true, false))
	require.Len(t, trigger.sites, 1)

	// 只改 bookmarks 开关不影响主 feed
	require.NoError(t, svc.Subscribe(ctx, 1, "s", true, true))
	require.Len(t, trigger.sites, 1)

	require.NoError(t, svc.Unsubscribe(ctx, 1, "s"))
	require.Equal(t, fanoutJob{userID: 1, siteID: siteID, remove: true}, trigger.sites[1])

	// 退订主 feed 不动收藏 feed 开关
	sub, err := e.subs.Get(ctx, 1, siteID)
	require.NoError(t, err)
	require.False(t, sub.FeedMain)
	require.True(t, sub.FeedBookmarks)

	require.ErrorIs(t, svc.Subscribe(ctx, 1, "missing", true, false), ErrSiteNotFound)
	require.ErrorIs(t, svc.Unsubscribe(ctx, 1, "missing"), ErrSiteNotFound)
}

func TestDispatcherDeliversFanout(t *testing.T) {
	e := newFeedEnv(t)
	ctx := context.Background()
	const user = int64(1)

	site := e.createSite(t, "s")
	require.NoError(t, e.subs.Upsert(ctx, user, site, true, false))
	_, err := e.feed.GetSubscriptionFeed(ctx, user, 1, 10, model.SortLive)
	require.NoError(t, err)

	postID := e.createPost(t, site, 2, ts(10), ts(10))

	d := NewFanoutDispatcher(e.feed, 16)
	stop := d.Start(2)
	defer func() { _ = stop(context.Background()) }()

	d.TriggerPost(postID)

	select {
	case <-d.Metrics():
	case <-time.After(5 * time.Second):
		t.Fatal("fanout not processed")
	}
	require.EqualValues(t, 1, e.timelineLen(t, user, model.SortLive))
}
