package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/d60-Lab/forumfeed/internal/model"
	"github.com/d60-Lab/forumfeed/internal/rank"
	"github.com/d60-Lab/forumfeed/internal/repository"
)

type feedEnv struct {
	db   *gorm.DB
	rdb  *redis.Client
	feed FeedService

	posts     repository.PostRepository
	subs      repository.SubscriptionRepository
	bookmarks repository.BookmarkRepository
}

func newFeedEnv(t *testing.T) *feedEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.User{}, &model.Site{}, &model.Post{}, &model.Comment{},
		&model.Subscription{}, &model.Bookmark{}, &model.Vote{},
	))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	postRepo := repository.NewPostRepository(db)
	siteRepo := repository.NewSiteRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	bookmarkRepo := repository.NewBookmarkRepository(db)

	return &feedEnv{
		db:        db,
		rdb:       rdb,
		feed:      NewFeedService(postRepo, siteRepo, subRepo, bookmarkRepo, rank.NewStore(rdb)),
		posts:     postRepo,
		subs:      subRepo,
		bookmarks: bookmarkRepo,
	}
}

func (e *feedEnv) createSite(t *testing.T, name string) int64 {
	t.Helper()
	site := model.Site{Name: name, Title: name}
	require.NoError(t, e.db.Create(&site).Error)
	return site.ID
}

func (e *feedEnv) createPost(t *testing.T, siteID, authorID int64, createdAt, commentedAt time.Time) int64 {
	t.Helper()
	post := model.Post{
		SiteID:      siteID,
		AuthorID:    authorID,
		Title:       fmt.Sprintf("post-%d", time.Now().UnixNano()),
		CreatedAt:   createdAt,
		CommentedAt: commentedAt,
	}
	require.NoError(t, e.db.Create(&post).Error)
	return post.ID
}

func (e *feedEnv) timelineLen(t *testing.T, userID int64, sorting model.FeedSorting) int64 {
	t.Helper()
	n, err := e.rdb.ZCard(context.Background(), rank.UserFeedKey(userID, sorting)).Result()
	require.NoError(t, err)
	return n
}

func ts(sec int) time.Time { return time.Unix(1700000000+int64(sec), 0) }

func TestLazyPullMaterializesAndPaginates(t *testing.T) {
	e := newFeedEnv(t)
	ctx := context.Background()
	const user = int64(1)

	siteA := e.createSite(t, "a")
	siteB := e.createSite(t, "b")

	// A 三帖、B 两帖，活跃时间交错
	p1 := e.createPost(t, siteA, 2, ts(10), ts(10))
	p2 := e.createPost(t, siteB, 2, ts(20), ts(20))
	p3 := e.createPost(t, siteA, 2, ts(30), ts(30))
	p4 := e.createPost(t, siteB, 2, ts(40), ts(40))
	p5 := e.createPost(t, siteA, 2, ts(50), ts(50))

	require.NoError(t, e.subs.Upsert(ctx, user, siteA, true, false))
	require.NoError(t, e.subs.Upsert(ctx, user, siteB, true, false))

	page1, err := e.feed.GetSubscriptionFeed(ctx, user, 1, 2, model.SortLive)
	require.NoError(t, err)
	require.Equal(t, []int64{p5, p4}, postIDs(page1))

	page2, err := e.feed.GetSubscriptionFeed(ctx, user, 2, 2, model.SortLive)
	require.NoError(t, err)
	require.Equal(t, []int64{p3, p2}, postIDs(page2))

	page3, err := e.feed.GetSubscriptionFeed(ctx, user, 3, 2, model.SortLive)
	require.NoError(t, err)
	require.Equal(t, []int64{p1}, postIDs(page3))

	total, err := e.feed.GetSubscriptionsTotal(ctx, user)
	require.NoError(t, err)
	require.EqualValues(t, 5, total)

	// 标记已写入，后续读取不再重新拉取
	fanned, err := e.rdb.Exists(ctx, rank.UserFannedKey(user)).Result()
	require.NoError(t, err)
	require.EqualValues(t, 1, fanned)

	// 绕过扇出直接插入新帖：物化后的时间线不会自己发现它
	e.createPost(t, siteA, 2, ts(60), ts(60))
	again, err := e.feed.GetSubscriptionFeed(ctx, user, 1, 10, model.SortLive)
	require.NoError(t, err)
	require.Len(t, again, 5)
}

func postIDs(posts []*model.PostInfo) []int64 {
	ids := make([]int64, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}

func TestPostFanOutSkipsUnmaterializedUsers(t *testing.T) {
	e := newFeedEnv(t)
	ctx := context.Background()
	const user = int64(1)

	site := e.createSite(t, "s")
	postID := e.createPost(t, site, 2, ts(1), ts(1))
	require.NoError(t, e.subs.Upsert(ctx, user, site, true, false))

	require.NoError(t, e.feed.PostFanOut(ctx, postID))

	// 未物化用户不被写入
	require.EqualValues(t, 0, e.timelineLen(t, user, model.SortLive))
	require.EqualValues(t, 0, e.timelineLen(t, user, model.SortNew))

	// 首次读取仍能通过拉取看到该帖
	posts, err := e.feed.GetSubscriptionFeed(ctx, user, 1, 10, model.SortLive)
	require.NoError(t, err)
	require.Equal(t, []int64{postID}, postIDs(posts))
}

func TestPostFanOutIdempotent(t *testing.T) {
	e := newFeedEnv(t)
	ctx := context.Background()
	const user = int64(1)

	site := e.createSite(t, "s")
	require.NoError(t, e.subs.Upsert(ctx, user, site, true, false))

	// 先物化（此时站点为空）
	_, err := e.feed.GetSubscriptionFeed(ctx, user, 1, 10, model.SortLive)
	require.NoError(t, err)

	postID := e.createPost(t, site, 2, ts(5), ts(9))

	require.NoError(t, e.feed.PostFanOut(ctx, postID))
	liveScore1, err := e.rdb.ZScore(ctx, rank.UserFeedKey(user, model.SortLive), fmt.Sprint(postID)).Result()
	require.NoError(t, err)

	require.NoError(t, e.feed.PostFanOut(ctx, postID))
	liveScore2, err := e.rdb.ZScore(ctx, rank.UserFeedKey(user, model.SortLive), fmt.Sprint(postID)).Result()
	require.NoError(t, err)

	require.Equal(t, liveScore1, liveScore2)
	require.EqualValues(t, 1, e.timelineLen(t, user, model.SortLive))
	require.EqualValues(t, 1, e.timelineLen(t, user, model.SortNew))
}

func TestPostFanOutMissingPost(t *testing.T) {
	e := newFeedEnv(t)
	err := e.feed.PostFanOut(context.Background(), 12345)
	require.ErrorIs(t, err, ErrPostNotFound)
}

func TestPostFanOutUpdatesBothOrderings(t *testing.T) {
	e := newFeedEnv(t)
	ctx := context.Background()
	const user = int64(1)

	site := e.createSite(t, "s")
	require.NoError(t, e.subs.Upsert(ctx, user, site, true, false))
	_, err := e.feed.GetSubscriptionFeed(ctx, user, 1, 10, model.SortLive)
	require.NoError(t, err)

	// 旧帖后来被评论：live 排序靠前，new 排序靠后
	older := e.createPost(t, site, 2, ts(10), ts(40))
	newer := e.createPost(t, site, 2, ts(20), ts(20))
	require.NoError(t, e.feed.PostFanOut(ctx, older))
	require.NoError(t, e.feed.PostFanOut(ctx, newer))

	live, err := e.feed.GetSubscriptionFeed(ctx, user, 1, 10, model.SortLive)
	require.NoError(t, err)
	require.Equal(t, []int64{older, newer}, postIDs(live))

	byNew, err := e.feed.GetSubscriptionFeed(ctx, user, 1, 10, model.SortNew)
	require.NoError(t, err)
	require.Equal(t, []int64{newer, older}, postIDs(byNew))
}

func TestWatchBookkeepingIndependentOfSubscription(t *testing.T) {
	e := newFeedEnv(t)
	ctx := context.Background()
	const watcher = int64(7) // 不订阅该站点

	site := e.createSite(t, "s")
	postID := e.createPost(t, site, 2, ts(10), ts(30))

	require.NoError(t, e.bookmarks.SetWatch(ctx, postID, watcher, true))
	require.NoError(t, e.feed.PostFanOut(ctx, postID))

	bm, err := e.bookmarks.Get(ctx, postID, watcher)
	require.NoError(t, err)
	require.Equal(t, ts(30).Unix(), bm.PostUpdatedAt.Unix())

	// 时间线不受影响
	require.EqualValues(t, 0, e.timelineLen(t, watcher, model.SortLive))
}

func TestSiteFanOutAddAndRemove(t *testing.T) {
	e := newFeedEnv(t)
	ctx := context.Background()
	const user = int64(1)

	site := e.createSite(t, "s")
	// 超过一个批次，验证分页游标
	ids := make([]int64, 0, siteFanOutBatch+20)
	for i := 0; i < siteFanOutBatch+20; i++ {
		ids = append(ids, e.createPost(t, site, 2, ts(i), ts(i)))
	}

	require.NoError(t, e.feed.SiteFanOut(ctx, user, site, false))
	require.EqualValues(t, len(ids), e.timelineLen(t, user, model.SortLive))
	require.EqualValues(t, len(ids), e.timelineLen(t, user, model.SortNew))

	require.NoError(t, e.feed.SiteFanOut(ctx, user, site, true))
	require.EqualValues(t, 0, e.timelineLen(t, user, model.SortLive))
	require.EqualValues(t, 0, e.timelineLen(t, user, model.SortNew))
}

func TestSiteFanOutLastIntentWins(t *testing.T) {
	e := newFeedEnv(t)
	ctx := context.Background()
	const user = int64(1)

	site := e.createSite(t, "s")
	for i := 0; i < siteFanOutBatch*3; i++ {
		e.createPost(t, site, 2, ts(i), ts(i))
	}

	addErr := make(chan error, 1)
	go func() {
		addErr <- e.feed.SiteFanOut(ctx, user, site, false)
	}()

	// 等 add 至少落了一批
	require.Eventually(t, func() bool {
		return e.timelineLen(t, user, model.SortLive) > 0
	}, 5*time.Second, time.Millisecond)

	// remove 顶替在途的 add；无论 add 跑到哪里，最终状态都是空
	require.NoError(t, e.feed.SiteFanOut(ctx, user, site, true))

	err := <-addErr
	if err != nil {
		require.ErrorIs(t, err, ErrTaskCancelled)
	}
	require.EqualValues(t, 0, e.timelineLen(t, user, model.SortLive))
	require.EqualValues(t, 0, e.timelineLen(t, user, model.SortNew))
}

func TestLazyPullSurvivesConcurrentSiteFanOut(t *testing.T) {
	e := newFeedEnv(t)
	ctx := context.Background()
	const user = int64(1)

	site := e.createSite(t, "s")
	total := siteFanOutBatch * 5
	for i := 0; i < total; i++ {
		e.createPost(t, site, 2, ts(i), ts(i))
	}
	require.NoError(t, e.subs.Upsert(ctx, user, site, true, false))

	// 拉取一开始就写标记；标记出现后立刻顶替进行中的站点扇出
	raceDone := make(chan error, 1)
	go func() {
		for {
			n, err := e.rdb.Exists(ctx, rank.UserFannedKey(user)).Result()
			if err != nil {
				raceDone <- err
				return
			}
			if n > 0 {
				break
			}
		}
		raceDone <- e.feed.SiteFanOut(ctx, user, site, false)
	}()

	// 读取不能把被顶替的拉取当作错误返回给用户
	posts, err := e.feed.GetSubscriptionFeed(ctx, user, 1, 10, model.SortLive)
	require.NoError(t, err)
	require.LessOrEqual(t, len(posts), 10)

	// 两次扇出互相顶替，落败的一方以取消收场
	if err := <-raceDone; err != nil {
		require.ErrorIs(t, err, ErrTaskCancelled)
	}

	// 未被取消的一方负责最终状态：时间线最终完整
	require.Eventually(t, func() bool {
		return e.timelineLen(t, user, model.SortLive) == int64(total)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestConvertPostsOverlays(t *testing.T) {
	e := newFeedEnv(t)
	ctx := context.Background()
	const user = int64(1)

	site := e.createSite(t, "s")
	mine := e.createPost(t, site, user, ts(1), ts(1))
	theirs := e.createPost(t, site, 2, ts(2), ts(2))

	require.NoError(t, e.db.Model(&model.Post{}).Where("id = ?", theirs).Update("comments", 4).Error)
	require.NoError(t, e.bookmarks.SetWatch(ctx, theirs, user, true))
	require.NoError(t, e.bookmarks.SetRead(ctx, theirs, user, 1, nil))

	posts, err := e.feed.GetSiteFeed(ctx, user, site, 1, 10, model.SortNew)
	require.NoError(t, err)
	require.Len(t, posts, 2)

	require.Equal(t, theirs, posts[0].ID)
	require.True(t, posts[0].Watch)
	require.Equal(t, 3, posts[0].NewComments)
	require.False(t, posts[0].CanEdit)
	require.Equal(t, "s", posts[0].Site)

	require.Equal(t, mine, posts[1].ID)
	require.True(t, posts[1].CanEdit)
	// 没有簿记记录时全部评论都算新
	require.Equal(t, posts[1].Comments, posts[1].NewComments)
}
