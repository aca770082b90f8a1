package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/forumfeed/internal/model"
	"github.com/d60-Lab/forumfeed/internal/rank"
	"github.com/d60-Lab/forumfeed/internal/repository"
	"github.com/d60-Lab/forumfeed/pkg/logger"
)

var (
	ErrPostNotFound = errors.New("post not found")
	ErrSiteNotFound = errors.New("site not found")
)

// siteFanOutBatch 站点扇出每批帖子数，避免一次性加载整站历史
const siteFanOutBatch = 100

const defaultPerPage = 20

// 两个平行排序都要维护（活跃时间 / 创建时间）
var feedSortings = []model.FeedSorting{model.SortLive, model.SortNew}

// FeedService 订阅流物化引擎：冷启动惰性拉取 + 内容活动推送扇出 + 订阅变更扇出
type FeedService interface {
	GetSubscriptionFeed(ctx context.Context, userID int64, page, perPage int, sorting model.FeedSorting) ([]*model.PostInfo, error)
	GetSubscriptionsTotal(ctx context.Context, userID int64) (int64, error)
	GetSiteFeed(ctx context.Context, forUserID, siteID int64, page, perPage int, sorting model.FeedSorting) ([]*model.PostInfo, error)
	GetSiteTotal(ctx context.Context, siteID int64) (int64, error)
	GetAllPosts(ctx context.Context, forUserID int64, page, perPage int, sorting model.FeedSorting) ([]*model.PostInfo, error)
	GetAllPostsTotal(ctx context.Context) (int64, error)
	GetWatchFeed(ctx context.Context, forUserID int64, page, perPage int, all bool) ([]*model.PostInfo, error)
	GetWatchTotal(ctx context.Context, forUserID int64, all bool) (int64, error)

	// PostFanOut 把帖子的当前状态推送给已物化的订阅者和帖子关注者。
	// 同一帖子的并发触发合并成一次执行，读取执行时刻的最新状态。
	PostFanOut(ctx context.Context, postID int64) error
	// SiteFanOut 把某子站的全部帖子加入/移出某用户的时间线。
	// 同一 (user, site) 的新调用取消在途调用，只有最后的意图生效。
	SiteFanOut(ctx context.Context, userID, siteID int64, remove bool) error

	ConvertPosts(ctx context.Context, forUserID int64, rows []*model.PostWithUserData) ([]*model.PostInfo, error)
}

type feedService struct {
	posts     repository.PostRepository
	sites     repository.SiteRepository
	subs      repository.SubscriptionRepository
	bookmarks repository.BookmarkRepository
	rank      *rank.Store
	flights   *Flight[struct{}]
}

func NewFeedService(
	posts repository.PostRepository,
	sites repository.SiteRepository,
	subs repository.SubscriptionRepository,
	bookmarks repository.BookmarkRepository,
	rankStore *rank.Store,
) FeedService {
	return &feedService{
		posts:     posts,
		sites:     sites,
		subs:      subs,
		bookmarks: bookmarks,
		rank:      rankStore,
		flights:   NewFlight[struct{}](),
	}
}

func postFanOutKey(postID int64) string { return fmt.Sprintf("post:%d", postID) }

func siteFanOutKey(siteID, userID int64) string { return fmt.Sprintf("site:%d:%d", siteID, userID) }

func (s *feedService) GetSubscriptionFeed(ctx context.Context, userID int64, page, perPage int, sorting model.FeedSorting) ([]*model.PostInfo, error) {
	page, perPage = normalizePage(page, perPage)
	if !sorting.Valid() {
		sorting = model.SortLive
	}

	fanned, err := s.rank.FlagExists(ctx, rank.UserFannedKey(userID))
	if err != nil {
		return nil, err
	}
	if !fanned {
		if err := s.pullSubscriptions(ctx, userID); err != nil {
			return nil, err
		}
	}

	offset := int64((page - 1) * perPage)
	members, err := s.rank.RangeDescending(ctx, rank.UserFeedKey(userID, sorting), offset, int64(perPage))
	if err != nil {
		return nil, err
	}

	postIDs := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			logger.Warn("feed: bad timeline member", zap.Int64("user", userID), zap.String("member", m))
			continue
		}
		postIDs = append(postIDs, id)
	}

	rows, err := s.posts.GetPostsWithUserData(ctx, postIDs, userID)
	if err != nil {
		return nil, err
	}
	// 数据库不保证返回顺序，按时间线名次重排
	pos := make(map[int64]int, len(postIDs))
	for i, id := range postIDs {
		pos[id] = i
	}
	sort.Slice(rows, func(i, j int) bool {
		return pos[rows[i].Post.ID] < pos[rows[j].Post.ID]
	})

	return s.ConvertPosts(ctx, userID, rows)
}

// pullSubscriptions 一次性物化：对用户订阅的每个子站做 add 模式扇出。
// 标记先于拉取写入——拉取中途失败会留下已标记但不完整的时间线，
// 换取的是失败重试不会形成拉取风暴（沿用原有取舍）。
func (s *feedService) pullSubscriptions(ctx context.Context, userID int64) error {
	if err := s.rank.SetFlag(ctx, rank.UserFannedKey(userID)); err != nil {
		return err
	}

	sites, err := s.subs.ListMainSubscriptionSites(ctx, userID)
	if err != nil {
		return err
	}
	logger.Info("feed: pulling subscriptions", zap.Int64("user", userID), zap.Int("sites", len(sites)))

	for _, siteID := range sites {
		if err := s.SiteFanOut(ctx, userID, siteID, false); err != nil {
			// 被并发的订阅变更顶替：顶替方负责该站点的最终状态，继续拉其余站点
			if errors.Is(err, ErrTaskCancelled) {
				logger.Debug("feed: pull superseded for site",
					zap.Int64("user", userID), zap.Int64("site", siteID))
				continue
			}
			return err
		}
	}
	return nil
}

func (s *feedService) GetSubscriptionsTotal(ctx context.Context, userID int64) (int64, error) {
	return s.rank.Count(ctx, rank.UserFeedKey(userID, model.SortLive))
}

func (s *feedService) PostFanOut(ctx context.Context, postID int64) error {
	_, err := s.flights.Do(ctx, postFanOutKey(postID), func(ctx context.Context, _ *TaskState) (struct{}, error) {
		return struct{}{}, s.fanOutPost(ctx, postID)
	})
	return err
}

func (s *feedService) fanOutPost(ctx context.Context, postID int64) error {
	// 扇出传播的是执行时刻的最新状态，不是触发时的事件载荷
	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %d", ErrPostNotFound, postID)
		}
		return err
	}

	users, err := s.subs.ListMainSubscribers(ctx, post.SiteID)
	if err != nil {
		return err
	}

	member := strconv.FormatInt(postID, 10)
	for _, userID := range users {
		fanned, err := s.rank.FlagExists(ctx, rank.UserFannedKey(userID))
		if err != nil {
			return err
		}
		if !fanned {
			// 未物化的用户留给首次读取时惰性拉取
			continue
		}
		if err := s.upsertTimelines(ctx, userID, member, post.CreatedAt, post.CommentedAt); err != nil {
			return err
		}
		logger.Debug("feed: pushed to subscriber", zap.Int64("user", userID), zap.Int64("post", postID))
	}

	// watch 簿记独立于订阅与物化状态
	watchers, err := s.bookmarks.ListWatchers(ctx, postID)
	if err != nil {
		return err
	}
	for _, userID := range watchers {
		if err := s.bookmarks.RecordActivity(ctx, postID, userID, post.CommentedAt); err != nil {
			return err
		}
	}
	return nil
}

func (s *feedService) upsertTimelines(ctx context.Context, userID int64, member string, createdAt, commentedAt time.Time) error {
	for _, sorting := range feedSortings {
		entry := rank.Entry{Score: sorting.ScoreOf(createdAt, commentedAt), Member: member}
		if err := s.rank.SortedSetUpsert(ctx, rank.UserFeedKey(userID, sorting), []rank.Entry{entry}); err != nil {
			return err
		}
	}
	return nil
}

func (s *feedService) SiteFanOut(ctx context.Context, userID, siteID int64, remove bool) error {
	_, err := s.flights.Replace(ctx, siteFanOutKey(siteID, userID), func(ctx context.Context, state *TaskState) (struct{}, error) {
		return struct{}{}, s.fanOutSite(ctx, state, userID, siteID, remove)
	})
	return err
}

func (s *feedService) fanOutSite(ctx context.Context, state *TaskState, userID, siteID int64, remove bool) error {
	logger.Info("feed: site fan-out",
		zap.Int64("user", userID), zap.Int64("site", siteID), zap.Bool("remove", remove))

	var afterID int64
	for {
		batch, err := s.posts.GetSitePostTimestamps(ctx, siteID, afterID, siteFanOutBatch)
		if err != nil {
			return err
		}
		// 取消可能在查询挂起期间被调度
		if err := state.Err(); err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		afterID = batch[len(batch)-1].PostID

		if remove {
			members := make([]string, len(batch))
			for i, p := range batch {
				members[i] = strconv.FormatInt(p.PostID, 10)
			}
			for _, sorting := range feedSortings {
				if err := s.rank.SortedSetRemove(ctx, rank.UserFeedKey(userID, sorting), members); err != nil {
					return err
				}
				if err := state.Err(); err != nil {
					return err
				}
			}
		} else {
			for _, sorting := range feedSortings {
				entries := make([]rank.Entry, len(batch))
				for i, p := range batch {
					entries[i] = rank.Entry{
						Score:  sorting.ScoreOf(p.CreatedAt, p.CommentedAt),
						Member: strconv.FormatInt(p.PostID, 10),
					}
				}
				if err := s.rank.SortedSetUpsert(ctx, rank.UserFeedKey(userID, sorting), entries); err != nil {
					return err
				}
				if err := state.Err(); err != nil {
					return err
				}
			}
		}

		if len(batch) < siteFanOutBatch {
			return nil
		}
	}
}

func (s *feedService) GetSiteFeed(ctx context.Context, forUserID, siteID int64, page, perPage int, sorting model.FeedSorting) ([]*model.PostInfo, error) {
	page, perPage = normalizePage(page, perPage)
	rows, err := s.posts.GetPosts(ctx, siteID, forUserID, page, perPage, sorting)
	if err != nil {
		return nil, err
	}
	return s.ConvertPosts(ctx, forUserID, rows)
}

func (s *feedService) GetSiteTotal(ctx context.Context, siteID int64) (int64, error) {
	return s.posts.GetPostsTotal(ctx, siteID)
}

func (s *feedService) GetAllPosts(ctx context.Context, forUserID int64, page, perPage int, sorting model.FeedSorting) ([]*model.PostInfo, error) {
	page, perPage = normalizePage(page, perPage)
	rows, err := s.posts.GetAllPosts(ctx, forUserID, page, perPage, sorting)
	if err != nil {
		return nil, err
	}
	return s.ConvertPosts(ctx, forUserID, rows)
}

func (s *feedService) GetAllPostsTotal(ctx context.Context) (int64, error) {
	return s.posts.GetAllPostsTotal(ctx)
}

func (s *feedService) GetWatchFeed(ctx context.Context, forUserID int64, page, perPage int, all bool) ([]*model.PostInfo, error) {
	page, perPage = normalizePage(page, perPage)
	rows, err := s.posts.GetWatchPosts(ctx, forUserID, page, perPage, all)
	if err != nil {
		return nil, err
	}
	return s.ConvertPosts(ctx, forUserID, rows)
}

func (s *feedService) GetWatchTotal(ctx context.Context, forUserID int64, all bool) (int64, error) {
	return s.posts.GetWatchPostsTotal(ctx, forUserID, all)
}

// ConvertPosts 把原始行映射为带叠加数据的响应投影，纯函数、无副作用
func (s *feedService) ConvertPosts(ctx context.Context, forUserID int64, rows []*model.PostWithUserData) ([]*model.PostInfo, error) {
	siteByID := make(map[int64]*model.Site)
	out := make([]*model.PostInfo, 0, len(rows))

	for _, row := range rows {
		site, ok := siteByID[row.Post.SiteID]
		if !ok {
			var err error
			site, err = s.sites.GetSite(ctx, row.Post.SiteID)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, err
			}
			siteByID[row.Post.SiteID] = site
		}

		info := &model.PostInfo{
			ID:       row.Post.ID,
			Author:   row.Post.AuthorID,
			Created:  row.Post.CreatedAt,
			Title:    row.Post.Title,
			Content:  row.Post.Html,
			Rating:   row.Post.Rating,
			Comments: row.Post.Comments,
		}
		if site != nil {
			info.Site = site.Name
		}
		if row.Vote != nil {
			info.Vote = *row.Vote
		}
		if row.Bookmarked != nil {
			info.Bookmark = *row.Bookmarked
		}
		if row.Watch != nil {
			info.Watch = *row.Watch
		}
		if row.ReadComments != nil {
			info.NewComments = maxInt(0, row.Post.Comments-*row.ReadComments)
		} else {
			info.NewComments = row.Post.Comments
		}
		info.LastReadCommentID = row.LastReadCommentID
		if row.Post.AuthorID == forUserID {
			info.CanEdit = true
		}

		out = append(out, info)
	}
	return out, nil
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	return page, perPage
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
