package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/d60-Lab/forumfeed/internal/repository"
	"github.com/d60-Lab/forumfeed/internal/service"
	"github.com/d60-Lab/forumfeed/pkg/response"
)

// Handler 聚合各路由处理器的依赖
type Handler struct {
	feed     service.FeedService
	posts    service.PostService
	subs     service.SubscriptionService
	sites    repository.SiteRepository
	comments repository.CommentRepository
}

func New(feed service.FeedService, posts service.PostService, subs service.SubscriptionService, sites repository.SiteRepository, comments repository.CommentRepository) *Handler {
	return &Handler{feed: feed, posts: posts, subs: subs, sites: sites, comments: comments}
}

const userIDKey = "userID"

// SetUserID 供认证中间件写入当前用户
func SetUserID(c *gin.Context, userID int64) { c.Set(userIDKey, userID) }

func currentUserID(c *gin.Context) int64 {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0
	}
	id, _ := v.(int64)
	return id
}

// resolveSite 把路径里的站点名换成站点；找不到时已写好 404 响应
func (h *Handler) resolveSite(c *gin.Context, name string) (int64, bool) {
	site, err := h.sites.GetSiteByName(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "site not found")
		} else {
			response.InternalError(c, err)
		}
		return 0, false
	}
	return site.ID, true
}
