package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/forumfeed/internal/model"
	"github.com/d60-Lab/forumfeed/pkg/response"
)

type feedQuery struct {
	Page     int    `form:"page,default=1" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size,default=20" binding:"omitempty,min=1,max=100"`
	Sort     string `form:"sort,default=live" binding:"omitempty,feedsort"`
}

// SubscriptionFeed 当前用户的订阅流（首次读取触发惰性物化）
// @Summary 订阅 feed
// @Tags feed
// @Produce json
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Param sort query string false "排序 live|new" default(live)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/feed/subscriptions [get]
func (h *Handler) SubscriptionFeed(c *gin.Context) {
	var q feedQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	userID := currentUserID(c)
	ctx := c.Request.Context()

	posts, err := h.feed.GetSubscriptionFeed(ctx, userID, q.Page, q.PageSize, model.FeedSorting(q.Sort))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	total, err := h.feed.GetSubscriptionsTotal(ctx, userID)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"page": q.Page, "page_size": q.PageSize, "total": total, "posts": posts})
}

// SiteFeed 单个站点的 feed（直接查内容库，无物化）
// @Summary 站点 feed
// @Tags feed
// @Produce json
// @Param site path string true "站点名"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Param sort query string false "排序 live|new" default(live)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/sites/{site}/feed [get]
func (h *Handler) SiteFeed(c *gin.Context) {
	var q feedQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	siteID, ok := h.resolveSite(c, c.Param("site"))
	if !ok {
		return
	}
	userID := currentUserID(c)
	ctx := c.Request.Context()

	posts, err := h.feed.GetSiteFeed(ctx, userID, siteID, q.Page, q.PageSize, model.FeedSorting(q.Sort))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	total, err := h.feed.GetSiteTotal(ctx, siteID)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"page": q.Page, "page_size": q.PageSize, "total": total, "posts": posts})
}

// AllPosts 全站 feed
// @Summary 全站 feed
// @Tags feed
// @Produce json
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Param sort query string false "排序 live|new" default(live)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/feed/all [get]
func (h *Handler) AllPosts(c *gin.Context) {
	var q feedQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	userID := currentUserID(c)
	ctx := c.Request.Context()

	posts, err := h.feed.GetAllPosts(ctx, userID, q.Page, q.PageSize, model.FeedSorting(q.Sort))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	total, err := h.feed.GetAllPostsTotal(ctx)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"page": q.Page, "page_size": q.PageSize, "total": total, "posts": posts})
}

type watchQuery struct {
	Page     int  `form:"page,default=1" binding:"omitempty,min=1"`
	PageSize int  `form:"page_size,default=20" binding:"omitempty,min=1,max=100"`
	All      bool `form:"all"`
}

// WatchFeed 关注的帖子（默认只看有新评论的）
// @Summary 关注 feed
// @Tags feed
// @Produce json
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Param all query bool false "包含无新评论的帖子" default(false)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/feed/watch [get]
func (h *Handler) WatchFeed(c *gin.Context) {
	var q watchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	userID := currentUserID(c)
	ctx := c.Request.Context()

	posts, err := h.feed.GetWatchFeed(ctx, userID, q.Page, q.PageSize, q.All)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	total, err := h.feed.GetWatchTotal(ctx, userID, q.All)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"page": q.Page, "page_size": q.PageSize, "total": total, "posts": posts})
}
