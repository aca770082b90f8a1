package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/forumfeed/internal/service"
	"github.com/d60-Lab/forumfeed/pkg/response"
)

type createPostRequest struct {
	Site    string `json:"site" binding:"required"`
	Title   string `json:"title" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// CreatePost 发帖（异步扇出）
// @Summary 创建帖子
// @Tags 帖子
// @Accept json
// @Produce json
// @Param request body createPostRequest true "帖子内容"
// @Success 200 {object} response.Response{data=model.PostInfo}
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/posts [post]
func (h *Handler) CreatePost(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	post, err := h.posts.CreatePost(c.Request.Context(), currentUserID(c), req.Site, req.Title, req.Content)
	if err != nil {
		if errors.Is(err, service.ErrSiteNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Success(c, post)
}

func postIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		response.BadRequest(c, "invalid post id")
		return 0, false
	}
	return id, true
}

type createCommentRequest struct {
	Content  string `json:"content" binding:"required"`
	ParentID *int64 `json:"parent_id"`
}

// CreateComment 评论（推进帖子活跃时间并异步扇出）
// @Summary 创建评论
// @Tags 帖子
// @Accept json
// @Produce json
// @Param id path int true "帖子ID"
// @Param request body createCommentRequest true "评论内容"
// @Success 200 {object} response.Response{data=model.Comment}
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{id}/comments [post]
func (h *Handler) CreateComment(c *gin.Context) {
	postID, ok := postIDParam(c)
	if !ok {
		return
	}
	var req createCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	comment, err := h.posts.CreateComment(c.Request.Context(), currentUserID(c), postID, req.ParentID, req.Content)
	if err != nil {
		if errors.Is(err, service.ErrPostNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Success(c, comment)
}

// ListComments 帖子的全部评论（按时间正序）
// @Summary 评论列表
// @Tags 帖子
// @Produce json
// @Param id path int true "帖子ID"
// @Success 200 {object} response.Response{data=[]model.Comment}
// @Failure 400 {object} response.Response
// @Router /api/v1/posts/{id}/comments [get]
func (h *Handler) ListComments(c *gin.Context) {
	postID, ok := postIDParam(c)
	if !ok {
		return
	}
	comments, err := h.comments.ListByPost(c.Request.Context(), postID)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, comments)
}

type editPostRequest struct {
	Title   string `json:"title" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// EditPost 编辑帖子（仅作者）
// @Summary 编辑帖子
// @Tags 帖子
// @Accept json
// @Produce json
// @Param id path int true "帖子ID"
// @Param request body editPostRequest true "新内容"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{id} [put]
func (h *Handler) EditPost(c *gin.Context) {
	postID, ok := postIDParam(c)
	if !ok {
		return
	}
	var req editPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	err := h.posts.EditPost(c.Request.Context(), currentUserID(c), postID, req.Title, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPostNotFound):
			response.NotFound(c, err.Error())
		case errors.Is(err, service.ErrAccessDenied):
			response.BadRequest(c, err.Error())
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.Success(c, nil)
}

type watchRequest struct {
	Watch bool `json:"watch"`
}

// SetWatch 关注/取关帖子（未读簿记独立于站点订阅）
// @Summary 关注帖子
// @Tags 帖子
// @Accept json
// @Produce json
// @Param id path int true "帖子ID"
// @Param request body watchRequest true "关注开关"
// @Success 200 {object} response.Response
// @Router /api/v1/posts/{id}/watch [post]
func (h *Handler) SetWatch(c *gin.Context) {
	postID, ok := postIDParam(c)
	if !ok {
		return
	}
	var req watchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.posts.SetWatch(c.Request.Context(), currentUserID(c), postID, req.Watch); err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"watch": req.Watch})
}

type readRequest struct {
	Comments      int    `json:"comments" binding:"min=0"`
	LastCommentID *int64 `json:"last_comment_id"`
}

// SetRead 上报已读进度
// @Summary 标记已读评论
// @Tags 帖子
// @Accept json
// @Produce json
// @Param id path int true "帖子ID"
// @Param request body readRequest true "已读进度"
// @Success 200 {object} response.Response
// @Router /api/v1/posts/{id}/read [post]
func (h *Handler) SetRead(c *gin.Context) {
	postID, ok := postIDParam(c)
	if !ok {
		return
	}
	var req readRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.posts.SetRead(c.Request.Context(), currentUserID(c), postID, req.Comments, req.LastCommentID); err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, nil)
}
