package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/forumfeed/internal/service"
	"github.com/d60-Lab/forumfeed/pkg/response"
)

type subscribeRequest struct {
	Main      bool `json:"main"`
	Bookmarks bool `json:"bookmarks"`
}

// Subscribe 订阅站点（异步扇出到时间线）
// @Summary 订阅站点主 feed
// @Tags 订阅
// @Accept json
// @Produce json
// @Param site path string true "站点名"
// @Param request body subscribeRequest true "订阅开关"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/sites/{site}/subscribe [post]
func (h *Handler) Subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	err := h.subs.Subscribe(c.Request.Context(), currentUserID(c), c.Param("site"), req.Main, req.Bookmarks)
	if err != nil {
		if errors.Is(err, service.ErrSiteNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"main": req.Main, "bookmarks": req.Bookmarks})
}

// Unsubscribe 取消订阅
// @Summary 取消订阅站点
// @Tags 订阅
// @Produce json
// @Param site path string true "站点名"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/sites/{site}/unsubscribe [post]
func (h *Handler) Unsubscribe(c *gin.Context) {
	err := h.subs.Unsubscribe(c.Request.Context(), currentUserID(c), c.Param("site"))
	if err != nil {
		if errors.Is(err, service.ErrSiteNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Success(c, nil)
}
