package model

import "time"

// FeedSorting 用户的排序偏好
type FeedSorting string

const (
	// SortLive 按最后活跃时间排序
	SortLive FeedSorting = "live"
	// SortNew 按创建时间排序
	SortNew FeedSorting = "new"
)

func (s FeedSorting) Valid() bool { return s == SortLive || s == SortNew }

// ScoreOf 返回该排序下帖子的分值（毫秒时间戳）
func (s FeedSorting) ScoreOf(createdAt, commentedAt time.Time) int64 {
	if s == SortNew {
		return createdAt.UnixMilli()
	}
	return commentedAt.UnixMilli()
}

// PostInfo 读接口的响应投影
type PostInfo struct {
	ID                int64     `json:"id"`
	Site              string    `json:"site"`
	Author            int64     `json:"author"`
	Created           time.Time `json:"created"`
	Title             string    `json:"title"`
	Content           string    `json:"content"`
	Rating            int       `json:"rating"`
	Comments          int       `json:"comments"`
	NewComments       int       `json:"newComments"`
	Bookmark          bool      `json:"bookmark"`
	Watch             bool      `json:"watch"`
	Vote              int       `json:"vote"`
	LastReadCommentID *int64    `json:"lastReadCommentId,omitempty"`
	CanEdit           bool      `json:"canEdit,omitempty"`
}
