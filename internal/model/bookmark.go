package model

import "time"

// Bookmark 用户与帖子的关注/收藏/已读记录
// PostUpdatedAt 保存帖子最后活跃时间，未读数 = Comments - ReadComments
type Bookmark struct {
	ID            string `gorm:"primaryKey;type:varchar(36)"`
	PostID        int64  `gorm:"index:idx_bookmark_post;uniqueIndex:ux_bookmark_post_user;not null"`
	UserID        int64  `gorm:"index:idx_bookmark_user;uniqueIndex:ux_bookmark_post_user;not null"`
	Watch         bool
	Bookmarked    bool
	ReadComments  int
	LastCommentID *int64
	PostUpdatedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (Bookmark) TableName() string { return "user_bookmarks" }
