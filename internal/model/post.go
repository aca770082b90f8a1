package model

import "time"

// Post 帖子主体
type Post struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	SiteID      int64  `gorm:"index:idx_post_site;not null"`
	AuthorID    int64  `gorm:"index:idx_post_author;not null"`
	Title       string `gorm:"type:varchar(255)"`
	Source      string `gorm:"type:text"`
	Html        string `gorm:"type:text"`
	Rating      int
	Comments    int
	CreatedAt   time.Time `gorm:"index:idx_post_created"`
	CommentedAt time.Time `gorm:"index:idx_post_commented"` // 最后活跃时间（发帖时等于 CreatedAt）
}

func (Post) TableName() string { return "posts" }

// PostTimestamps 站点扇出分页用的最小投影
type PostTimestamps struct {
	PostID      int64
	CreatedAt   time.Time
	CommentedAt time.Time
}

// PostWithUserData 帖子 + 当前用户叠加数据（投票/收藏/关注/已读）
type PostWithUserData struct {
	Post              Post `gorm:"embedded"`
	Vote              *int
	Bookmarked        *bool
	Watch             *bool
	ReadComments      *int
	LastReadCommentID *int64
}
