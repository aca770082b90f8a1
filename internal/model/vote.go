package model

import "time"

// Vote 帖子投票（评分逻辑不在本服务内，仅作读取叠加）
type Vote struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	PostID    int64  `gorm:"index:idx_vote_post;uniqueIndex:ux_vote_post_user;not null"`
	UserID    int64  `gorm:"uniqueIndex:ux_vote_post_user;not null"`
	Vote      int
	CreatedAt time.Time
}

func (Vote) TableName() string { return "votes" }
