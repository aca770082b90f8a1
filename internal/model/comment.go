package model

import "time"

// Comment 评论
type Comment struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	PostID    int64 `gorm:"index:idx_comment_post;not null"`
	AuthorID  int64 `gorm:"index:idx_comment_author;not null"`
	ParentID  *int64
	Source    string `gorm:"type:text"`
	Html      string `gorm:"type:text"`
	CreatedAt time.Time
}

func (Comment) TableName() string { return "comments" }
