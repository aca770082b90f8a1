package model

import "time"

// Subscription 用户对子站的订阅（主 feed / 收藏 feed）
type Subscription struct {
	ID            string `gorm:"primaryKey;type:varchar(36)"`
	UserID        int64  `gorm:"index:idx_sub_user;uniqueIndex:ux_sub_user_site;not null"`
	SiteID        int64  `gorm:"index:idx_sub_site;uniqueIndex:ux_sub_user_site;not null"`
	FeedMain      bool
	FeedBookmarks bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (Subscription) TableName() string { return "site_subscriptions" }
