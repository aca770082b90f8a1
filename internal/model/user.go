package model

import "time"

// User 用户（仅 feed 服务所需字段）
type User struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Username  string `gorm:"type:varchar(64);uniqueIndex;not null"`
	Email     string `gorm:"type:varchar(128)"`
	CreatedAt time.Time
}

func (User) TableName() string { return "users" }
