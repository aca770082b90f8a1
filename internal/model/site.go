package model

import "time"

// Site 子站
type Site struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"type:varchar(64);uniqueIndex;not null"`
	Title     string `gorm:"type:varchar(255)"`
	OwnerID   int64
	CreatedAt time.Time
}

func (Site) TableName() string { return "sites" }
