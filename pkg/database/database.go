package database

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/d60-Lab/forumfeed/config"
	"github.com/d60-Lab/forumfeed/internal/model"
)

// InitDB 连接 PostgreSQL 并迁移表结构
func InitDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate 迁移所有领域模型
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Site{},
		&model.Post{},
		&model.Comment{},
		&model.Subscription{},
		&model.Bookmark{},
		&model.Vote{},
	)
}
