package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/forumfeed/internal/model"
)

type SubscriptionRepository interface {
	// Upsert 幂等：重复订阅只更新 feed 开关
	Upsert(ctx context.Context, userID, siteID int64, feedMain, feedBookmarks bool) error
	Get(ctx context.Context, userID, siteID int64) (*model.Subscription, error)
	// ListMainSubscriptionSites 某用户主 feed 订阅的全部子站
	ListMainSubscriptionSites(ctx context.Context, userID int64) ([]int64, error)
	// ListMainSubscribers 订阅了某子站主 feed 的全部用户
	ListMainSubscribers(ctx context.Context, siteID int64) ([]int64, error)
}

type subscriptionRepository struct{ db *gorm.DB }

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) Upsert(ctx context.Context, userID, siteID int64, feedMain, feedBookmarks bool) error {
	sub := &model.Subscription{
		ID:            uuid.New().String(),
		UserID:        userID,
		SiteID:        siteID,
		FeedMain:      feedMain,
		FeedBookmarks: feedBookmarks,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "site_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"feed_main", "feed_bookmarks", "updated_at"}),
	}).Create(sub).Error
}

func (r *subscriptionRepository) Get(ctx context.Context, userID, siteID int64) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND site_id = ?", userID, siteID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) ListMainSubscriptionSites(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Select("site_id").
		Where("user_id = ? AND feed_main = ?", userID, true).
		Order("site_id ASC").
		Scan(&ids).Error
	return ids, err
}

func (r *subscriptionRepository) ListMainSubscribers(ctx context.Context, siteID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Select("user_id").
		Where("site_id = ? AND feed_main = ?", siteID, true).
		Order("user_id ASC").
		Scan(&ids).Error
	return ids, err
}
