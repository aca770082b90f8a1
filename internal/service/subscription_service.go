package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/d60-Lab/forumfeed/internal/repository"
)

// SubscriptionService 订阅写路径：落地订阅行，异步触发站点扇出。
// 快速反复切换时同一 (user, site) 只有最后的意图生效（由引擎保证）。
type SubscriptionService interface {
	Subscribe(ctx context.Context, userID int64, siteName string, main, bookmarks bool) error
	Unsubscribe(ctx context.Context, userID int64, siteName string) error
}

type subscriptionService struct {
	sites   repository.SiteRepository
	subs    repository.SubscriptionRepository
	trigger FanoutTrigger
}

func NewSubscriptionService(sites repository.SiteRepository, subs repository.SubscriptionRepository, trigger FanoutTrigger) SubscriptionService {
	return &subscriptionService{sites: sites, subs: subs, trigger: trigger}
}

func (s *subscriptionService) Subscribe(ctx context.Context, userID int64, siteName string, main, bookmarks bool) error {
	site, err := s.sites.GetSiteByName(ctx, siteName)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrSiteNotFound, siteName)
		}
		return err
	}

	wasMain := false
	existing, err := s.subs.Get(ctx, userID, site.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if existing != nil {
		if existing.FeedMain == main && existing.FeedBookmarks == bookmarks {
			return nil
		}
		wasMain = existing.FeedMain
	}

	if err := s.subs.Upsert(ctx, userID, site.ID, main, bookmarks); err != nil {
		return err
	}

	// 主 feed 状态翻转才需要扇出：remove = 退订
	if wasMain != main {
		s.trigger.TriggerSite(userID, site.ID, !main)
	}
	return nil
}

// Unsubscribe 只退出主 feed，收藏 feed 开关保持原状
func (s *subscriptionService) Unsubscribe(ctx context.Context, userID int64, siteName string) error {
	site, err := s.sites.GetSiteByName(ctx, siteName)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrSiteNotFound, siteName)
		}
		return err
	}

	keepBookmarks := false
	existing, err := s.subs.Get(ctx, userID, site.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if existing != nil {
		keepBookmarks = existing.FeedBookmarks
	}
	return s.Subscribe(ctx, userID, siteName, false, keepBookmarks)
}
