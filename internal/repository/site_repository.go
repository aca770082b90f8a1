package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/forumfeed/internal/model"
)

type SiteRepository interface {
	Create(ctx context.Context, site *model.Site) error
	GetSite(ctx context.Context, siteID int64) (*model.Site, error)
	GetSiteByName(ctx context.Context, name string) (*model.Site, error)
}

type siteRepository struct{ db *gorm.DB }

func NewSiteRepository(db *gorm.DB) SiteRepository { return &siteRepository{db: db} }

func (r *siteRepository) Create(ctx context.Context, site *model.Site) error {
	return r.db.WithContext(ctx).Create(site).Error
}

func (r *siteRepository) GetSite(ctx context.Context, siteID int64) (*model.Site, error) {
	var site model.Site
	if err := r.db.WithContext(ctx).Where("id = ?", siteID).First(&site).Error; err != nil {
		return nil, err
	}
	return &site, nil
}

func (r *siteRepository) GetSiteByName(ctx context.Context, name string) (*model.Site, error) {
	var site model.Site
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&site).Error; err != nil {
		return nil, err
	}
	return &site, nil
}
