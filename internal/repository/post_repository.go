package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/forumfeed/internal/model"
)

type PostRepository interface {
	Create(ctx context.Context, post *model.Post) error
	GetPost(ctx context.Context, postID int64) (*model.Post, error)
	// GetSitePostTimestamps 按 post_id 升序分页读取某子站的帖子时间戳，游标为上一批最后的 post_id
	GetSitePostTimestamps(ctx context.Context, siteID, afterPostID int64, limit int) ([]model.PostTimestamps, error)
	GetPostsWithUserData(ctx context.Context, postIDs []int64, forUserID int64) ([]*model.PostWithUserData, error)
	GetPosts(ctx context.Context, siteID, forUserID int64, page, perPage int, sorting model.FeedSorting) ([]*model.PostWithUserData, error)
	GetPostsTotal(ctx context.Context, siteID int64) (int64, error)
	GetAllPosts(ctx context.Context, forUserID int64, page, perPage int, sorting model.FeedSorting) ([]*model.PostWithUserData, error)
	GetAllPostsTotal(ctx context.Context) (int64, error)
	GetWatchPosts(ctx context.Context, forUserID int64, page, perPage int, all bool) ([]*model.PostWithUserData, error)
	GetWatchPostsTotal(ctx context.Context, forUserID int64, all bool) (int64, error)
	UpdateText(ctx context.Context, postID, authorID int64, title, source, html string) (bool, error)
}

type postRepository struct{ db *gorm.DB }

func NewPostRepository(db *gorm.DB) PostRepository { return &postRepository{db: db} }

func (r *postRepository) Create(ctx context.Context, post *model.Post) error {
	return r.db.WithContext(ctx).Create(post).Error
}

func (r *postRepository) GetPost(ctx context.Context, postID int64) (*model.Post, error) {
	var post model.Post
	if err := r.db.WithContext(ctx).Where("id = ?", postID).First(&post).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) GetSitePostTimestamps(ctx context.Context, siteID, afterPostID int64, limit int) ([]model.PostTimestamps, error) {
	var rows []model.PostTimestamps
	err := r.db.WithContext(ctx).
		Model(&model.Post{}).
		Select("id AS post_id", "created_at", "commented_at").
		Where("site_id = ? AND id > ?", siteID, afterPostID).
		Order("id ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// withUserData 帖子查询加上当前用户的投票/收藏叠加列
func (r *postRepository) withUserData(ctx context.Context, forUserID int64) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("posts").
		Select(`posts.*,
			votes.vote AS vote,
			user_bookmarks.bookmarked AS bookmarked,
			user_bookmarks.watch AS watch,
			user_bookmarks.read_comments AS read_comments,
			user_bookmarks.last_comment_id AS last_read_comment_id`).
		Joins("LEFT JOIN votes ON votes.post_id = posts.id AND votes.user_id = ?", forUserID).
		Joins("LEFT JOIN user_bookmarks ON user_bookmarks.post_id = posts.id AND user_bookmarks.user_id = ?", forUserID)
}

func (r *postRepository) GetPostsWithUserData(ctx context.Context, postIDs []int64, forUserID int64) ([]*model.PostWithUserData, error) {
	if len(postIDs) == 0 {
		return []*model.PostWithUserData{}, nil
	}
	var rows []*model.PostWithUserData
	err := r.withUserData(ctx, forUserID).
		Where("posts.id IN ?", postIDs).
		Scan(&rows).Error
	return rows, err
}

func sortColumn(sorting model.FeedSorting) string {
	if sorting == model.SortNew {
		return "posts.created_at DESC"
	}
	return "posts.commented_at DESC"
}

func (r *postRepository) GetPosts(ctx context.Context, siteID, forUserID int64, page, perPage int, sorting model.FeedSorting) ([]*model.PostWithUserData, error) {
	var rows []*model.PostWithUserData
	err := r.withUserData(ctx, forUserID).
		Where("posts.site_id = ?", siteID).
		Order(sortColumn(sorting)).
		Offset((page - 1) * perPage).
		Limit(perPage).
		Scan(&rows).Error
	return rows, err
}

func (r *postRepository) GetPostsTotal(ctx context.Context, siteID int64) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Post{}).Where("site_id = ?", siteID).Count(&cnt).Error
	return cnt, err
}

func (r *postRepository) GetAllPosts(ctx context.Context, forUserID int64, page, perPage int, sorting model.FeedSorting) ([]*model.PostWithUserData, error) {
	var rows []*model.PostWithUserData
	err := r.withUserData(ctx, forUserID).
		Order(sortColumn(sorting)).
		Offset((page - 1) * perPage).
		Limit(perPage).
		Scan(&rows).Error
	return rows, err
}

func (r *postRepository) GetAllPostsTotal(ctx context.Context) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Post{}).Count(&cnt).Error
	return cnt, err
}

// watchFilter all=false 时只保留有新评论的帖子
func watchFilter(q *gorm.DB, all bool) *gorm.DB {
	if all {
		return q
	}
	return q.Where("posts.comments > COALESCE(user_bookmarks.read_comments, 0)")
}

func (r *postRepository) GetWatchPosts(ctx context.Context, forUserID int64, page, perPage int, all bool) ([]*model.PostWithUserData, error) {
	var rows []*model.PostWithUserData
	q := r.withUserData(ctx, forUserID).
		Where("user_bookmarks.watch = ?", true)
	err := watchFilter(q, all).
		Order("posts.commented_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Scan(&rows).Error
	return rows, err
}

func (r *postRepository) GetWatchPostsTotal(ctx context.Context, forUserID int64, all bool) (int64, error) {
	var cnt int64
	q := r.db.WithContext(ctx).
		Table("posts").
		Joins("JOIN user_bookmarks ON user_bookmarks.post_id = posts.id AND user_bookmarks.user_id = ?", forUserID).
		Where("user_bookmarks.watch = ?", true)
	err := watchFilter(q, all).Count(&cnt).Error
	return cnt, err
}

func (r *postRepository) UpdateText(ctx context.Context, postID, authorID int64, title, source, html string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Post{}).
		Where("id = ? AND author_id = ?", postID, authorID).
		Updates(map[string]any{"title": title, "source": source, "html": html})
	return res.RowsAffected > 0, res.Error
}
