package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/forumfeed/internal/model"
)

type BookmarkRepository interface {
	SetWatch(ctx context.Context, postID, userID int64, watch bool) error
	SetBookmark(ctx context.Context, postID, userID int64, bookmarked bool) error
	// SetRead 记录已读评论数与最后已读评论
	SetRead(ctx context.Context, postID, userID int64, readComments int, lastCommentID *int64) error
	// RecordActivity 推进某关注者视角下帖子的最后活跃时间（未读计算依赖它）
	RecordActivity(ctx context.Context, postID, userID int64, ts time.Time) error
	ListWatchers(ctx context.Context, postID int64) ([]int64, error)
	Get(ctx context.Context, postID, userID int64) (*model.Bookmark, error)
}

type bookmarkRepository struct{ db *gorm.DB }

func NewBookmarkRepository(db *gorm.DB) BookmarkRepository { return &bookmarkRepository{db: db} }

// (post_id, user_id) 唯一，重复写转为列更新
func bookmarkConflict(cols ...string) clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "post_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(append(cols, "updated_at")),
	}
}

func (r *bookmarkRepository) SetWatch(ctx context.Context, postID, userID int64, watch bool) error {
	row := &model.Bookmark{ID: uuid.New().String(), PostID: postID, UserID: userID, Watch: watch}
	return r.db.WithContext(ctx).Clauses(bookmarkConflict("watch")).Create(row).Error
}

func (r *bookmarkRepository) SetBookmark(ctx context.Context, postID, userID int64, bookmarked bool) error {
	row := &model.Bookmark{ID: uuid.New().String(), PostID: postID, UserID: userID, Bookmarked: bookmarked}
	return r.db.WithContext(ctx).Clauses(bookmarkConflict("bookmarked")).Create(row).Error
}

func (r *bookmarkRepository) SetRead(ctx context.Context, postID, userID int64, readComments int, lastCommentID *int64) error {
	row := &model.Bookmark{
		ID:            uuid.New().String(),
		PostID:        postID,
		UserID:        userID,
		ReadComments:  readComments,
		LastCommentID: lastCommentID,
	}
	return r.db.WithContext(ctx).
		Clauses(bookmarkConflict("read_comments", "last_comment_id")).
		Create(row).Error
}

func (r *bookmarkRepository) RecordActivity(ctx context.Context, postID, userID int64, ts time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.Bookmark{}).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Update("post_updated_at", ts).Error
}

func (r *bookmarkRepository) ListWatchers(ctx context.Context, postID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.Bookmark{}).
		Select("user_id").
		Where("post_id = ? AND watch = ?", postID, true).
		Scan(&ids).Error
	return ids, err
}

func (r *bookmarkRepository) Get(ctx context.Context, postID, userID int64) (*model.Bookmark, error) {
	var row model.Bookmark
	err := r.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}
