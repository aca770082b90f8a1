package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d60-Lab/forumfeed/internal/model"
	"github.com/d60-Lab/forumfeed/internal/repository"
)

var ErrAccessDenied = errors.New("access denied")

// PostService 帖子/评论写路径。每次写入在事务内落地，
// 然后异步触发扇出——扇出失败只延迟 feed 可见性，不影响写入本身。
type PostService interface {
	CreatePost(ctx context.Context, userID int64, siteName, title, content string) (*model.PostInfo, error)
	CreateComment(ctx context.Context, userID, postID int64, parentID *int64, content string) (*model.Comment, error)
	EditPost(ctx context.Context, userID, postID int64, title, content string) error
	SetWatch(ctx context.Context, userID, postID int64, watch bool) error
	SetRead(ctx context.Context, userID, postID int64, readComments int, lastCommentID *int64) error
}

type postService struct {
	db        *gorm.DB
	sites     repository.SiteRepository
	posts     repository.PostRepository
	bookmarks repository.BookmarkRepository
	trigger   FanoutTrigger
}

func NewPostService(
	db *gorm.DB,
	sites repository.SiteRepository,
	posts repository.PostRepository,
	bookmarks repository.BookmarkRepository,
	trigger FanoutTrigger,
) PostService {
	return &postService{db: db, sites: sites, posts: posts, bookmarks: bookmarks, trigger: trigger}
}

// CreatePost 在一个事务内落地帖子与作者的 watch 记录
// 内容净化在上游完成，这里按原样存储
func (p *postService) CreatePost(ctx context.Context, userID int64, siteName, title, content string) (*model.PostInfo, error) {
	site, err := p.sites.GetSiteByName(ctx, siteName)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSiteNotFound, siteName)
		}
		return nil, err
	}

	now := time.Now()
	post := &model.Post{
		SiteID:      site.ID,
		AuthorID:    userID,
		Title:       title,
		Source:      content,
		Html:        content,
		CreatedAt:   now,
		CommentedAt: now,
	}
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(post).Error; err != nil {
			return err
		}
		watch := &model.Bookmark{
			ID:     uuid.New().String(),
			PostID: post.ID,
			UserID: userID,
			Watch:  true,
		}
		return tx.Create(watch).Error
	})
	if err != nil {
		return nil, err
	}

	p.trigger.TriggerPost(post.ID)

	return &model.PostInfo{
		ID:      post.ID,
		Site:    site.Name,
		Author:  userID,
		Created: post.CreatedAt,
		Title:   title,
		Content: post.Html,
		Watch:   true,
		CanEdit: true,
	}, nil
}

// CreateComment 落地评论、推进帖子活跃时间，评论者自动关注该帖
func (p *postService) CreateComment(ctx context.Context, userID, postID int64, parentID *int64, content string) (*model.Comment, error) {
	now := time.Now()
	comment := &model.Comment{
		PostID:    postID,
		AuthorID:  userID,
		ParentID:  parentID,
		Source:    content,
		Html:      content,
		CreatedAt: now,
	}
	var newCount int
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post model.Post
		if err := tx.Where("id = ?", postID).First(&post).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %d", ErrPostNotFound, postID)
			}
			return err
		}
		if err := tx.Create(comment).Error; err != nil {
			return err
		}
		// 并发评论下 read 出来的 Comments 可能已过期，用子查询原地重算
		if err := tx.Model(&model.Post{}).
			Where("id = ?", postID).
			Updates(map[string]any{
				"comments":     gorm.Expr("(SELECT COUNT(*) FROM comments WHERE post_id = ?)", postID),
				"commented_at": now,
			}).Error; err != nil {
			return err
		}
		return tx.Model(&model.Post{}).
			Select("comments").
			Where("id = ?", postID).
			Scan(&newCount).Error
	})
	if err != nil {
		return nil, err
	}

	// 评论者已读到自己的评论
	if err := p.bookmarks.SetRead(ctx, postID, userID, newCount, &comment.ID); err != nil {
		return nil, err
	}
	if err := p.bookmarks.SetWatch(ctx, postID, userID, true); err != nil {
		return nil, err
	}

	p.trigger.TriggerPost(postID)
	return comment, nil
}

func (p *postService) EditPost(ctx context.Context, userID, postID int64, title, content string) error {
	post, err := p.posts.GetPost(ctx, postID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %d", ErrPostNotFound, postID)
		}
		return err
	}
	if post.AuthorID != userID {
		return ErrAccessDenied
	}
	if post.Source == content && post.Title == title {
		// nothing changed
		return nil
	}

	updated, err := p.posts.UpdateText(ctx, postID, userID, title, content, content)
	if err != nil {
		return err
	}
	if !updated {
		return fmt.Errorf("%w: %d", ErrPostNotFound, postID)
	}

	p.trigger.TriggerPost(postID)
	return nil
}

func (p *postService) SetWatch(ctx context.Context, userID, postID int64, watch bool) error {
	return p.bookmarks.SetWatch(ctx, postID, userID, watch)
}

func (p *postService) SetRead(ctx context.Context, userID, postID int64, readComments int, lastCommentID *int64) error {
	return p.bookmarks.SetRead(ctx, postID, userID, readComments, lastCommentID)
}
