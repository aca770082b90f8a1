package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/forumfeed/pkg/logger"
)

type fanoutAction int

const (
	actionPostFanOut fanoutAction = iota + 1
	actionSiteFanOut
)

type fanoutJob struct {
	action fanoutAction
	postID int64
	userID int64
	siteID int64
	remove bool
	enqAt  time.Time
}

// FanoutTrigger 写路径触发扇出的接口：即发即忘，失败从不阻塞触发它的写入
type FanoutTrigger interface {
	TriggerPost(postID int64)
	TriggerSite(userID, siteID int64, remove bool)
}

type fanoutEngine interface {
	PostFanOut(ctx context.Context, postID int64) error
	SiteFanOut(ctx context.Context, userID, siteID int64, remove bool) error
}

// FanoutDispatcher 简单的本地异步扇出执行器
type FanoutDispatcher struct {
	engine     fanoutEngine
	ch         chan fanoutJob
	jobTimeout time.Duration
	metricsCh  chan time.Duration
}

func NewFanoutDispatcher(engine fanoutEngine, queueSize int) *FanoutDispatcher {
	if queueSize <= 0 {
		queueSize = 10000
	}
	return &FanoutDispatcher{
		engine:     engine,
		ch:         make(chan fanoutJob, queueSize),
		jobTimeout: 30 * time.Second,
		metricsCh:  make(chan time.Duration, 65536),
	}
}

func (d *FanoutDispatcher) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 4
	}
	stopCh := make(chan struct{})
	for i := 0; i < workers; i++ {
		go func() {
			for {
				select {
				case job := <-d.ch:
					d.process(job)
				case <-stopCh:
					return
				}
			}
		}()
	}
	return func(ctx context.Context) error {
		close(stopCh)
		// 等待队列自然排空一小段时间
		timeout := time.After(2 * time.Second)
		for {
			select {
			case <-timeout:
				return nil
			default:
				if len(d.ch) == 0 {
					return nil
				}
				time.Sleep(50 * time.Millisecond)
			}
		}
	}
}

func (d *FanoutDispatcher) process(job fanoutJob) {
	ctx, cancel := context.WithTimeout(context.Background(), d.jobTimeout)
	defer cancel()

	var err error
	switch job.action {
	case actionPostFanOut:
		err = d.engine.PostFanOut(ctx, job.postID)
	case actionSiteFanOut:
		err = d.engine.SiteFanOut(ctx, job.userID, job.siteID, job.remove)
	}

	switch {
	case err == nil:
	case errors.Is(err, ErrTaskCancelled):
		// 被同键的更新请求顶替，正常结束
		logger.Debug("fanout superseded",
			zap.Int64("user", job.userID), zap.Int64("site", job.siteID))
	case errors.Is(err, ErrPostNotFound):
		// 帖子在触发与执行之间消失，无需再传播
		logger.Warn("fanout target gone", zap.Int64("post", job.postID))
	default:
		logger.Error("fanout failed", zap.Error(err),
			zap.Int64("post", job.postID), zap.Int64("user", job.userID), zap.Int64("site", job.siteID))
	}

	if !job.enqAt.IsZero() {
		select {
		case d.metricsCh <- time.Since(job.enqAt):
		default:
		}
	}
}

func (d *FanoutDispatcher) TriggerPost(postID int64) {
	select {
	case d.ch <- fanoutJob{action: actionPostFanOut, postID: postID, enqAt: time.Now()}:
	default:
		logger.Warn("dispatcher queue full, drop post fanout", zap.Int64("post", postID))
	}
}

func (d *FanoutDispatcher) TriggerSite(userID, siteID int64, remove bool) {
	select {
	case d.ch <- fanoutJob{action: actionSiteFanOut, userID: userID, siteID: siteID, remove: remove, enqAt: time.Now()}:
	default:
		logger.Warn("dispatcher queue full, drop site fanout",
			zap.Int64("user", userID), zap.Int64("site", siteID))
	}
}

// Metrics 返回扇出落地耗时的只读通道（每处理一条发送一次 duration）。
func (d *FanoutDispatcher) Metrics() <-chan time.Duration { return d.metricsCh }

// QueueLen 返回当前队列长度（采样值）。
func (d *FanoutDispatcher) QueueLen() int { return len(d.ch) }
