package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/forumfeed/config"
	"github.com/d60-Lab/forumfeed/internal/api"
	"github.com/d60-Lab/forumfeed/internal/api/handler"
	"github.com/d60-Lab/forumfeed/internal/rank"
	"github.com/d60-Lab/forumfeed/internal/repository"
	"github.com/d60-Lab/forumfeed/internal/service"
	"github.com/d60-Lab/forumfeed/pkg/database"
	"github.com/d60-Lab/forumfeed/pkg/logger"
	"github.com/d60-Lab/forumfeed/pkg/tracing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN}); err != nil {
			logger.Warn("sentry init failed", zap.Error(err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	if cfg.Trace.Endpoint != "" {
		shutdown, err := tracing.Init(ctx, cfg.Trace.Endpoint, "forumfeed")
		if err != nil {
			logger.Warn("tracing init failed", zap.Error(err))
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Error("database init failed", zap.Error(err))
		return
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("redis ping failed", zap.Error(err), zap.String("addr", cfg.Redis.Addr))
		return
	}

	postRepo := repository.NewPostRepository(db)
	siteRepo := repository.NewSiteRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	bookmarkRepo := repository.NewBookmarkRepository(db)
	commentRepo := repository.NewCommentRepository(db)

	feedSvc := service.NewFeedService(postRepo, siteRepo, subRepo, bookmarkRepo, rank.NewStore(rdb))

	dispatcher := service.NewFanoutDispatcher(feedSvc, 10000)
	stopDispatcher := dispatcher.Start(4)
	defer func() { _ = stopDispatcher(context.Background()) }()

	postSvc := service.NewPostService(db, siteRepo, postRepo, bookmarkRepo, dispatcher)
	subSvc := service.NewSubscriptionService(siteRepo, subRepo, dispatcher)

	h := handler.New(feedSvc, postSvc, subSvc, siteRepo, commentRepo)
	router := api.NewRouter(cfg, h)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}
