package api

import (
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/forumfeed/config"
	"github.com/d60-Lab/forumfeed/internal/api/handler"
	"github.com/d60-Lab/forumfeed/internal/api/middleware"
	"github.com/d60-Lab/forumfeed/internal/model"
)

// registerValidations 给 gin 的 binding 引擎挂上自定义规则
func registerValidations() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("feedsort", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			return s == "" || model.FeedSorting(s).Valid()
		})
	}
}

// NewRouter 装配路由与中间件
func NewRouter(cfg *config.Config, h *handler.Handler) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	registerValidations()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	r.Use(otelgin.Middleware("forumfeed"))
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(middleware.RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1", middleware.Auth(cfg.JWT.Secret))
	{
		feed := v1.Group("/feed")
		{
			feed.GET("/subscriptions", h.SubscriptionFeed)
			feed.GET("/all", h.AllPosts)
			feed.GET("/watch", h.WatchFeed)
		}

		sites := v1.Group("/sites")
		{
			sites.GET("/:site/feed", h.SiteFeed)
			sites.POST("/:site/subscribe", h.Subscribe)
			sites.POST("/:site/unsubscribe", h.Unsubscribe)
		}

		posts := v1.Group("/posts")
		{
			posts.POST("", h.CreatePost)
			posts.PUT("/:id", h.EditPost)
			posts.GET("/:id/comments", h.ListComments)
			posts.POST("/:id/comments", h.CreateComment)
			posts.POST("/:id/watch", h.SetWatch)
			posts.POST("/:id/read", h.SetRead)
		}
	}

	return r
}
