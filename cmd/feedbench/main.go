package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/d60-Lab/forumfeed/internal/model"
	"github.com/d60-Lab/forumfeed/internal/rank"
	"github.com/d60-Lab/forumfeed/internal/repository"
	"github.com/d60-Lab/forumfeed/internal/service"
	"github.com/d60-Lab/forumfeed/pkg/database"
)

func must[T any](v T, err error) T { if err != nil { panic(err) }; return v }

func mustDo(err error) { if err != nil { panic(err) } }

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 { return 0 }
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 { k = 0 }
	if k >= len(xs) { k = len(xs)-1 }
	return xs[k]
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 { return v }
	}
	return def
}

func main() {
	ctx := context.Background()

	// params
	N := envInt("N", 5000)          // subscribers of the site
	FANNED := envInt("FANNED", 50)  // percent of subscribers already materialized
	POSTS := envInt("POSTS", 100)   // posts to publish
	WORKERS := envInt("WORKERS", 2) // dispatcher workers

	db := must(gorm.Open(sqlite.Open(":memory:"), &gorm.Config{}))
	mustDo(database.Migrate(db))

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		mr := must(miniredis.Run())
		defer mr.Close()
		redisAddr = mr.Addr()
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()
	mustDo(rdb.Ping(ctx).Err())

	postRepo := repository.NewPostRepository(db)
	siteRepo := repository.NewSiteRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	bookmarkRepo := repository.NewBookmarkRepository(db)
	feedSvc := service.NewFeedService(postRepo, siteRepo, subRepo, bookmarkRepo, rank.NewStore(rdb))

	dispatcher := service.NewFanoutDispatcher(feedSvc, 100000)
	stop := dispatcher.Start(WORKERS)
	defer stop(ctx)

	postSvc := service.NewPostService(db, siteRepo, postRepo, bookmarkRepo, dispatcher)

	// seed one site, its author and N subscribers
	site := model.Site{Name: "bench", Title: "bench"}
	mustDo(db.Create(&site).Error)
	users := make([]model.User, N+1)
	for i := range users {
		users[i] = model.User{Username: fmt.Sprintf("u%06d", i), Email: fmt.Sprintf("u%06d@example.com", i)}
	}
	mustDo(db.CreateInBatches(&users, 1000).Error)
	for _, u := range users[1:] {
		mustDo(subRepo.Upsert(ctx, u.ID, site.ID, true, false))
	}

	// materialize a share of subscribers up front
	fanned := 0
	for _, u := range users[1:] {
		if fanned*100 >= N*FANNED {
			break
		}
		_ = must(feedSvc.GetSubscriptionFeed(ctx, u.ID, 1, 1, model.SortLive))
		fanned++
	}

	// publish POSTS and wait for fan-out landing
	pubDurations := make([]time.Duration, 0, POSTS)
	for i := 0; i < POSTS; i++ {
		st := time.Now()
		_ = must(postSvc.CreatePost(ctx, users[0].ID, site.Name, fmt.Sprintf("post %d", i), "hello"))
		pubDurations = append(pubDurations, time.Since(st))
	}

	land := make([]time.Duration, 0, POSTS)
	timeout := time.After(2 * time.Minute)
	for len(land) < POSTS {
		select {
		case d := <-dispatcher.Metrics():
			land = append(land, d)
		case <-timeout:
			fmt.Printf("timeout while waiting for fanout metrics: got=%d want=%d\n", len(land), POSTS)
			goto PRINT
		}
	}

PRINT:
	var pubSum time.Duration
	for _, d := range pubDurations { pubSum += d }
	fmt.Printf("N=%d FANNED=%d%% POSTS=%d WORKERS=%d\n", N, FANNED, POSTS, WORKERS)
	fmt.Printf("Publish latency: avg=%v p95=%v p99=%v\n", pubSum/time.Duration(len(pubDurations)), pct(pubDurations, 0.95), pct(pubDurations, 0.99))
	var landSum time.Duration
	for _, d := range land { landSum += d }
	if len(land) > 0 {
		fmt.Printf("Fanout landing: samples=%d avg=%v p95=%v p99=%v\n", len(land), landSum/time.Duration(len(land)), pct(land, 0.95), pct(land, 0.99))
	}

	// one materialized user's first-page read
	st := time.Now()
	page := must(feedSvc.GetSubscriptionFeed(ctx, users[1].ID, 1, 20, model.SortLive))
	fmt.Printf("Feed read (user1, page=1): %v, rows=%d\n", time.Since(st), len(page))
}
