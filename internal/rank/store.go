// Package rank 封装 Redis sorted set，承载每个用户的物化时间线。
package rank

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/forumfeed/internal/model"
)

// UserFeedKey 某用户在某排序下的时间线 key
func UserFeedKey(userID int64, sorting model.FeedSorting) string {
	return fmt.Sprintf("subscriptions:%d:%s", userID, sorting)
}

// UserFannedKey 物化标记 key：存在即表示该用户的订阅时间线已拉取过
func UserFannedKey(userID int64) string {
	return fmt.Sprintf("subscriptions:%d:fanned", userID)
}

// Entry sorted set 成员
type Entry struct {
	Score  int64
	Member string
}

type Store struct{ client *redis.Client }

func NewStore(client *redis.Client) *Store { return &Store{client: client} }

func (s *Store) FlagExists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) SetFlag(ctx context.Context, key string) error {
	return s.client.Set(ctx, key, "1", 0).Err()
}

func (s *Store) SortedSetUpsert(ctx context.Context, key string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	members := make([]redis.Z, len(entries))
	for i, e := range entries {
		members[i] = redis.Z{Score: float64(e.Score), Member: e.Member}
	}
	return s.client.ZAdd(ctx, key, members...).Err()
}

func (s *Store) SortedSetRemove(ctx context.Context, key string, members []string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.ZRem(ctx, key, args...).Err()
}

// RangeDescending 按分值从高到低取一页成员
func (s *Store) RangeDescending(ctx context.Context, key string, offset, limit int64) ([]string, error) {
	return s.client.ZRevRange(ctx, key, offset, offset+limit-1).Result()
}

func (s *Store) Count(ctx context.Context, key string) (int64, error) {
	return s.client.ZCard(ctx, key).Result()
}
