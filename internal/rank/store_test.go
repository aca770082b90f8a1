package rank

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/forumfeed/internal/model"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client)
}

func TestFlags(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	key := UserFannedKey(1)

	ok, err := s.FlagExists(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.SetFlag(ctx, key))

	ok, err = s.FlagExists(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSortedSetPaging(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	key := UserFeedKey(1, model.SortLive)

	require.NoError(t, s.SortedSetUpsert(ctx, key, []Entry{
		{Score: 10, Member: "a"},
		{Score: 30, Member: "c"},
		{Score: 20, Member: "b"},
		{Score: 40, Member: "d"},
	}))

	page1, err := s.RangeDescending(ctx, key, 0, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"d", "c"}, page1)

	page2, err := s.RangeDescending(ctx, key, 2, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, page2)

	n, err := s.Count(ctx, key)
	require.NoError(t, err)
	require.EqualValues(t, 4, n)

	// 重复写同一成员只更新分值
	require.NoError(t, s.SortedSetUpsert(ctx, key, []Entry{{Score: 50, Member: "a"}}))
	top, err := s.RangeDescending(ctx, key, 0, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, top)

	require.NoError(t, s.SortedSetRemove(ctx, key, []string{"a", "c"}))
	n, err = s.Count(ctx, key)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestEmptyBatchesAreNoops(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	key := UserFeedKey(2, model.SortNew)

	require.NoError(t, s.SortedSetUpsert(ctx, key, nil))
	require.NoError(t, s.SortedSetRemove(ctx, key, nil))

	n, err := s.Count(ctx, key)
	require.NoError(t, err)
	require.Zero(t, n)
}
