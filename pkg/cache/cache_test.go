package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/storyvault/pkg/cache"
	"github.com/yeisme/storyvault/pkg/internal/storage/kv"
)

type zipStat struct {
	Count int     `json:"count"`
	City  string  `json:"city,omitempty"`
	Lat   float64 `json:"lat"`
}

func TestSetGetUsesPrefix(t *testing.T) {
	store := kv.NewMemoryStore()
	c := cache.NewCache(store, cache.WithPrefix("t:"))
	ctx := context.Background()

	want := map[string]zipStat{"33101": {Count: 2, City: "Miami", Lat: 25.77}}
	require.NoError(t, cache.Set(ctx, c, "zipcodes:org-a:all", want, time.Minute))

	got, err := cache.Get[map[string]zipStat](ctx, c, "zipcodes:org-a:all")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	raw, err := store.Get(ctx, "t:zipcodes:org-a:all")
	require.NoError(t, err)
	assert.JSONEq(t, `{"33101":{"count":2,"city":"Miami","lat":25.77}}`, string(raw))

	_, err = cache.Get[int](ctx, c, "missing")
	assert.True(t, kv.IsNotFound(err))
}

func TestGetOrSetCachesValueNotError(t *testing.T) {
	c := cache.NewCache(kv.NewMemoryStore())
	ctx := context.Background()

	_, err := cache.GetOrSet(ctx, c, "k", func() (int, error) { return 0, errors.New("db down") }, time.Minute)
	require.EqualError(t, err, "db down")

	calls := 0
	getter := func() (int, error) {
		calls++
		return 42, nil
	}

	for range 3 {
		v, err := cache.GetOrSet(ctx, c, "k", getter, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	}

	assert.Equal(t, 1, calls)
}

func TestGetOrSetCollapsesConcurrentMisses(t *testing.T) {
	c := cache.NewCache(kv.NewMemoryStore())
	ctx := context.Background()

	var (
		calls   atomic.Int32
		release = make(chan struct{})
		wg      sync.WaitGroup
	)

	getter := func() (string, error) {
		calls.Add(1)
		<-release

		return "v", nil
	}

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			v, err := cache.GetOrSet(ctx, c, "hot", getter, time.Minute)
			assert.NoError(t, err)
			assert.Equal(t, "v", v)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(8))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestDeleteAndDeletePrefix(t *testing.T) {
	c := cache.NewCache(kv.NewMemoryStore())
	ctx := context.Background()

	for _, k := range []string{"zipcodes:org-a:all", "zipcodes:org-a:tpl1", "zipcodes:org-b:all"} {
		require.NoError(t, cache.Set(ctx, c, k, 1, time.Minute))
	}

	require.NoError(t, c.Delete(ctx, "zipcodes:org-b:all", "never-set"))

	n, err := c.DeletePrefix(ctx, "zipcodes:org-a:")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = cache.Get[int](ctx, c, "zipcodes:org-a:tpl1")
	assert.True(t, kv.IsNotFound(err))
}
