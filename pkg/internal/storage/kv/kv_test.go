package kv_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yeisme/storyvault/pkg/configs"
	"github.com/yeisme/storyvault/pkg/internal/storage/kv"
)

// TestMemoryKVSetNX 测试 SetNX 的互斥与过期语义.
func TestMemoryKVSetNX(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	ok, err := store.SetNX(ctx, "record:R", []byte("locked"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("first SetNX = %v, %v; want true, nil", ok, err)
	}

	ok, err = store.SetNX(ctx, "record:R", []byte("locked"), time.Minute)
	if err != nil || ok {
		t.Fatalf("second SetNX = %v, %v; want false, nil", ok, err)
	}

	now = now.Add(time.Minute)

	if exists, _ := store.Exists(ctx, "record:R"); exists {
		t.Fatal("entry should be expired")
	}

	ok, err = store.SetNX(ctx, "record:R", []byte("locked"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("SetNX after expiry = %v, %v; want true, nil", ok, err)
	}
}

// TestMemoryKVNotFound 测试缺失键返回 ErrKeyNotFound.
func TestMemoryKVNotFound(t *testing.T) {
	store := kv.NewMemoryStore()

	_, err := store.Get(context.Background(), "missing")
	if !kv.IsNotFound(err) {
		t.Fatalf("Get missing err = %v; want ErrKeyNotFound", err)
	}

	if err := store.Delete(context.Background(), "missing"); err != nil {
		t.Fatalf("Delete missing err = %v", err)
	}
}

// TestMemoryKVKeysPrefix 测试 Keys 的前缀匹配.
func TestMemoryKVKeysPrefix(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()

	for _, k := range []string{"record:1", "record:2", "mailbox:1"} {
		if err := store.Set(ctx, k, []byte("x"), 0); err != nil {
			t.Fatal(err)
		}
	}

	keys, err := store.Keys(ctx, "record:*")
	if err != nil {
		t.Fatal(err)
	}

	if len(keys) != 2 {
		t.Fatalf("Keys(record:*) = %v; want 2 keys", keys)
	}
}

func TestMemoryKVKeysGlob(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()

	for _, k := range []string{"lock:a1", "lock:b2", "lock:ab"} {
		if err := store.Set(ctx, k, []byte("x"), 0); err != nil {
			t.Fatal(err)
		}
	}

	cases := map[string]int{
		"":           3,
		"lock:?b":    1,
		"lock:a*":    2,
		"lock:[ab]2": 1,
		"lock:[":     0,
	}

	for pattern, want := range cases {
		keys, err := store.Keys(ctx, pattern)
		if err != nil {
			t.Fatal(err)
		}

		if len(keys) != want {
			t.Errorf("Keys(%q) = %v; want %d keys", pattern, keys, want)
		}
	}
}

// TestMemoryKVSetNXConcurrent 测试并发 SetNX 只有一个成功.
func TestMemoryKVSetNXConcurrent(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()

	var (
		wg   sync.WaitGroup
		wins int32
	)

	for range 32 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if ok, _ := store.SetNX(ctx, "record:C", []byte("locked"), time.Minute); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}

	wg.Wait()

	if wins != 1 {
		t.Fatalf("winners = %d; want 1", wins)
	}
}

// TestGroupcacheSetNXUnsupported 测试 groupcache 拒绝 SetNX.
func TestGroupcacheSetNXUnsupported(t *testing.T) {
	cfg := &configs.KVConfig{
		Type: string(kv.KVTypeGroupcache),
		Groupcache: configs.GroupcacheKVConfig{
			Name:       "test-setnx-groupcache",
			CacheBytes: 1 << 20,
			Self:       "http://127.0.0.1:0",
		},
	}

	store, err := kv.NewKVStore(context.Background(), kv.KVTypeGroupcache, cfg)
	if err != nil {
		t.Fatalf("create groupcache kv: %v", err)
	}

	if _, err := store.SetNX(context.Background(), "k", []byte("v"), time.Second); err == nil {
		t.Fatal("expected ErrNotSupported")
	}
}

// Optional: enable with ENABLE_REDIS_TEST=1 and REDIS_ADDR set (default 127.0.0.1:6379).
func TestRedisKVSetNX(t *testing.T) {
	if os.Getenv("ENABLE_REDIS_TEST") == "" {
		t.Skip("set ENABLE_REDIS_TEST=1 to enable")
	}

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}

	cfg := &configs.KVConfig{Type: string(kv.KVTypeRedis), Redis: configs.RedisKVConfig{Addr: addr}}

	store, err := kv.NewKVStore(context.Background(), kv.KVTypeRedis, cfg)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	key := fmt.Sprintf("test:setnx:%d", time.Now().UnixNano())

	defer store.Delete(ctx, key)

	if ok, err := store.SetNX(ctx, key, []byte("locked"), 2*time.Second); err != nil || !ok {
		t.Fatalf("first SetNX = %v, %v", ok, err)
	}

	if ok, _ := store.SetNX(ctx, key, []byte("locked"), 2*time.Second); ok {
		t.Fatal("second SetNX should fail while held")
	}
}

func BenchmarkMemoryKVSetNX(b *testing.B) {
	ctx := context.Background()
	store := kv.NewMemoryStore()

	var ctr uint64

	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := atomic.AddUint64(&ctr, 1)
			key := fmt.Sprintf("record:%d", i%64)

			if ok, _ := store.SetNX(ctx, key, []byte("locked"), time.Second); ok {
				_ = store.Delete(ctx, key)
			}
		}
	})
}

// TestGroupcacheDeleteIsVisible 测试删除后本节点不再返回旧值.
func TestGroupcacheDeleteIsVisible(t *testing.T) {
	ctx := context.Background()
	cfg := &configs.KVConfig{
		Groupcache: configs.GroupcacheKVConfig{Name: "test-delete-groupcache", CacheBytes: 1 << 20},
	}

	store, err := kv.NewKVStore(ctx, kv.KVTypeGroupcache, cfg)
	if err != nil {
		t.Fatalf("create groupcache kv: %v", err)
	}

	if err := store.Set(ctx, "cache:zipcodes:org-a:", []byte("v1"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	if got, err := store.Get(ctx, "cache:zipcodes:org-a:"); err != nil || string(got) != "v1" {
		t.Fatalf("get = %q, %v", got, err)
	}

	if err := store.Delete(ctx, "cache:zipcodes:org-a:"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := store.Get(ctx, "cache:zipcodes:org-a:"); !kv.IsNotFound(err) {
		t.Fatalf("get after delete err = %v; want not found", err)
	}

	if _, ok := kv.PeerHandler(store); ok {
		t.Fatal("peer handler without peers")
	}

	if _, err := kv.NewKVStore(ctx, kv.KVTypeGroupcache, cfg); err == nil {
		t.Fatal("expected duplicate group name to fail")
	}
}

// TestTypesSortedAndLockable 测试后端列表有序且 groupcache 不可加锁.
func TestTypesSortedAndLockable(t *testing.T) {
	types := kv.Types()
	if len(types) == 0 {
		t.Fatal("no kv backends registered")
	}

	for i := 1; i < len(types); i++ {
		if types[i-1] >= types[i] {
			t.Fatalf("types not sorted: %v", types)
		}
	}

	if kv.KVTypeGroupcache.Lockable() || !kv.KVTypeRedis.Lockable() {
		t.Fatal("unexpected lockable flags")
	}

	if _, err := kv.NewKVStore(context.Background(), "etcd", nil); err == nil {
		t.Fatal("expected unsupported type error")
	}
}
