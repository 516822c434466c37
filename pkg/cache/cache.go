// Package cache 提供基于 KV 存储的泛型读穿缓存.
//
// 所有键带命名空间前缀，与锁、投递计数等共用同一个 KV 时互不干扰；
// 同一个键的并发回源经 singleflight 合并，只有一次调用真正执行 getter.
//
// 基本用法:
//
//	c := cache.NewCache(kvStore, cache.WithPrefix("cache:"))
//
//	stats, err := cache.GetOrSet(ctx, c, "zipcodes:org-a:all", func() (Stats, error) {
//		return aggregate(ctx)
//	}, 10*time.Minute)
//
//	// 数据变化后按键或前缀失效
//	_ = c.Delete(ctx, "zipcodes:org-a:all")
//	_, _ = c.DeletePrefix(ctx, "zipcodes:org-a:")
//
// 值使用 sonic 编码为 JSON；缓存读写失败不影响 GetOrSet 的返回值.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/sync/singleflight"

	"github.com/yeisme/storyvault/pkg/internal/storage/kv"
)

// DefaultPrefix 默认键前缀.
const DefaultPrefix = "cache:"

// Cache 基于KV存储的缓存实现.
type Cache struct {
	store  kv.KVStore
	prefix string
	group  singleflight.Group
}

// Option 缓存选项.
type Option func(*Cache)

// WithPrefix 设置键前缀.
func WithPrefix(prefix string) Option {
	return func(c *Cache) { c.prefix = prefix }
}

// NewCache 创建一个新的缓存实例.
func NewCache(store kv.KVStore, opts ...Option) *Cache {
	c := &Cache{store: store, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Cache) key(k string) string {
	return c.prefix + k
}

// Get 泛型获取缓存值，未命中时返回 kv.ErrKeyNotFound.
func Get[T any](ctx context.Context, c *Cache, key string) (T, error) {
	var value T

	data, err := c.store.Get(ctx, c.key(key))
	if err != nil {
		return value, err
	}

	if err := sonic.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("decode cache value %s: %w", key, err)
	}

	return value, nil
}

// Set 泛型设置缓存值.
func Set[T any](ctx context.Context, c *Cache, key string, value T, ttl time.Duration) error {
	data, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value %s: %w", key, err)
	}

	return c.store.Set(ctx, c.key(key), data, ttl)
}

// GetOrSet 命中时直接返回，否则调用 getter 并写回缓存. getter 的错误原样返回且不缓存.
func GetOrSet[T any](ctx context.Context, c *Cache, key string, getter func() (T, error), ttl time.Duration) (T, error) {
	if value, err := Get[T](ctx, c, key); err == nil {
		return value, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		value, err := getter()
		if err != nil {
			return value, err
		}

		// 写缓存失败只影响下一次命中
		_ = Set(context.WithoutCancel(ctx), c, key, value, ttl)

		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	return v.(T), nil
}

// Delete 删除缓存键，键不存在不视为错误.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	var errs []error

	for _, k := range keys {
		if err := c.store.Delete(ctx, c.key(k)); err != nil && !kv.IsNotFound(err) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// DeletePrefix 删除以 prefix 开头的全部缓存键，返回删除数量.
func (c *Cache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := c.store.Keys(ctx, c.key(prefix)+"*")
	if err != nil {
		return 0, err
	}

	n := 0

	for _, k := range keys {
		if err := c.store.Delete(ctx, k); err != nil && !kv.IsNotFound(err) {
			return n, err
		}

		n++
	}

	return n, nil
}
