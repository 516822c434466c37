// Package kv 提供键值存储接口与多种后端，分布式锁、投递计数与响应缓存都建立在其上.
package kv

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/yeisme/storyvault/pkg/configs"
)

var (
	// ErrKeyNotFound 键不存在或已过期.
	ErrKeyNotFound = errors.New("key not found")
	// ErrNotSupported 后端不支持该操作.
	ErrNotSupported = errors.New("operation not supported by kv backend")
)

// KVStore 键值存储.
type KVStore interface {
	// Get 键不存在时返回包装了 ErrKeyNotFound 的错误.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set ttl<=0 表示不过期.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX 仅当键不存在（或已过期）时原子写入，返回是否写入.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// Delete 键不存在不视为错误.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Keys pattern 为 glob（*、?、[...]），空串匹配全部.
	Keys(ctx context.Context, pattern string) ([]string, error)
	Close() error
}

// Client 服务端持有的 KV 句柄.
type Client struct {
	KVStore

	Type KVType
}

// KVType 后端类型.
type KVType string

const (
	KVTypeRedis      KVType = "redis"
	KVTypeNATS       KVType = "nats"
	KVTypeGroupcache KVType = "groupcache"
	KVTypeMemory     KVType = "memory"
)

// Lockable 报告后端能否提供跨进程原子的 SetNX.
func (t KVType) Lockable() bool {
	return t != KVTypeGroupcache
}

type opener func(ctx context.Context, cfg *configs.KVConfig) (KVStore, error)

var backends = map[KVType]opener{}

func register(t KVType, open opener) {
	backends[t] = open
}

// Types 返回已编译进来的后端，按名称排序.
func Types() []KVType {
	return slices.Sorted(maps.Keys(backends))
}

// NewKVStore 按类型打开后端，cfg 为 nil 时使用零值配置.
func NewKVStore(ctx context.Context, t KVType, cfg *configs.KVConfig) (KVStore, error) {
	open, ok := backends[t]
	if !ok {
		return nil, fmt.Errorf("unsupported kv type %q (available: %v)", t, Types())
	}

	if cfg == nil {
		cfg = &configs.KVConfig{Type: string(t)}
	}

	return open(ctx, cfg)
}

// NewKVClient 使用全局配置打开 KV.
func NewKVClient(ctx context.Context) (*Client, error) {
	cfg := configs.GetConfig().KV
	t := KVType(cfg.Type)

	store, err := NewKVStore(ctx, t, &cfg)
	if err != nil {
		return nil, err
	}

	return &Client{KVStore: store, Type: t}, nil
}

// NewCacheClient 未配置 cache_type 时复用 lockStore.
func NewCacheClient(ctx context.Context, lockStore *Client) (*Client, error) {
	cfg := configs.GetConfig().KV
	if cfg.CacheType == "" || cfg.CacheType == string(lockStore.Type) {
		return lockStore, nil
	}

	t := KVType(cfg.CacheType)

	store, err := NewKVStore(ctx, t, &cfg)
	if err != nil {
		return nil, err
	}

	return &Client{KVStore: store, Type: t}, nil
}

// IsNotFound 判断错误是否为键不存在.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

func notFound(key string) error {
	return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
}
