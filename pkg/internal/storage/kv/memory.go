package kv

import (
	"context"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/yeisme/storyvault/pkg/configs"
)

type memoryEntry struct {
	value    []byte
	expireAt time.Time // 零值表示永不过期
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// MemoryKV 进程内 KV 实现，支持 TTL，适合单进程部署与测试.
type MemoryKV struct {
	mu   sync.Mutex
	data map[string]memoryEntry
	now  func() time.Time
}

// NewMemoryKV 创建内存 KV 实例.
func NewMemoryKV(ctx context.Context, _ *configs.KVConfig) (KVStore, error) {
	return NewMemoryStore(), nil
}

// NewMemoryStore 直接返回 *MemoryKV，便于测试注入时钟.
func NewMemoryStore() *MemoryKV {
	return &MemoryKV{data: make(map[string]memoryEntry), now: time.Now}
}

// SetClock 替换时钟.
func (m *MemoryKV) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.now = now
}

// load 在持锁状态下读取未过期的条目，过期条目被惰性删除.
func (m *MemoryKV) load(key string) (memoryEntry, bool) {
	e, ok := m.data[key]
	if !ok {
		return memoryEntry{}, false
	}

	if e.expired(m.now()) {
		delete(m.data, key)
		return memoryEntry{}, false
	}

	return e, true
}

func (m *MemoryKV) entry(value []byte, ttl time.Duration) memoryEntry {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expireAt = m.now().Add(ttl)
	}

	return e
}

// Get 获取键的值.
func (m *MemoryKV) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.load(key)
	if !ok {
		return nil, notFound(key)
	}

	return append([]byte(nil), e.value...), nil
}

// Set 设置键的值.
func (m *MemoryKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = m.entry(value, ttl)

	return nil
}

// SetNX 仅当键不存在时写入.
func (m *MemoryKV) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.load(key); ok {
		return false, nil
	}

	m.data[key] = m.entry(value, ttl)

	return true, nil
}

// Delete 删除键.
func (m *MemoryKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)

	return nil
}

// Exists 检查键是否存在.
func (m *MemoryKV) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.load(key)

	return ok, nil
}

// Keys 获取键，pattern 为 glob.
func (m *MemoryKV) Keys(ctx context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.data))

	for k := range m.data {
		if _, ok := m.load(k); !ok {
			continue
		}

		if matchPattern(pattern, k) {
			keys = append(keys, k)
		}
	}

	return keys, nil
}

// Close 关闭存储（内存实现无需操作）.
func (m *MemoryKV) Close() error {
	return nil
}

// matchPattern 使用与 Redis SCAN MATCH 一致的 glob 语法，空模式匹配全部.
func matchPattern(pattern, key string) bool {
	if pattern == "" {
		return true
	}

	ok, err := doublestar.Match(pattern, key)

	return err == nil && ok
}

func init() {
	register(KVTypeMemory, NewMemoryKV)
}
