// Package lock 提供基于 KV 的命名互斥锁. 获取非阻塞，到期自动释放，释放无条件删除.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/yeisme/storyvault/pkg/internal/storage/kv"
	"github.com/yeisme/storyvault/pkg/metrics"
)

// Sentinel 锁条目的值.
const Sentinel = "locked"

// RecordKey 结构化富化使用的锁名.
func RecordKey(id string) string { return "record:" + id }

// MailboxKey 邮箱轮询使用的锁名.
func MailboxKey(id string) string { return "mailbox:" + id }

// JobKey 定时任务跨副本互斥使用的锁名.
func JobKey(name string) string { return "job:" + name }

// TTLs 各类锁的默认有效期.
type TTLs struct {
	Record  time.Duration
	Mailbox time.Duration
	Job     time.Duration
}

// For 按锁名前缀选择有效期，未知前缀使用 Record.
func (t TTLs) For(name string) time.Duration {
	switch scope(name) {
	case "mailbox":
		return t.Mailbox
	case "job":
		return t.Job
	default:
		return t.Record
	}
}

// Locker 命名锁.
type Locker struct {
	store kv.KVStore
}

// New 基于 KVStore 创建 Locker，store 必须支持 SetNX.
func New(store kv.KVStore) *Locker {
	return &Locker{store: store}
}

// Acquire 仅当锁不存在时创建，返回是否获得.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("acquire %s: ttl must be positive", name)
	}

	ok, err := l.store.SetNX(ctx, name, []byte(Sentinel), ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", name, err)
	}

	if !ok {
		metrics.LockContention.WithLabelValues(scope(name)).Inc()
	}

	return ok, nil
}

// Release 删除锁，锁不存在或已过期时同样成功.
func (l *Locker) Release(ctx context.Context, name string) error {
	if err := l.store.Delete(ctx, name); err != nil && !kv.IsNotFound(err) {
		return fmt.Errorf("release %s: %w", name, err)
	}

	return nil
}

// IsLocked 锁当前是否被持有.
func (l *Locker) IsLocked(ctx context.Context, name string) (bool, error) {
	ok, err := l.store.Exists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("is locked %s: %w", name, err)
	}

	return ok, nil
}

// Do 获得锁后执行 fn 并释放；锁被占用时不执行，返回 false.
func (l *Locker) Do(ctx context.Context, name string, ttl time.Duration, fn func(context.Context) error) (bool, error) {
	ok, err := l.Acquire(ctx, name, ttl)
	if err != nil || !ok {
		return false, err
	}

	defer func() { _ = l.Release(context.WithoutCancel(ctx), name) }()

	return true, fn(ctx)
}

// Held 列出当前持有的记录锁、邮箱锁与任务锁，用于排查.
func (l *Locker) Held(ctx context.Context) ([]string, error) {
	var names []string

	for _, pattern := range []string{RecordKey("*"), MailboxKey("*"), JobKey("*")} {
		keys, err := l.store.Keys(ctx, pattern)
		if err != nil {
			return nil, err
		}

		names = append(names, keys...)
	}

	return names, nil
}

func scope(name string) string {
	for i := range len(name) {
		if name[i] == ':' {
			return name[:i]
		}
	}

	return "other"
}
