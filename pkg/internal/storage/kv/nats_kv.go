package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/yeisme/storyvault/pkg/configs"
)

// NATSKV JetStream KV bucket. NATS KV 没有键级过期，TTL 写在值的头部（见 ttl.go），
// 读到过期值时顺手删除. 键中的 ':' 在服务端以 '.' 保存.
type NATSKV struct {
	conn   *nats.Conn
	bucket nats.KeyValue
}

// NewNATSKV 连接 NATS 并打开（必要时创建）bucket.
func NewNATSKV(_ context.Context, config *configs.KVConfig) (KVStore, error) {
	nc := config.NATS

	opts := []nats.Option{nats.Name("storyvault-kv")}
	if nc.User != "" {
		opts = append(opts, nats.UserInfo(nc.User, nc.Password))
	}

	conn, err := nats.Connect(nc.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", nc.URL, err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	bucket, err := js.KeyValue(nc.Bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		bucket, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      nc.Bucket,
			Description: "storyvault locks, delivery counters and cache",
			History:     1,
		})
	}

	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open kv bucket %s: %w", nc.Bucket, err)
	}

	return &NATSKV{conn: conn, bucket: bucket}, nil
}

// entry 读取并解包；过期或不存在时 ok=false.
func (n *NATSKV) entry(key string) (nats.KeyValueEntry, []byte, bool, error) {
	e, err := n.bucket.Get(key)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, nil, false, nil
	}

	if err != nil {
		return nil, nil, false, fmt.Errorf("nats kv get %s: %w", key, err)
	}

	val, expired, err := decodeTTL(e.Value(), time.Now())
	if err != nil {
		return nil, nil, false, fmt.Errorf("nats kv %s: %w", key, err)
	}

	if expired {
		_ = n.bucket.Delete(key)
		return e, nil, false, nil
	}

	return e, val, true, nil
}

func (n *NATSKV) Get(_ context.Context, key string) ([]byte, error) {
	_, val, ok, err := n.entry(natsKey(key))
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, notFound(key)
	}

	return val, nil
}

func (n *NATSKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	b, err := encodeTTL(value, ttl, time.Now())
	if err != nil {
		return err
	}

	if _, err := n.bucket.Put(natsKey(key), b); err != nil {
		return fmt.Errorf("nats kv put %s: %w", key, err)
	}

	return nil
}

// SetNX 先 Create；键已存在但值过期时按修订号 Update，竞争失败视为未写入.
func (n *NATSKV) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	k := natsKey(key)

	b, err := encodeTTL(value, ttl, time.Now())
	if err != nil {
		return false, err
	}

	_, err = n.bucket.Create(k, b)
	switch {
	case err == nil:
		return true, nil
	case !errors.Is(err, nats.ErrKeyExists):
		return false, fmt.Errorf("nats kv create %s: %w", key, err)
	}

	e, err := n.bucket.Get(k)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("nats kv get %s: %w", key, err)
	}

	if _, expired, err := decodeTTL(e.Value(), time.Now()); err != nil || !expired {
		return false, err
	}

	if _, err := n.bucket.Update(k, b, e.Revision()); err != nil {
		return false, nil
	}

	return true, nil
}

func (n *NATSKV) Delete(_ context.Context, key string) error {
	err := n.bucket.Delete(natsKey(key))
	if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("nats kv delete %s: %w", key, err)
	}

	return nil
}

func (n *NATSKV) Exists(_ context.Context, key string) (bool, error) {
	_, _, ok, err := n.entry(natsKey(key))
	return ok, err
}

// Keys 列出 bucket 全部键后在本地按 glob 过滤，同时清理过期值.
func (n *NATSKV) Keys(ctx context.Context, pattern string) ([]string, error) {
	all, err := n.bucket.Keys(nats.Context(ctx))
	if errors.Is(err, nats.ErrNoKeysFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("nats kv keys: %w", err)
	}

	var out []string

	for _, k := range all {
		name := strings.ReplaceAll(k, ".", ":")
		if !matchPattern(pattern, name) {
			continue
		}

		if _, _, ok, err := n.entry(k); err == nil && !ok {
			continue
		}

		out = append(out, name)
	}

	return out, nil
}

func (n *NATSKV) Close() error {
	return n.conn.Drain()
}

func natsKey(key string) string {
	return strings.ReplaceAll(key, ":", ".")
}

func init() {
	register(KVTypeNATS, NewNATSKV)
}
