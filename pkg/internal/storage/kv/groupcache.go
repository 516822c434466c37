package kv

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang/groupcache"

	"github.com/yeisme/storyvault/pkg/configs"
)

// PeerBasePath groupcache 节点间互取数据的 HTTP 路径前缀.
const PeerBasePath = "/_groupcache/"

// GroupcacheKV 仅用于缓存的 KV.
//
// 写入只落在本节点的 MemoryKV 上（TTL 在此生效）；本地未命中且键归属其他节点时，
// 通过 groupcache 向属主节点取值. 远端取回的值可能在本节点短暂残留，
// 因此不能承载锁与计数，SetNX 返回 ErrNotSupported.
type GroupcacheKV struct {
	local *MemoryKV
	group *groupcache.Group
	pool  *groupcache.HTTPPool
}

// NewGroupcacheKV 创建缓存组；配置了 peers 时同时创建节点池.
func NewGroupcacheKV(_ context.Context, config *configs.KVConfig) (KVStore, error) {
	gc := config.Groupcache
	if gc.Name == "" {
		return nil, fmt.Errorf("groupcache: group name is required")
	}

	if groupcache.GetGroup(gc.Name) != nil {
		return nil, fmt.Errorf("groupcache: group %q already exists", gc.Name)
	}

	g := &GroupcacheKV{local: NewMemoryStore()}

	g.group = groupcache.NewGroup(gc.Name, gc.CacheBytes, groupcache.GetterFunc(
		func(ctx context.Context, key string, dest groupcache.Sink) error {
			v, err := g.local.Get(ctx, key)
			if err != nil {
				return err
			}

			return dest.SetBytes(v)
		}))

	if len(gc.Peers) > 0 {
		g.pool = groupcache.NewHTTPPoolOpts(gc.Self, &groupcache.HTTPPoolOptions{BasePath: PeerBasePath})
		g.pool.Set(gc.Peers...)
	}

	return g, nil
}

// PeerHandler 返回需要挂到 HTTP 服务上的节点处理器，非 groupcache 后端或未配置 peers 时为 false.
func PeerHandler(store KVStore) (http.Handler, bool) {
	g, ok := store.(*GroupcacheKV)
	if !ok || g.pool == nil {
		return nil, false
	}

	return g.pool, true
}

func (g *GroupcacheKV) remote(key string) bool {
	if g.pool == nil {
		return false
	}

	_, ok := g.pool.PickPeer(key)

	return ok
}

func (g *GroupcacheKV) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := g.local.Get(ctx, key)
	if err == nil || !IsNotFound(err) || !g.remote(key) {
		return v, err
	}

	var view groupcache.ByteView
	if err := g.group.Get(ctx, key, groupcache.ByteViewSink(&view)); err != nil {
		return nil, notFound(key)
	}

	return view.ByteSlice(), nil
}

func (g *GroupcacheKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return g.local.Set(ctx, key, value, ttl)
}

func (g *GroupcacheKV) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, ErrNotSupported
}

func (g *GroupcacheKV) Delete(ctx context.Context, key string) error {
	return g.local.Delete(ctx, key)
}

func (g *GroupcacheKV) Exists(ctx context.Context, key string) (bool, error) {
	return g.local.Exists(ctx, key)
}

// Keys 只列出本节点的键.
func (g *GroupcacheKV) Keys(ctx context.Context, pattern string) ([]string, error) {
	return g.local.Keys(ctx, pattern)
}

func (g *GroupcacheKV) Close() error {
	return nil
}

func init() {
	register(KVTypeGroupcache, NewGroupcacheKV)
}
