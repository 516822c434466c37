// Package service 实现表单记录与模板的业务逻辑，不处理 HTTP 细节.
// 所有操作都显式接收 tenant.Principal，租户范围从不取自请求体.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yeisme/storyvault/pkg/cache"
	"github.com/yeisme/storyvault/pkg/configs"
	"github.com/yeisme/storyvault/pkg/internal/geo"
	"github.com/yeisme/storyvault/pkg/internal/index"
	"github.com/yeisme/storyvault/pkg/internal/lock"
	"github.com/yeisme/storyvault/pkg/internal/repo"
	"github.com/yeisme/storyvault/pkg/internal/storage"
	"github.com/yeisme/storyvault/pkg/queue"
)

// Deps 服务依赖，由应用启动时构建并经中间件注入请求 context.
type Deps struct {
	Records    *repo.FormData
	Templates  *repo.Templates
	Index      *index.Synchronizer
	Queue      *queue.TaskQueue
	Locker     *lock.Locker
	Geo        *geo.Directory
	Cache      *cache.Cache
	Enrichment configs.EnrichmentConfig
	GeoTTL     time.Duration
	MaxLimit   int
	Now        func() time.Time
}

type depsKey struct{}

// WithDeps 将依赖存入 context.
func WithDeps(ctx context.Context, d *Deps) context.Context {
	return context.WithValue(ctx, depsKey{}, d)
}

// DepsFrom 读取 context 中的依赖.
func DepsFrom(ctx context.Context) *Deps {
	if d, ok := ctx.Value(depsKey{}).(*Deps); ok {
		return d
	}

	return nil
}

// Build 基于存储资源与配置组装依赖.
func Build(mgr *storage.Manager, cfg *configs.AppConfig) (*Deps, error) {
	if mgr == nil || mgr.DB == nil {
		return nil, errors.New("document store not initialized")
	}

	engine, err := index.NewBleveEngine(cfg.Search.DataDir, cfg.Search.InMemory)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	records := repo.NewFormData(mgr.DB.DB)

	directory, err := geo.LoadFile(cfg.Geo.ZipcodeFile)
	if err != nil {
		return nil, err
	}

	d := &Deps{
		Records:    records,
		Templates:  repo.NewTemplates(mgr.DB.DB),
		Index:      index.NewSynchronizer(engine, records),
		Geo:        directory,
		Enrichment: cfg.Enrichment,
		GeoTTL:     time.Duration(cfg.Geo.CacheTTL) * time.Second,
		MaxLimit:   cfg.Search.MaxLimit,
	}

	if mgr.MQ != nil {
		d.Queue = queue.New(mgr.MQ, cfg.Enrichment.Queues)
	}

	if mgr.KV != nil {
		if !mgr.KV.Type.Lockable() {
			return nil, fmt.Errorf("kv backend %q cannot hold record locks", mgr.KV.Type)
		}

		d.Locker = lock.New(mgr.KV)
		d.Cache = cache.NewCache(mgr.KV)
	}

	if mgr.Cache != nil {
		d.Cache = cache.NewCache(mgr.Cache)
	}

	return d, nil
}

// Close 释放搜索索引.
func (d *Deps) Close() error {
	if d.Index == nil {
		return nil
	}

	return d.Index.Close()
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}

	return time.Now().UTC()
}

func (d *Deps) limit(n int) int {
	ceiling := d.MaxLimit
	if ceiling <= 0 {
		ceiling = repo.DefaultPageSize
	}

	if n <= 0 {
		n = repo.DefaultPageSize
	}

	return min(n, ceiling)
}
