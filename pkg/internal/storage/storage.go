// Package storage 聚合 storyvault 的全部外部资源：文档存储、对象存储、任务队列与锁存储.
//
// Init 按全局配置依次打开 db、s3、kv（含可选的独立缓存后端）与 mq，任一失败即返回.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	dbc "github.com/yeisme/storyvault/pkg/internal/storage/db"
	kvc "github.com/yeisme/storyvault/pkg/internal/storage/kv"
	mqc "github.com/yeisme/storyvault/pkg/internal/storage/mq"
	s3c "github.com/yeisme/storyvault/pkg/internal/storage/s3"
	nlog "github.com/yeisme/storyvault/pkg/log"
)

// Manager 聚合所有存储资源.
type Manager struct {
	S3 *s3c.Client
	DB *dbc.Client
	MQ *mqc.Client
	KV *kvc.Client
	// Cache 与 KV 相同，除非配置了独立的缓存后端.
	Cache *kvc.Client
}

var (
	mgr     *Manager
	mgrErr  error
	mgrOnce sync.Once
)

// Init 初始化默认存储，使用全局配置.重复调用只返回已初始化实例.
func Init(ctx context.Context) (*Manager, error) {
	mgrOnce.Do(func() {
		m := &Manager{}

		var err error
		if m.DB, err = dbc.New(ctx); err != nil {
			mgrErr = fmt.Errorf("document store: %w", err)
			return
		}

		if m.S3, err = s3c.New(ctx); err != nil {
			mgrErr = fmt.Errorf("blob store: %w", err)
			return
		}

		if m.KV, err = kvc.NewKVClient(ctx); err != nil {
			mgrErr = fmt.Errorf("lock store: %w", err)
			return
		}

		if m.Cache, err = kvc.NewCacheClient(ctx, m.KV); err != nil {
			mgrErr = fmt.Errorf("cache store: %w", err)
			return
		}

		if m.MQ, err = mqc.New(ctx); err != nil {
			mgrErr = fmt.Errorf("task queue: %w", err)
			return
		}

		mgr = m

		nlog.Logger().Info().Msg("storage manager initialized")
	})

	return mgr, mgrErr
}

// NewManager 使用已创建的客户端构建 Manager，供测试与子命令使用.
func NewManager(db *dbc.Client, s3 *s3c.Client, mq *mqc.Client, kv *kvc.Client) *Manager {
	return &Manager{DB: db, S3: s3, MQ: mq, KV: kv, Cache: kv}
}

// 以下访问器允许 nil 接收者，未初始化的资源返回 nil.

func (m *Manager) GetS3Client() *s3c.Client {
	if m == nil {
		return nil
	}

	return m.S3
}

func (m *Manager) GetDBClient() *dbc.Client {
	if m == nil {
		return nil
	}

	return m.DB
}

func (m *Manager) GetMQClient() *mqc.Client {
	if m == nil {
		return nil
	}

	return m.MQ
}

func (m *Manager) GetKVClient() *kvc.Client {
	if m == nil {
		return nil
	}

	return m.KV
}

// Close 关闭全部资源.
func (m *Manager) Close() error {
	var errs []error

	if m.MQ != nil {
		errs = append(errs, m.MQ.Close())
	}

	if m.Cache != nil && m.Cache != m.KV {
		errs = append(errs, m.Cache.Close())
	}

	if m.KV != nil {
		errs = append(errs, m.KV.Close())
	}

	if m.S3 != nil {
		errs = append(errs, m.S3.Close())
	}

	if m.DB != nil {
		errs = append(errs, m.DB.Close())
	}

	return errors.Join(errs...)
}
