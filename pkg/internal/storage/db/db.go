// Package db 打开文档存储（GORM），按配置选择 PostgreSQL、MySQL 或 SQLite.
package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormPrometheus "gorm.io/plugin/prometheus"

	"github.com/yeisme/storyvault/pkg/configs"
	nlog "github.com/yeisme/storyvault/pkg/log"
)

const metricsRefreshSeconds = 15

// Client 文档存储客户端.
type Client struct {
	*gorm.DB
}

// New 使用全局配置打开文档存储.
func New(ctx context.Context) (*Client, error) {
	cfg := configs.GetConfig()
	return Open(ctx, &cfg.DB, cfg.Metrics.Enabled)
}

// Open 打开文档存储并确认连通. withMetrics 为真时注册连接池指标.
func Open(ctx context.Context, cfg *configs.DBConfig, withMetrics bool) (*Client, error) {
	d, ok := dialector(cfg)
	if !ok {
		return nil, fmt.Errorf("unsupported database type: %q", cfg.Type)
	}

	l := nlog.Component("db")

	level := logger.Warn
	if configs.GetConfig().Server.Debug {
		level = logger.Info
	}

	db, err := gorm.Open(d, &gorm.Config{
		Logger: logger.New(&l, logger.Config{
			SlowThreshold:             cfg.SlowQuery,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
		PrepareStmt: true,
		NowFunc:     func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Type.Dialect(), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Type.Dialect(), err)
	}

	if withMetrics {
		plugin := gormPrometheus.New(gormPrometheus.Config{DBName: cfg.Database, RefreshInterval: metricsRefreshSeconds})
		if err := db.Use(plugin); err != nil {
			return nil, fmt.Errorf("gorm metrics: %w", err)
		}
	}

	l.Info().Str("dialect", string(cfg.Type.Dialect())).Str("database", cfg.Database).Msg("document store connected")

	return &Client{DB: db}, nil
}

// Ping 检查连通性.
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.PingContext(ctx)
}

// Close 关闭连接池.
func (c *Client) Close() error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}
