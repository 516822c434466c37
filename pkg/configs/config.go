// Package configs 管理 storyvault 的全部配置：文档存储、搜索索引、任务队列、锁存储、对象存储、AI 服务与富化流程.
// configs 包支持多种配置格式（YAML、JSON、TOML、dotenv）并启用热重载.
//
// Example:
//
//	err := configs.InitConfig("./")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	config := configs.GetConfig()
//	fmt.Println(config.Server.Port)
//
// Example accessing enrichment config:
//
//	cfg := configs.GetConfig().Enrichment
//	ttl := cfg.LockTTL()
//	fmt.Println("record lock ttl:", ttl)
package configs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/yeisme/storyvault/pkg/rule"
)

// AppVersion 应用版本，构建时可通过 -ldflags 覆盖.
var AppVersion = "0.1.0"

// EnvPrefix 环境变量前缀.
const EnvPrefix = "STORYVAULT"

type (
	// AppConfig 全局应用程序配置.
	AppConfig struct {
		DB             DBConfig             `mapstructure:"db"`              // 文档存储
		Search         SearchConfig         `mapstructure:"search"`          // 搜索索引
		S3             S3Config             `mapstructure:"s3"`              // 对象存储
		MQ             MQConfig             `mapstructure:"mq"`              // 任务队列
		KV             KVConfig             `mapstructure:"kv"`              // 锁存储 / 缓存
		AI             AIConfig             `mapstructure:"ai"`              // 文本、视觉、语音模型
		Enrichment     EnrichmentConfig     `mapstructure:"enrichment"`      // 富化流程参数
		Geo            GeoConfig            `mapstructure:"geo"`             // 邮编目录
		Server         ServerConfig         `mapstructure:"server"`          // 服务器配置
		Log            LogConfig            `mapstructure:"log"`             // 日志
		Metrics        MetricsConfig        `mapstructure:"metrics"`         // 指标
		Tracing        TracingConfig        `mapstructure:"tracing"`         // 链路追踪
		Auth           AuthConfig           `mapstructure:"auth"`            // 认证
		RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`      // HTTP 限流
		CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"` // HTTP 熔断
	}
)

var (
	globalConfig AppConfig
	appViper     *viper.Viper

	hooksMu sync.Mutex
	hooks   []func(cfg *AppConfig, err error)
)

// InitConfig 加载应用程序配置，支持多种格式(yaml、json、toml、dotenv)并启用热重载.
// 找不到配置文件时仅使用默认值与环境变量.
func InitConfig(path string) error {
	appViper = viper.New()
	setAllDefaults(appViper)

	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		appViper.SetConfigFile(path)
	} else {
		appViper.SetConfigName("config")
		appViper.AddConfigPath(path)
		appViper.AddConfigPath(path + "/configs")

		exts := []string{"yaml", "yml", "json", "toml", "env", "dotenv"}

		for _, ext := range exts {
			cfg := filepath.Join(path, "config."+ext)
			if _, err := os.Stat(cfg); err == nil {
				appViper.SetConfigFile(cfg)

				break
			}
		}
	}

	appViper.SetEnvPrefix(EnvPrefix)
	appViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	appViper.AutomaticEnv()

	if err := appViper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := appViper.Unmarshal(&globalConfig); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	reloadConfigs(appViper, globalConfig.Server.ReloadConfig)

	return nil
}

// setAllDefaults 设置所有配置的默认值.
func setAllDefaults(v *viper.Viper) {
	var c AppConfig

	c.Server.setDefaults(v)
	c.DB.setDefaults(v)
	c.Search.setDefaults(v)
	c.S3.setDefaults(v)
	c.MQ.setDefaults(v)
	c.KV.setDefaults(v)
	c.AI.setDefaults(v)
	c.Enrichment.setDefaults(v)
	c.Geo.setDefaults(v)
	c.Log.setDefaults(v)
	c.Metrics.setDefaults(v)
	c.Tracing.setDefaults(v)
	c.Auth.setDefaults(v)
	c.RateLimit.setDefaults(v)
	c.CircuitBreaker.setDefaults(v)
}

// OnChange 注册热重载回调，err 非空表示新文件未能解析，此时全局配置保持不变.
func OnChange(fn func(cfg *AppConfig, err error)) {
	hooksMu.Lock()
	defer hooksMu.Unlock()

	hooks = append(hooks, fn)
}

func reloadConfigs(v *viper.Viper, isHotReload bool) {
	if !isHotReload || v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(fsnotify.Event) {
		var next AppConfig

		err := v.Unmarshal(&next)
		if err == nil {
			err = next.Validate()
		}

		if err == nil {
			globalConfig = next
		} else {
			err = fmt.Errorf("reload %s: %w", v.ConfigFileUsed(), err)
		}

		hooksMu.Lock()
		fns := append([]func(*AppConfig, error){}, hooks...)
		hooksMu.Unlock()

		for _, fn := range fns {
			fn(&globalConfig, err)
		}
	})
	v.WatchConfig()
}

// Validate 按 rule 标签校验配置.
func (c *AppConfig) Validate() error {
	if err := rule.ValidateStruct(c); err != nil {
		if verrs := rule.Errors(err); verrs != nil {
			return verrs
		}

		return err
	}

	return c.checkDeliveryWindow()
}

// checkDeliveryWindow 单次投递（含进程内重试）受 handler_timeout 约束，
// 它必须短于队列判定消息丢失的时间，否则处理未结束消息就被重投.
func (c *AppConfig) checkDeliveryWindow() error {
	timeout := c.Enrichment.HandlerTimeout()

	switch c.MQ.Type {
	case MQTypeNATS:
		if c.MQ.NATS.Stream.Durable && timeout >= c.MQ.NATS.Consumer.AckWait {
			return fmt.Errorf("enrichment.handler_timeout_seconds (%s) must be shorter than mq.nats.consumer.ack_wait (%s)",
				timeout, c.MQ.NATS.Consumer.AckWait)
		}
	case MQTypeRedis:
		if c.MQ.Redis.ClaimIdle > 0 && timeout >= c.MQ.Redis.ClaimIdle {
			return fmt.Errorf("enrichment.handler_timeout_seconds (%s) must be shorter than mq.redis.claim_idle (%s)",
				timeout, c.MQ.Redis.ClaimIdle)
		}
	}

	return nil
}

// GetConfig 返回全局配置实例.
func GetConfig() *AppConfig {
	return &globalConfig
}

// GetViper 返回全局 Viper 实例.
func GetViper() *viper.Viper {
	return appViper
}

// SetConfig 替换全局配置，供测试与 CLI 子命令使用.
func SetConfig(c AppConfig) {
	globalConfig = c
}

// Defaults 返回仅包含默认值的配置.
func Defaults() AppConfig {
	v := viper.New()
	setAllDefaults(v)

	var c AppConfig
	_ = v.Unmarshal(&c)

	return c
}
