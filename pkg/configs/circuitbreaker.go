package configs

import (
	"time"

	"github.com/spf13/viper"
)

// CircuitBreakerConfig 当文档存储或搜索索引持续失败时，HTTP 入口快速返回 503.
type CircuitBreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	FailureRate float64       `mapstructure:"failure_rate" rule:"gt=0,lte=1"` // 统计窗口内 5xx 比例阈值
	MinRequests uint32        `mapstructure:"min_requests"`                   // 达到该请求数后才判断比例
	Interval    time.Duration `mapstructure:"interval"`                       // 闭合状态下计数清零周期
	OpenTimeout time.Duration `mapstructure:"open_timeout"`                   // 打开后多久进入半开
	HalfOpenMax uint32        `mapstructure:"half_open_max"`                  // 半开状态放行的请求数
}

func (c *CircuitBreakerConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("circuit_breaker.enabled", false)
	v.SetDefault("circuit_breaker.failure_rate", 0.5)
	v.SetDefault("circuit_breaker.min_requests", 20)
	v.SetDefault("circuit_breaker.interval", "1m")
	v.SetDefault("circuit_breaker.open_timeout", "30s")
	v.SetDefault("circuit_breaker.half_open_max", 5)
}
