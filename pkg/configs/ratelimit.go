package configs

import "github.com/spf13/viper"

// RateLimitConfig HTTP 入口限流，令牌桶参数按限流维度各自独立.
//
// Key 取值: global 全局共享、ip 按客户端 IP、tenant 按租户（匿名请求退化为 IP）、
// header:Name 按请求头.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"   rule:"gt=0"`
	Burst   int     `mapstructure:"burst" rule:"min=1"`
	Key     string  `mapstructure:"key"`
}

func (c *RateLimitConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.rps", 20.0)
	v.SetDefault("rate_limit.burst", 40)
	v.SetDefault("rate_limit.key", "tenant")
}
