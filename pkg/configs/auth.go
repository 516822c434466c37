package configs

import "github.com/spf13/viper"

// AuthConfig 控制 Bearer Token 认证，Token 中携带租户（organization_id）与角色.
type AuthConfig struct {
	Enabled       bool     `mapstructure:"enabled"`         // 开启认证校验
	SkipPaths     []string `mapstructure:"skip_paths"`      // 跳过认证的路径前缀（如 /metrics、/api/v1/health）
	JWTSecret     string   `mapstructure:"jwt_secret"`      // HS256 签名密钥
	Issuer        string   `mapstructure:"issuer"`          // 非空时校验 iss
	DevAllowQuery bool     `mapstructure:"dev_allow_query"` // 开发模式允许用 ?org=&user= 便于本地调试
}

func (c *AuthConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.dev_allow_query", false)
	v.SetDefault("auth.skip_paths", []string{
		"/metrics",
		"/debug/pprof",
		"/api/v1/health",
		"/api/v1/form-data/public",
		"/swagger",
		"/_groupcache",
	})
}
