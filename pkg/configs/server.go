package configs

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig HTTP 服务配置.
type ServerConfig struct {
	Host            string        `mapstructure:"host"             rule:"omitempty,ip|hostname"`
	Port            int           `mapstructure:"port"             rule:"min=1,max=65535"`
	Debug           bool          `mapstructure:"debug"`         // 开启 gin 调试模式与 Swagger 文档
	ReloadConfig    bool          `mapstructure:"reload_config"` // 配置文件变化时热重载
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     rule:"min=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    rule:"min=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" rule:"min=0"`
	// MaxBodyBytes 请求体上限，表单提交里的媒体字段只含 URL，正文不应很大.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" rule:"min=0"`
	// CORSOrigins 允许的浏览器来源，为空时放行全部.
	CORSOrigins []string `mapstructure:"cors_origins" rule:"dive,url"`
}

// Addr 返回监听地址.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.reload_config", true)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.cors_origins", []string{})
}
