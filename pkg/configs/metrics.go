package configs

import "github.com/spf13/viper"

// MetricsConfig Prometheus 指标配置. 指标挂在 HTTP 引擎的 Path 上，worker 进程不暴露.
type MetricsConfig struct {
	Enabled        bool              `mapstructure:"enabled"`
	Path           string            `mapstructure:"path"            rule:"startswith=/"`
	RuntimeMetrics bool              `mapstructure:"runtime_metrics"` // Go 运行时与进程指标
	Labels         map[string]string `mapstructure:"labels"`          // 附加到所有指标的常量标签
	Pprof          bool              `mapstructure:"pprof"`           // 同时暴露 /debug/pprof
}

func (c *MetricsConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.runtime_metrics", true)
	v.SetDefault("metrics.labels", map[string]string{"service": "storyvault"})
	v.SetDefault("metrics.pprof", false)
}
