package configs

import "github.com/spf13/viper"

// LogConfig 日志配置.
//
// Components 按组件名覆盖级别，例如 {"worker": "debug", "http": "warn"}，
// 组件名与 log.Component 的参数一致.
type LogConfig struct {
	Level      string            `mapstructure:"level"        rule:"oneof=trace debug info warn error"`
	Format     string            `mapstructure:"format"       rule:"oneof=console json"`
	Components map[string]string `mapstructure:"components"`

	EnableFile bool   `mapstructure:"enable_file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

func (l *LogConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.components", map[string]string{})
	v.SetDefault("log.enable_file", false)
	v.SetDefault("log.file_path", "logs/storyvault.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", true)
}
