// Package log 提供基于 zerolog 的全局 logger.
//
// 输出到 stderr（console 或 json 格式），可选追加 lumberjack 轮转文件.
// Component 返回带 component 字段的子 logger，级别可按组件单独覆盖.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yeisme/storyvault/pkg/configs"
)

var (
	logger     zerolog.Logger
	components map[string]zerolog.Level
	initOnce   sync.Once
)

// Init 按当前配置初始化全局 logger，仅第一次调用生效.
func Init() {
	initOnce.Do(func() {
		setup(configs.GetConfig())
		configs.OnChange(reloaded)
	})
}

// reloaded 热重载只报告结果，日志输出与级别在进程生命周期内不变.
func reloaded(_ *configs.AppConfig, err error) {
	l := Component("config")
	if err != nil {
		l.Warn().Err(err).Msg("config reload rejected, keeping previous values")
		return
	}

	l.Info().Msg("config reloaded")
}

func setup(cfg *configs.AppConfig) {
	base := parseLevel(cfg.Log.Level, zerolog.InfoLevel)
	floor := base

	components = make(map[string]zerolog.Level, len(cfg.Log.Components))
	for name, lvl := range cfg.Log.Components {
		components[name] = parseLevel(lvl, base)
		floor = min(floor, components[name])
	}

	// 全局级别取最低值，基础级别落在 logger 上，组件覆盖才能低于基础级别
	zerolog.SetGlobalLevel(floor)

	var out io.Writer = os.Stderr
	if cfg.Log.Format != "json" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime}
	}

	if cfg.Log.EnableFile {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   cfg.Log.FilePath,
			MaxSize:    cfg.Log.MaxSize,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAge,
			Compress:   cfg.Log.Compress,
		})
	}

	zctx := zerolog.New(out).With().Timestamp().Str("service", "storyvault")

	if cfg.Server.Debug {
		zctx = zctx.Caller()

		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger = zctx.Logger().Level(base)
	log.Logger = logger
}

func parseLevel(s string, fallback zerolog.Level) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || s == "" {
		if s != "" {
			fmt.Fprintf(os.Stderr, "invalid log level %q, using %s\n", s, fallback)
		}

		return fallback
	}

	return lvl
}

// Logger 返回全局 logger.
func Logger() *zerolog.Logger {
	Init()

	return &logger
}

// Component 返回带 component 字段的子 logger.
func Component(name string) zerolog.Logger {
	l := Logger().With().Str("component", name).Logger()
	if lvl, ok := components[name]; ok {
		l = l.Level(lvl)
	}

	return l
}

// GinWriter 把 gin 自身输出的文本行转发为固定级别的 zerolog 事件.
type GinWriter struct {
	logger *zerolog.Logger
	level  zerolog.Level
}

// NewGinWriter 创建 GinWriter.
func NewGinWriter(logger *zerolog.Logger, level zerolog.Level) *GinWriter {
	return &GinWriter{logger: logger, level: level}
}

func (w *GinWriter) Write(p []byte) (int, error) {
	w.logger.WithLevel(w.level).Str("component", "gin").Msg(strings.TrimSpace(string(p)))

	return len(p), nil
}
