// Package app 提供应用程序的初始化和配置功能：HTTP 服务与富化消费者共享同一套启动流程.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yeisme/storyvault/pkg/api"
	"github.com/yeisme/storyvault/pkg/configs"
	"github.com/yeisme/storyvault/pkg/internal/jobs"
	"github.com/yeisme/storyvault/pkg/internal/model"
	"github.com/yeisme/storyvault/pkg/internal/router"
	"github.com/yeisme/storyvault/pkg/internal/service"
	"github.com/yeisme/storyvault/pkg/internal/storage"
	"github.com/yeisme/storyvault/pkg/internal/storage/kv"
	"github.com/yeisme/storyvault/pkg/log"
	"github.com/yeisme/storyvault/pkg/metrics"
	"github.com/yeisme/storyvault/pkg/middleware"
	"github.com/yeisme/storyvault/pkg/queue"
	"github.com/yeisme/storyvault/pkg/scheduler"
	"github.com/yeisme/storyvault/pkg/tracing"
)

// Runtime 进程级资源：配置、存储与服务依赖.
type Runtime struct {
	Config  *configs.AppConfig
	Manager *storage.Manager
	Deps    *service.Deps
}

// Bootstrap 加载配置并初始化日志、追踪、指标、存储与服务依赖.
func Bootstrap(ctx context.Context, configPath string) (*Runtime, error) {
	if err := configs.InitConfig(configPath); err != nil {
		return nil, fmt.Errorf("init config: %w", err)
	}

	log.Init()

	config := configs.GetConfig()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := tracing.InitTracer(config.Tracing); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	if err := metrics.InitMetrics(config.Metrics); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	manager, err := storage.Init(ctx)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	if config.DB.AutoMigrate {
		if err := model.AutoMigrate(manager.DB.DB.WithContext(ctx)); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	deps, err := service.Build(manager, config)
	if err != nil {
		return nil, fmt.Errorf("build services: %w", err)
	}

	return &Runtime{Config: config, Manager: manager, Deps: deps}, nil
}

// Context 返回注入了服务依赖的 context，供后台任务与命令行使用.
func (rt *Runtime) Context(ctx context.Context) context.Context {
	return service.WithDeps(ctx, rt.Deps)
}

// Close 释放索引、存储与追踪资源.
func (rt *Runtime) Close(ctx context.Context) error {
	return errors.Join(rt.Deps.Close(), rt.Manager.Close(), tracing.ShutdownTracer(ctx))
}

// App HTTP 服务.
type App struct {
	Engine *gin.Engine

	rt    *Runtime
	sched *scheduler.Scheduler
	log   zerolog.Logger
}

// NewApp 基于 Runtime 组装 gin 引擎、中间件、路由与定时任务.
func NewApp(ctx context.Context, rt *Runtime) (*App, error) {
	config := rt.Config

	l := log.Logger()
	gin.DefaultWriter = log.NewGinWriter(l, zerolog.InfoLevel)
	gin.DefaultErrorWriter = log.NewGinWriter(l, zerolog.ErrorLevel)

	sched, err := scheduler.New()
	if err != nil {
		return nil, err
	}

	background := rt.Context(ctx)

	var q jobs.Enqueuer
	if rt.Deps.Queue != nil {
		q = rt.Deps.Queue.WithProducer(queue.BackfillProducer)
	}

	j := jobs.New(rt.Deps.Records, q, service.NewTemplateService(background), rt.Deps.Locker, config.Enrichment)

	if err := j.Register(background, sched); err != nil {
		return nil, fmt.Errorf("register jobs: %w", err)
	}

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.CorrelationMiddleware(),
		middleware.CORSMiddleware(config.Server),
		middleware.BodyLimitMiddleware(config.Server.MaxBodyBytes),
		gzip.Gzip(gzip.DefaultCompression),
		middleware.TracingMiddleware(config.Tracing.ServiceName),
		middleware.SpanAttributesMiddleware(),
		middleware.PrometheusMiddleware(),
		middleware.AuthMiddleware(config.Auth),
		middleware.GinLoggerMiddleware(),
		middleware.RateLimitMiddleware(config.RateLimit),
		middleware.CircuitBreakerMiddleware(config.CircuitBreaker),
		middleware.StorageMiddleware(rt.Manager),
		middleware.DepsMiddleware(rt.Deps),
		middleware.SchedulerMiddleware(sched),
	)

	api.RegisterGroup(engine, rt.Deps.Cache)
	router.RegisterSwaggerRoute(engine)

	if rt.Manager.Cache != nil {
		if peers, ok := kv.PeerHandler(rt.Manager.Cache.KVStore); ok {
			engine.Any(kv.PeerBasePath+"*key", gin.WrapH(peers))
		}
	}

	if err := metrics.StartMetricsServer(config.Metrics, engine); err != nil {
		return nil, err
	}

	return &App{Engine: engine, rt: rt, sched: sched, log: log.Component("app")}, nil
}

// Run 启动定时任务与 HTTP 服务，ctx 结束后优雅关闭.
func (a *App) Run(ctx context.Context) error {
	cfg := a.rt.Config.Server
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.Engine,
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	a.sched.Start()

	errCh := make(chan error, 1)

	go func() {
		a.log.Info().Str("addr", srv.Addr).Msg("http server listening")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	select {
	case err := <-errCh:
		_ = a.sched.Stop()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()

	a.log.Info().Msg("shutting down")

	return errors.Join(srv.Shutdown(shutdownCtx), a.sched.Stop())
}
