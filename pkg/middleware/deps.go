package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	ctxPkg "github.com/yeisme/storyvault/pkg/context"
	"github.com/yeisme/storyvault/pkg/internal/service"
	"github.com/yeisme/storyvault/pkg/internal/storage"
	"github.com/yeisme/storyvault/pkg/scheduler"
)

type schedulerKey struct{}

// DepsMiddleware 将服务依赖注入 request context.
func DepsMiddleware(d *service.Deps) gin.HandlerFunc {
	return inject(func(ctx context.Context) context.Context { return service.WithDeps(ctx, d) })
}

// StorageMiddleware 注入存储管理器，供健康检查读取各后端客户端.
func StorageMiddleware(manager *storage.Manager) gin.HandlerFunc {
	return inject(func(ctx context.Context) context.Context { return ctxPkg.WithStorage(ctx, manager) })
}

// SchedulerMiddleware 注入后台任务调度器.
func SchedulerMiddleware(sched *scheduler.Scheduler) gin.HandlerFunc {
	return inject(func(ctx context.Context) context.Context { return context.WithValue(ctx, schedulerKey{}, sched) })
}

// GetScheduler 读取注入的调度器，未注入时返回 nil.
func GetScheduler(c *gin.Context) *scheduler.Scheduler {
	sched, _ := c.Request.Context().Value(schedulerKey{}).(*scheduler.Scheduler)
	return sched
}

func inject(wrap func(context.Context) context.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(wrap(c.Request.Context()))
		c.Next()
	}
}
