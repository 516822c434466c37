package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/storyvault/pkg/internal/handle"
)

// RegisterSchedulerRoutes 绑定后台任务管理路由:
//
//	GET    /scheduler/jobs            -> 任务状态与等待数
//	POST   /scheduler/jobs/:name/run  -> 立即运行
//	DELETE /scheduler/jobs/:name      -> 移除
//	POST   /scheduler/stop            -> 停止全部
func RegisterSchedulerRoutes(g *gin.RouterGroup) {
	s := g.Group("/scheduler")
	{
		s.GET("/jobs", handle.SchedulerJobs)
		s.POST("/jobs/:name/run", handle.SchedulerRunJob)
		s.DELETE("/jobs/:name", handle.SchedulerRemoveJob)
		s.POST("/stop", handle.SchedulerStopJobs)
	}
}
