package handle

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/storyvault/pkg/middleware"
	"github.com/yeisme/storyvault/pkg/scheduler"
)

// withScheduler 取出注入的调度器，未注入时写出 503.
func withScheduler(fn func(*gin.Context, *scheduler.Scheduler)) gin.HandlerFunc {
	return func(c *gin.Context) {
		sched := middleware.GetScheduler(c)
		if sched == nil {
			writeSchedulerError(c, http.StatusServiceUnavailable, errors.New("scheduler not running"))
			return
		}

		fn(c, sched)
	}
}

func writeSchedulerError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

// SchedulerJobs 列出回填与重建任务的状态.
var SchedulerJobs = withScheduler(func(c *gin.Context, s *scheduler.Scheduler) {
	c.JSON(http.StatusOK, gin.H{"jobs": s.Jobs(), "waiting": s.Waiting()})
})

// SchedulerRunJob 立即触发一次任务，不影响其定时计划.
var SchedulerRunJob = withScheduler(func(c *gin.Context, s *scheduler.Scheduler) {
	name := c.Param("name")

	if _, ok := s.Job(name); !ok {
		writeSchedulerError(c, http.StatusNotFound, fmt.Errorf("job %q not found", name))
		return
	}

	if err := s.Run(name); err != nil {
		writeSchedulerError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job": name, "status": "triggered"})
})

// SchedulerRemoveJob 移除任务，直到进程重启前不再运行.
var SchedulerRemoveJob = withScheduler(func(c *gin.Context, s *scheduler.Scheduler) {
	if err := s.Remove(c.Param("name")); err != nil {
		writeSchedulerError(c, http.StatusNotFound, err)
		return
	}

	c.Status(http.StatusNoContent)
})

// SchedulerStopJobs 停止全部任务.
var SchedulerStopJobs = withScheduler(func(c *gin.Context, s *scheduler.Scheduler) {
	if err := s.StopJobs(); err != nil {
		writeSchedulerError(c, http.StatusInternalServerError, err)
		return
	}

	c.Status(http.StatusNoContent)
})
