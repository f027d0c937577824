package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yeisme/docpipe/pkg/internal/types"
	"github.com/yeisme/docpipe/pkg/middleware"
	"github.com/yeisme/docpipe/pkg/scheduler"
)

func schedulerOr503(c *gin.Context) *scheduler.Scheduler {
	sched := middleware.GetScheduler(c)
	if sched == nil {
		c.JSON(http.StatusServiceUnavailable, types.ErrorResponse{Error: "scheduler not running"})
	}

	return sched
}

// SchedulerJobs 返回所有定时任务信息.
func SchedulerJobs(c *gin.Context) {
	sched := schedulerOr503(c)
	if sched == nil {
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": sched.GetJobInfos()})
}

// SchedulerRunJob 立即执行一次指定任务.
func SchedulerRunJob(c *gin.Context) {
	sched := schedulerOr503(c)
	if sched == nil {
		return
	}

	if err := sched.RunNow(c.Param("name")); err != nil {
		c.JSON(http.StatusNotFound, types.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "job triggered"})
}

// SchedulerStopJobs 停止所有任务.
func SchedulerStopJobs(c *gin.Context) {
	sched := schedulerOr503(c)
	if sched == nil {
		return
	}

	if err := sched.StopJobs(); err != nil {
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "jobs stopped"})
}

// SchedulerRemoveJob 根据 id 删除任务.
func SchedulerRemoveJob(c *gin.Context) {
	sched := schedulerOr503(c)
	if sched == nil {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "invalid job id"})
		return
	}

	if err := sched.RemoveJob(id); err != nil {
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "job removed"})
}

// SchedulerQueueWaiting 返回等待执行的任务数.
func SchedulerQueueWaiting(c *gin.Context) {
	sched := schedulerOr503(c)
	if sched == nil {
		return
	}

	c.JSON(http.StatusOK, gin.H{"waiting": sched.JobsWaitingInQueue()})
}
