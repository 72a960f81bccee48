package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"marketsync/scheduler"
)

// ServiceVersion is reported by the status endpoint
const ServiceVersion = "1.0.0"

// StatusController reports service and task level status
type StatusController struct {
	scheduler *scheduler.Scheduler
}

// NewStatusController creates a new status controller
func NewStatusController(s *scheduler.Scheduler) *StatusController {
	return &StatusController{scheduler: s}
}

// GetStatus returns the overall service status
// GET /api/v1/status
func (sc *StatusController) GetStatus(c *gin.Context) {
	states := sc.scheduler.StatesSnapshot()
	runningCount := 0
	for _, state := range states {
		if state.Status == scheduler.StatusRunning || state.Status == scheduler.StatusExecuting {
			runningCount++
		}
	}

	status := "stopped"
	if sc.scheduler.IsRunning() {
		status = "running"
	}

	c.JSON(http.StatusOK, gin.H{
		"service":                "marketsync",
		"version":                ServiceVersion,
		"status":                 status,
		"tasks_count":            len(states),
		"running_tasks_count":    runningCount,
		"supported_data_sources": sc.scheduler.ListSourcePlugins(),
		"supported_storages":     sc.scheduler.ListStoragePlugins(),
		"supported_timeframes":   scheduler.SupportedTimeframes,
	})
}

// GetTaskStates returns the run-state of every task
// GET /api/v1/status/tasks
func (sc *StatusController) GetTaskStates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"task_states": sc.scheduler.StatesSnapshot()})
}
