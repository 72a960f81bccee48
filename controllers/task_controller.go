package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"marketsync/scheduler"
	"marketsync/timeutil"
)

// TaskController manages sync task definitions over the API
type TaskController struct {
	scheduler *scheduler.Scheduler
}

// NewTaskController creates a new task controller
func NewTaskController(s *scheduler.Scheduler) *TaskController {
	return &TaskController{scheduler: s}
}

// taskRequest is the JSON body for creating or replacing a task
type taskRequest struct {
	Name          string            `json:"name" binding:"required"`
	SourceName    string            `json:"data_source_name" binding:"required"`
	SourceConfig  map[string]string `json:"data_source_config"`
	StorageName   string            `json:"storage_name" binding:"required"`
	StorageConfig map[string]string `json:"storage_config"`
	TimeSlot      struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"time_slot"`
	Symbols      []string `json:"symbols" binding:"required"`
	Timeframe    string   `json:"timeframe"`
	TimeRangeStr string   `json:"timerange_str"`
	Overwrite    bool     `json:"overwrite"`
}

// taskResponse is the JSON shape of a task definition plus its run status
type taskResponse struct {
	Name         string   `json:"name"`
	SourceName   string   `json:"data_source_name"`
	StorageName  string   `json:"storage_name"`
	TimeSlot     gin.H    `json:"time_slot"`
	Symbols      []string `json:"symbols"`
	Timeframe    string   `json:"timeframe"`
	TimeRangeStr string   `json:"timerange_str"`
	Status       string   `json:"status"`
}

func (tc *TaskController) toResponse(task scheduler.Task) taskResponse {
	status := ""
	if state, err := tc.scheduler.GetState(task.Name); err == nil {
		status = state.Status
	}
	return taskResponse{
		Name:         task.Name,
		SourceName:   task.SourceName,
		StorageName:  task.StorageName,
		TimeSlot:     gin.H{"start": task.Slot.Start, "end": task.Slot.End},
		Symbols:      task.Symbols,
		Timeframe:    task.Timeframe,
		TimeRangeStr: task.TimeRangeStr,
		Status:       status,
	}
}

// ListTasks returns all registered tasks
// GET /api/v1/tasks
func (tc *TaskController) ListTasks(c *gin.Context) {
	tasks := tc.scheduler.ListTasks()
	out := make([]taskResponse, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, tc.toResponse(task))
	}
	c.JSON(http.StatusOK, gin.H{"tasks": out, "count": len(out)})
}

// CreateTask registers a new task
// POST /api/v1/tasks
func (tc *TaskController) CreateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "bad_request",
			"message": err.Error(),
		})
		return
	}

	task := scheduler.Task{
		Name:          req.Name,
		SourceName:    req.SourceName,
		SourceConfig:  req.SourceConfig,
		StorageName:   req.StorageName,
		StorageConfig: req.StorageConfig,
		Slot:          timeutil.TimeSlot{Start: req.TimeSlot.Start, End: req.TimeSlot.End},
		Symbols:       req.Symbols,
		Timeframe:     req.Timeframe,
		TimeRangeStr:  req.TimeRangeStr,
	}

	if err := tc.scheduler.AddTask(task, req.Overwrite); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "task_rejected",
			"message": err.Error(),
		})
		return
	}

	created, err := tc.scheduler.GetTask(req.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, tc.toResponse(created))
}

// GetTask returns one task by name
// GET /api/v1/tasks/:name
func (tc *TaskController) GetTask(c *gin.Context) {
	name := c.Param("name")
	task, err := tc.scheduler.GetTask(name)
	if err != nil {
		tc.taskError(c, err)
		return
	}
	c.JSON(http.StatusOK, tc.toResponse(task))
}

// DeleteTask removes a task and tears down its plugin instances
// DELETE /api/v1/tasks/:name
func (tc *TaskController) DeleteTask(c *gin.Context) {
	name := c.Param("name")
	if err := tc.scheduler.DeleteTask(name); err != nil {
		tc.taskError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "task deleted", "name": name})
}

// StartTask dispatches a task immediately, bypassing its admission window
// POST /api/v1/tasks/:name/start
func (tc *TaskController) StartTask(c *gin.Context) {
	name := c.Param("name")
	if _, err := tc.scheduler.GetTask(name); err != nil {
		tc.taskError(c, err)
		return
	}

	if !tc.scheduler.TriggerTask(name) {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "not_dispatched",
			"message": "task is already running or the worker pool is saturated",
		})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "task dispatched", "name": name})
}

// StopTask cancels a task's in-flight execution
// POST /api/v1/tasks/:name/stop
func (tc *TaskController) StopTask(c *gin.Context) {
	name := c.Param("name")
	if _, err := tc.scheduler.GetTask(name); err != nil {
		tc.taskError(c, err)
		return
	}

	if !tc.scheduler.CancelTask(name) {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "not_running",
			"message": "task has no execution in flight",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "task cancelled", "name": name})
}

// GetTaskStatus returns the run-state of one task
// GET /api/v1/tasks/:name/status
func (tc *TaskController) GetTaskStatus(c *gin.Context) {
	name := c.Param("name")
	state, err := tc.scheduler.GetState(name)
	if err != nil {
		tc.taskError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "state": state})
}

func (tc *TaskController) taskError(c *gin.Context, err error) {
	if errors.Is(err, scheduler.ErrTaskNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": err.Error(),
	})
}
