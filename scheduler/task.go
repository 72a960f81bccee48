package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketsync/timeutil"
)

// Task statuses, also reported over the management API
const (
	StatusCreated   = "created"
	StatusReplaced  = "replaced"
	StatusWaiting   = "waiting"
	StatusRunning   = "running"
	StatusExecuting = "executing"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusStopped   = "stopped"
	StatusDeleted   = "deleted"
)

// SupportedTimeframes are the granularities a task may sync at
var SupportedTimeframes = []string{"1w", "1d", "4h", "1h"}

// DefaultTimeframe is applied when a task omits its granularity
const DefaultTimeframe = "1d"

// DefaultTimeRange is applied when a task omits its target range
const DefaultTimeRange = "20220101-"

// ErrTaskNotFound is returned by task lookups for unknown names
var ErrTaskNotFound = errors.New("task not found")

// Task is the declarative definition of a recurring sync job
type Task struct {
	Name          string             `json:"name"`
	SourceName    string             `json:"data_source_name"`
	SourceConfig  map[string]string  `json:"data_source_config,omitempty"`
	StorageName   string             `json:"storage_name"`
	StorageConfig map[string]string  `json:"storage_config,omitempty"`
	Slot          timeutil.TimeSlot  `json:"time_slot"`
	Symbols       []string           `json:"symbols"`
	Timeframe     string             `json:"timeframe"`
	TimeRangeStr  string             `json:"timerange_str"`
	TimeRange     timeutil.TimeRange `json:"-"`
}

// DatasetID derives the storage id for one of the task's symbols
func (t *Task) DatasetID(symbol string) string {
	return fmt.Sprintf("%s_%s", symbol, t.Timeframe)
}

// TaskState is the mutable run-state of a task, owned by the scheduler
type TaskState struct {
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	LastUpdatedAt time.Time  `json:"last_updated_at"`
	LastRunTime   *time.Time `json:"last_run_time,omitempty"`
	RunCount      int        `json:"run_count"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`

	// done is closed when the in-flight execution finishes; nil when idle
	done   chan struct{}
	cancel context.CancelFunc
}

// executionPending reports whether a previous dispatch is still in flight
func (s *TaskState) executionPending() bool {
	if s == nil || s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func validTimeframe(timeframe string) bool {
	for _, tf := range SupportedTimeframes {
		if tf == timeframe {
			return true
		}
	}
	return false
}
