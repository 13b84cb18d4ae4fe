package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDashboardWarmup pre-populates the dashboard metric caches.
	TaskDashboardWarmup = "dashboard:warmup"
)

// DashboardWarmupPayload controls the window the warmup aggregates over.
type DashboardWarmupPayload struct {
	WindowDays int `json:"window_days"`
}

// NewDashboardWarmupTask constructs an Asynq task for cache warmup.
func NewDashboardWarmupTask(windowDays int) (*asynq.Task, error) {
	data, err := json.Marshal(DashboardWarmupPayload{WindowDays: windowDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDashboardWarmup, data), nil
}
