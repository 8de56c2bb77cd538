package tasks

import (
	"context"
)

// Task names, matching the keys under scheduler.tasks in the configuration.
const (
	SQLMaintenance      = "sql_maintenance"
	ProfileRegeneration = "profile_regeneration"
)

// ScheduledTaskFunc is the signature of every scheduled task. The context is
// cancelled when the scheduler shuts down.
type ScheduledTaskFunc func(ctx context.Context) error

// RegisterAllTasks returns every task keyed by name. Tasks whose
// dependencies are missing are not registered.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	tasks := make(map[string]ScheduledTaskFunc)

	if deps.Store != nil {
		tasks[SQLMaintenance] = newSQLMaintenanceTask(deps)
	}
	if deps.Regenerator != nil {
		tasks[ProfileRegeneration] = newProfileRegenerationTask(deps)
	}

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
