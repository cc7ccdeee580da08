package tasks

import (
	"context"
	"errors"
	"log/slog"
)

// UpdateRunner is the slice of the updater a full update task needs.
type UpdateRunner interface {
	Run(ctx context.Context) (*UpdateResult, error)
}

// FullUpdateTask runs the whole pipeline once. An update already in progress
// is not an error, the scheduled run simply yields to it.
type FullUpdateTask struct {
	Task
	updater UpdateRunner
}

func NewFullUpdateTask(updater UpdateRunner) *FullUpdateTask {
	return &FullUpdateTask{
		Task:    NewTask(TaskTypeFullUpdate),
		updater: updater,
	}
}

func (t *FullUpdateTask) Execute(ctx context.Context) error {
	_, err := t.updater.Run(ctx)
	if errors.Is(err, ErrUpdateInProgress) {
		slog.Debug("Update already running, skipping scheduled run", "task_id", t.GetID())
		return nil
	}
	return err
}
