package tasks

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application to manage background pipeline processing.
// Example usage:
//
//	scheduler := NewScheduler(updater)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewFullUpdateTask(updater))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}
