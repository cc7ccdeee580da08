package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/lysyi3m/paperboy/app/database"
)

// CleanupTask archives aging articles and deletes those past the retention
// window.
type CleanupTask struct {
	Task
	articleRepo database.ArticleRepository
	archiveAge  time.Duration
	cleanupAge  time.Duration
}

func NewCleanupTask(articleRepo database.ArticleRepository, archiveAge, cleanupAge time.Duration) *CleanupTask {
	return &CleanupTask{
		Task:        NewTask(TaskTypeCleanup),
		articleRepo: articleRepo,
		archiveAge:  archiveAge,
		cleanupAge:  cleanupAge,
	}
}

func (t *CleanupTask) Execute(ctx context.Context) error {
	now := time.Now().UTC()

	archived, err := t.articleRepo.ArchiveOlderThan(now.Add(-t.archiveAge))
	if err != nil {
		return err
	}

	deleted, err := t.articleRepo.DeleteOlderThan(now.Add(-t.cleanupAge))
	if err != nil {
		return err
	}

	if archived > 0 || deleted > 0 {
		slog.Info("Cleanup finished", "archived", archived, "deleted", deleted)
	}

	return nil
}
