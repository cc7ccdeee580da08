package tasks

import (
	"context"
	"log/slog"
)

// ProcessArticlesTask enriches the current unprocessed batch and refreshes
// duplicate clusters.
type ProcessArticlesTask struct {
	Task
	processor ArticleProcessor
	deduper   DuplicateDetector
}

func NewProcessArticlesTask(processor ArticleProcessor, deduper DuplicateDetector) *ProcessArticlesTask {
	return &ProcessArticlesTask{
		Task:      NewTask(TaskTypeProcessArticles),
		processor: processor,
		deduper:   deduper,
	}
}

func (t *ProcessArticlesTask) Execute(ctx context.Context) error {
	processed, err := t.processor.Run(ctx)
	if err != nil {
		return err
	}

	deduped, err := t.deduper.Run(ctx)
	if err != nil {
		return err
	}

	slog.Debug("Process task finished",
		"task_id", t.GetID(),
		"processed", processed.Processed,
		"failed", processed.Failed,
		"duplicates", deduped.Duplicates,
		"duration", t.GetDuration().String())

	return nil
}
