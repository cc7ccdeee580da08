package tasks

import (
	"context"
	"log/slog"
	"time"
)

// GenerateNewspaperTask regenerates the edition for a date from the current
// article state.
type GenerateNewspaperTask struct {
	Task
	generator NewspaperGenerator
	date      time.Time
}

func NewGenerateNewspaperTask(generator NewspaperGenerator, date time.Time) *GenerateNewspaperTask {
	return &GenerateNewspaperTask{
		Task:      NewTask(TaskTypeGenerateNewspaper),
		generator: generator,
		date:      date,
	}
}

func (t *GenerateNewspaperTask) Execute(ctx context.Context) error {
	newspaper, err := t.generator.Run(t.date)
	if err != nil {
		return err
	}

	slog.Debug("Newspaper task finished",
		"task_id", t.GetID(),
		"date", t.date.Format("2006-01-02"),
		"today", len(newspaper.Structure.Today),
		"duration", t.GetDuration().String())

	return nil
}
