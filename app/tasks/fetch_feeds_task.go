package tasks

import (
	"context"
	"log/slog"

	"github.com/lysyi3m/paperboy/app/config"
)

// FetchFeedsTask pulls every configured feed without running the rest of the
// pipeline.
type FetchFeedsTask struct {
	Task
	fetcher FeedFetcher
	feeds   []config.Feed
}

func NewFetchFeedsTask(fetcher FeedFetcher, feeds []config.Feed) *FetchFeedsTask {
	return &FetchFeedsTask{
		Task:    NewTask(TaskTypeFetchFeeds),
		fetcher: fetcher,
		feeds:   feeds,
	}
}

func (t *FetchFeedsTask) Execute(ctx context.Context) error {
	added, err := t.fetcher.Run(ctx, t.feeds)
	if err != nil {
		return err
	}

	slog.Debug("Fetch task finished", "task_id", t.GetID(), "new_articles", added, "duration", t.GetDuration().String())
	return nil
}
