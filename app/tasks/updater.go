package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/paperboy/app/cfg"
	"github.com/lysyi3m/paperboy/app/config"
	"github.com/lysyi3m/paperboy/app/curation"
	"github.com/lysyi3m/paperboy/app/database"
)

// ErrUpdateInProgress is returned when an update is requested while one is
// already running.
var ErrUpdateInProgress = errors.New("update already in progress")

type FeedFetcher interface {
	Run(ctx context.Context, feeds []config.Feed) (int, error)
}

type ArticleProcessor interface {
	Run(ctx context.Context) (curation.ProcessResult, error)
}

type DuplicateDetector interface {
	Run(ctx context.Context) (curation.DedupResult, error)
}

type NewspaperGenerator interface {
	Run(date time.Time) (*database.Newspaper, error)
}

// UpdateResult summarizes one full pipeline run. Stage failures are recorded
// but do not undo the work of earlier stages.
type UpdateResult struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	NewArticles       int `json:"new_articles"`
	ProcessedArticles int `json:"processed_articles"`
	FailedArticles    int `json:"failed_articles"`
	Duplicates        int `json:"duplicates"`
	ArchivedArticles  int `json:"archived_articles"`
	DeletedArticles   int `json:"deleted_articles"`
	TodayCount        int `json:"today_count"`
	CategoryCount     int `json:"category_count"`

	Error string `json:"error,omitempty"`
}

// UpdateStatus is the externally visible updater state.
type UpdateStatus struct {
	Running    bool          `json:"running"`
	LastResult *UpdateResult `json:"last_result,omitempty"`
}

// Updater runs the full pipeline: fetch, enrich, dedupe, regenerate the
// newspaper, then archive and clean up. At most one update runs at a time,
// concurrent requests are rejected instead of queued.
type Updater struct {
	fetcher     FeedFetcher
	processor   ArticleProcessor
	deduper     DuplicateDetector
	generator   NewspaperGenerator
	articleRepo database.ArticleRepository
	curation    *config.Config

	archiveAge time.Duration
	cleanupAge time.Duration

	mu         sync.Mutex
	running    bool
	lastResult *UpdateResult
}

func NewUpdater(fetcher FeedFetcher, processor ArticleProcessor, deduper DuplicateDetector,
	generator NewspaperGenerator, articleRepo database.ArticleRepository, curation *config.Config) *Updater {
	c := cfg.Get()

	return &Updater{
		fetcher:     fetcher,
		processor:   processor,
		deduper:     deduper,
		generator:   generator,
		articleRepo: articleRepo,
		curation:    curation,
		archiveAge:  time.Duration(c.ArchiveDays) * 24 * time.Hour,
		cleanupAge:  time.Duration(c.CleanupDays) * 24 * time.Hour,
	}
}

// StageTask builds a task running a single pipeline stage on its own. The
// updater owns every stage component, so it doubles as the task factory for
// on-demand and standalone scheduled runs.
func (u *Updater) StageTask(taskType TaskType) (TaskInterface, error) {
	switch taskType {
	case TaskTypeFetchFeeds:
		return NewFetchFeedsTask(u.fetcher, u.curation.Feeds), nil
	case TaskTypeProcessArticles:
		return NewProcessArticlesTask(u.processor, u.deduper), nil
	case TaskTypeGenerateNewspaper:
		return NewGenerateNewspaperTask(u.generator, today()), nil
	case TaskTypeCleanup:
		return NewCleanupTask(u.articleRepo, u.archiveAge, u.cleanupAge), nil
	case TaskTypeFullUpdate:
		return NewFullUpdateTask(u), nil
	default:
		return nil, fmt.Errorf("unknown task type: %s", taskType)
	}
}

// Run executes the pipeline. Returns ErrUpdateInProgress when another run
// holds the slot.
func (u *Updater) Run(ctx context.Context) (*UpdateResult, error) {
	u.mu.Lock()
	if u.running {
		u.mu.Unlock()
		return nil, ErrUpdateInProgress
	}
	u.running = true
	u.mu.Unlock()

	result := &UpdateResult{StartedAt: time.Now().UTC()}

	defer func() {
		result.FinishedAt = time.Now().UTC()
		u.mu.Lock()
		u.running = false
		u.lastResult = result
		u.mu.Unlock()
	}()

	err := u.runStages(ctx, result)
	if err != nil {
		result.Error = err.Error()
	}

	slog.Info("Update finished",
		"duration", result.FinishedAt.Sub(result.StartedAt).String(),
		"new", result.NewArticles,
		"processed", result.ProcessedArticles,
		"duplicates", result.Duplicates,
		"error", result.Error)

	return result, err
}

// runStages executes the pipeline stages in order. A failing stage stops the
// pipeline but keeps everything the earlier stages already persisted.
func (u *Updater) runStages(ctx context.Context, result *UpdateResult) error {
	added, err := u.fetcher.Run(ctx, u.curation.Feeds)
	if err != nil {
		return fmt.Errorf("fetch stage: %w", err)
	}
	result.NewArticles = added

	processed, err := u.processor.Run(ctx)
	result.ProcessedArticles = processed.Processed
	result.FailedArticles = processed.Failed
	if err != nil {
		return fmt.Errorf("process stage: %w", err)
	}

	deduped, err := u.deduper.Run(ctx)
	if err != nil {
		return fmt.Errorf("dedup stage: %w", err)
	}
	result.Duplicates = deduped.Duplicates

	newspaper, err := u.generator.Run(today())
	if err != nil {
		return fmt.Errorf("newspaper stage: %w", err)
	}
	result.TodayCount = len(newspaper.Structure.Today)
	result.CategoryCount = len(newspaper.Structure.Categories)

	now := time.Now().UTC()
	archived, err := u.articleRepo.ArchiveOlderThan(now.Add(-u.archiveAge))
	if err != nil {
		return fmt.Errorf("archive stage: %w", err)
	}
	result.ArchivedArticles = int(archived)

	deleted, err := u.articleRepo.DeleteOlderThan(now.Add(-u.cleanupAge))
	if err != nil {
		return fmt.Errorf("cleanup stage: %w", err)
	}
	result.DeletedArticles = int(deleted)

	return nil
}

// Status reports whether an update is running and the outcome of the last
// completed one.
func (u *Updater) Status() UpdateStatus {
	u.mu.Lock()
	defer u.mu.Unlock()

	status := UpdateStatus{Running: u.running}
	if u.lastResult != nil {
		copied := *u.lastResult
		status.LastResult = &copied
	}
	return status
}

func today() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
