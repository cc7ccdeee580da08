package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/paperboy/app/config"
	"github.com/lysyi3m/paperboy/app/curation"
	"github.com/lysyi3m/paperboy/app/database"
)

type fakeFetcher struct {
	added   int
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeFetcher) Run(ctx context.Context, feeds []config.Feed) (int, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	return f.added, f.err
}

type fakeProcessor struct {
	result curation.ProcessResult
	err    error
	calls  int
}

func (p *fakeProcessor) Run(ctx context.Context) (curation.ProcessResult, error) {
	p.calls++
	return p.result, p.err
}

type fakeDeduper struct {
	result curation.DedupResult
}

func (d *fakeDeduper) Run(ctx context.Context) (curation.DedupResult, error) {
	return d.result, nil
}

type fakeGenerator struct {
	calls int
}

func (g *fakeGenerator) Run(date time.Time) (*database.Newspaper, error) {
	g.calls++
	return &database.Newspaper{
		Date: date,
		Structure: database.NewspaperStructure{
			Today:      []int64{1, 2},
			Categories: map[string][]int64{"tech": {3}},
		},
	}, nil
}

type fakeLifecycleRepo struct {
	database.ArticleRepository

	archived int64
	deleted  int64
}

func (r *fakeLifecycleRepo) ArchiveOlderThan(cutoff time.Time) (int64, error) {
	return r.archived, nil
}

func (r *fakeLifecycleRepo) DeleteOlderThan(cutoff time.Time) (int64, error) {
	return r.deleted, nil
}

func newTestUpdater(fetcher FeedFetcher, processor ArticleProcessor) *Updater {
	return &Updater{
		fetcher:     fetcher,
		processor:   processor,
		deduper:     &fakeDeduper{result: curation.DedupResult{Duplicates: 1}},
		generator:   &fakeGenerator{},
		articleRepo: &fakeLifecycleRepo{archived: 4, deleted: 2},
		curation:    &config.Config{Feeds: []config.Feed{{Name: "Example", URL: "https://example.com/rss"}}},
		archiveAge:  7 * 24 * time.Hour,
		cleanupAge:  8 * 24 * time.Hour,
	}
}

func TestUpdater_Run(t *testing.T) {
	updater := newTestUpdater(
		&fakeFetcher{added: 5},
		&fakeProcessor{result: curation.ProcessResult{Processed: 5}},
	)

	result, err := updater.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.NewArticles != 5 || result.ProcessedArticles != 5 {
		t.Errorf("Unexpected counts: %+v", result)
	}
	if result.Duplicates != 1 {
		t.Errorf("Expected 1 duplicate, got %d", result.Duplicates)
	}
	if result.TodayCount != 2 || result.CategoryCount != 1 {
		t.Errorf("Unexpected newspaper counts: %+v", result)
	}
	if result.ArchivedArticles != 4 || result.DeletedArticles != 2 {
		t.Errorf("Unexpected lifecycle counts: %+v", result)
	}

	status := updater.Status()
	if status.Running {
		t.Error("Updater must not report running after completion")
	}
	if status.LastResult == nil || status.LastResult.NewArticles != 5 {
		t.Errorf("Status must carry the last result, got %+v", status.LastResult)
	}
}

func TestUpdater_StageFailureKeepsEarlierWork(t *testing.T) {
	processor := &fakeProcessor{
		result: curation.ProcessResult{Processed: 2, Aborted: 3},
		err:    errors.New("provider error 401: bad key"),
	}
	updater := newTestUpdater(&fakeFetcher{added: 7}, processor)

	result, err := updater.Run(context.Background())
	if err == nil {
		t.Fatal("Expected the stage failure to surface")
	}

	// The fetch stage's work is kept and reported.
	if result.NewArticles != 7 {
		t.Errorf("Expected the fetch count to survive the failure, got %d", result.NewArticles)
	}
	if result.ProcessedArticles != 2 {
		t.Errorf("Partial processing must be reported, got %d", result.ProcessedArticles)
	}
	if result.Error == "" {
		t.Error("The result must record the stage error")
	}

	// Later stages never ran.
	if result.TodayCount != 0 || result.ArchivedArticles != 0 {
		t.Errorf("Stages after the failure must not run, got %+v", result)
	}
}

func TestUpdater_RejectsConcurrentRuns(t *testing.T) {
	fetcher := &fakeFetcher{
		added:   1,
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	updater := newTestUpdater(fetcher, &fakeProcessor{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := updater.Run(context.Background()); err != nil {
			t.Errorf("First run failed: %v", err)
		}
	}()

	<-fetcher.started
	if !updater.Status().Running {
		t.Error("Updater must report running while a run is in flight")
	}

	if _, err := updater.Run(context.Background()); !errors.Is(err, ErrUpdateInProgress) {
		t.Errorf("Expected ErrUpdateInProgress, got: %v", err)
	}

	close(fetcher.release)
	wg.Wait()

	// The slot is free again.
	fetcher.started = nil
	fetcher.release = nil
	if _, err := updater.Run(context.Background()); err != nil {
		t.Errorf("Run after completion failed: %v", err)
	}
}

func TestUpdater_StageTasks(t *testing.T) {
	fetcher := &fakeFetcher{added: 3}
	processor := &fakeProcessor{result: curation.ProcessResult{Processed: 2}}
	updater := newTestUpdater(fetcher, processor)

	for _, taskType := range []TaskType{
		TaskTypeFetchFeeds,
		TaskTypeProcessArticles,
		TaskTypeGenerateNewspaper,
		TaskTypeCleanup,
		TaskTypeFullUpdate,
	} {
		task, err := updater.StageTask(taskType)
		if err != nil {
			t.Fatalf("StageTask(%s) failed: %v", taskType, err)
		}
		if task.GetType() != taskType {
			t.Errorf("Expected task type %s, got %s", taskType, task.GetType())
		}
		if err := task.Execute(context.Background()); err != nil {
			t.Errorf("Executing %s failed: %v", taskType, err)
		}
	}

	if _, err := updater.StageTask(TaskType("bogus")); err == nil {
		t.Error("Expected an error for an unknown task type")
	}

	// The process stage ran once on its own and once inside the full update.
	if processor.calls != 2 {
		t.Errorf("Expected 2 processor runs, got %d", processor.calls)
	}
}

func TestFullUpdateTask_YieldsToRunningUpdate(t *testing.T) {
	task := NewFullUpdateTask(updateRunnerFunc(func(ctx context.Context) (*UpdateResult, error) {
		return nil, ErrUpdateInProgress
	}))

	if err := task.Execute(context.Background()); err != nil {
		t.Errorf("A scheduled run must yield silently, got: %v", err)
	}
}

type updateRunnerFunc func(ctx context.Context) (*UpdateResult, error)

func (f updateRunnerFunc) Run(ctx context.Context) (*UpdateResult, error) {
	return f(ctx)
}
