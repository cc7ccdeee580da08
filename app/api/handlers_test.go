package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/paperboy/app/config"
	"github.com/lysyi3m/paperboy/app/database"
	"github.com/lysyi3m/paperboy/app/tasks"
)

type fakeArticleRepo struct {
	database.ArticleRepository

	articles map[int64]*database.Article
	votes    map[int64]int
}

func (r *fakeArticleRepo) GetByID(id int64) (*database.Article, error) {
	return r.articles[id], nil
}

func (r *fakeArticleRepo) List(opts database.ListOptions) ([]database.Article, error) {
	var out []database.Article
	for _, a := range r.articles {
		if opts.CategorySlug != "" && a.CategorySlug != opts.CategorySlug {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (r *fakeArticleRepo) GetArticleStats() (int, int, int, error) {
	return len(r.articles), len(r.articles), 0, nil
}

func (r *fakeArticleRepo) SetVote(id int64, vote int) error {
	if r.votes == nil {
		r.votes = map[int64]int{}
	}
	r.votes[id] = vote
	return nil
}

type fakeFeedRepo struct {
	database.FeedRepository
}

func (r *fakeFeedRepo) GetFeedCount() (int, error) { return 2, nil }

type fakeNewspaperRepo struct {
	database.NewspaperRepository

	newspaper *database.Newspaper
}

func (r *fakeNewspaperRepo) GetByDate(date time.Time) (*database.Newspaper, error) {
	return r.newspaper, nil
}

type fakeScorer struct {
	suppress map[int64]float64
}

func (s *fakeScorer) Adjust(articles []database.Article) error {
	for i := range articles {
		if adjusted, ok := s.suppress[articles[i].ID]; ok {
			value := adjusted
			articles[i].AdjustedRelevanceScore = &value
			articles[i].ScoreAdjustmentReason = "similar to downvoted coverage"
		}
	}
	return nil
}

func (s *fakeScorer) Explain(ctx context.Context, article *database.Article) (string, error) {
	return "Lowered because of your feedback.", nil
}

type fakeUpdater struct {
	running bool
	stages  []tasks.TaskType
}

func (u *fakeUpdater) Run(ctx context.Context) (*tasks.UpdateResult, error) {
	return &tasks.UpdateResult{}, nil
}

func (u *fakeUpdater) Status() tasks.UpdateStatus {
	return tasks.UpdateStatus{Running: u.running}
}

func (u *fakeUpdater) StageTask(taskType tasks.TaskType) (tasks.TaskInterface, error) {
	u.stages = append(u.stages, taskType)
	return tasks.NewCleanupTask(nil, 0, 0), nil
}

type fakeScheduler struct {
	enqueued []tasks.TaskInterface
}

func (s *fakeScheduler) Start() {}
func (s *fakeScheduler) Stop()  {}
func (s *fakeScheduler) EnqueueTask(task tasks.TaskInterface) error {
	s.enqueued = append(s.enqueued, task)
	return nil
}

func testArticle(id int64, score float64) *database.Article {
	published := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	title := "Enriched Title"
	now := published
	return &database.Article{
		ID:             id,
		FeedName:       "Example",
		Title:          "raw title",
		Link:           "https://example.com/a",
		LLMTitle:       &title,
		RelevanceScore: &score,
		PublishedDate:  &published,
		ProcessedAt:    &now,
	}
}

type testEnv struct {
	router    *gin.Engine
	articles  *fakeArticleRepo
	updater   *fakeUpdater
	scheduler *fakeScheduler
}

func newTestEnv(apiAccessKey string, scorer ScorerInterface) *testEnv {
	articles := &fakeArticleRepo{articles: map[int64]*database.Article{
		1: testArticle(1, 0.9),
		2: testArticle(2, 0.7),
	}}
	updater := &fakeUpdater{}
	scheduler := &fakeScheduler{}

	newspapers := &fakeNewspaperRepo{newspaper: &database.Newspaper{
		Date: time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC),
		Structure: database.NewspaperStructure{
			Today:      []int64{1, 2},
			Categories: map[string][]int64{"tech": {2}},
		},
	}}

	handler := NewHandler(articles, &fakeFeedRepo{}, newspapers, scorer, updater, scheduler,
		&config.Config{Categories: []config.Category{{Name: "Technology", Slug: "tech"}}})

	return &testEnv{
		router:    NewServer(handler, apiAccessKey),
		articles:  articles,
		updater:   updater,
		scheduler: scheduler,
	}
}

func doRequest(router *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestListArticles_AdjustedScores(t *testing.T) {
	env := newTestEnv("", &fakeScorer{suppress: map[int64]float64{1: 0.09}})

	w := doRequest(env.router, "GET", "/articles", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Articles []articleView `json:"articles"`
		Total    int           `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Total != 2 {
		t.Fatalf("Expected 2 articles, got %d", resp.Total)
	}

	for _, a := range resp.Articles {
		switch a.ID {
		case 1:
			if a.AdjustedScore == nil || *a.AdjustedScore != 0.09 {
				t.Errorf("Article 1 must carry the adjusted score, got %+v", a.AdjustedScore)
			}
			if a.AdjustmentReason == "" {
				t.Error("Article 1 must carry the adjustment reason")
			}
		case 2:
			if a.AdjustedScore != nil {
				t.Error("Article 2 must not carry an adjusted score")
			}
		}
		if a.Title != "Enriched Title" {
			t.Errorf("Expected the enriched title, got %q", a.Title)
		}
	}
}

func TestGetArticle_NotFound(t *testing.T) {
	env := newTestEnv("", &fakeScorer{})

	w := doRequest(env.router, "GET", "/articles/99", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestVoteArticle(t *testing.T) {
	env := newTestEnv("", &fakeScorer{})

	w := doRequest(env.router, "POST", "/articles/1/vote", `{"vote": -1}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if env.articles.votes[1] != -1 {
		t.Errorf("Expected vote -1 to be stored, got %d", env.articles.votes[1])
	}

	w = doRequest(env.router, "POST", "/articles/1/vote", `{"vote": 0}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 clearing the vote, got %d: %s", w.Code, w.Body.String())
	}
	if env.articles.votes[1] != 0 {
		t.Errorf("Expected the vote to be cleared, got %d", env.articles.votes[1])
	}

	// The vote is a downvote toggle, upvotes are outside its domain.
	for _, vote := range []string{`{"vote": 1}`, `{"vote": 5}`, `{"vote": -2}`} {
		w = doRequest(env.router, "POST", "/articles/1/vote", vote, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for %s, got %d", vote, w.Code)
		}
	}
	if env.articles.votes[1] != 0 {
		t.Errorf("A rejected vote must not be stored, got %d", env.articles.votes[1])
	}
}

func TestExplainArticle(t *testing.T) {
	env := newTestEnv("", &fakeScorer{})

	w := doRequest(env.router, "GET", "/articles/1/explain", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Lowered because of your feedback.") {
		t.Errorf("Expected the explanation in the response, got %s", w.Body.String())
	}
}

func TestGetNewspaper(t *testing.T) {
	env := newTestEnv("", &fakeScorer{})

	w := doRequest(env.router, "GET", "/newspapers/2026-08-24", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Date       string                   `json:"date"`
		Today      []articleView            `json:"today"`
		Categories map[string][]articleView `json:"categories"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Date != "2026-08-24" {
		t.Errorf("Unexpected date: %q", resp.Date)
	}
	if len(resp.Today) != 2 {
		t.Errorf("Expected 2 Today articles, got %d", len(resp.Today))
	}
	if len(resp.Categories["tech"]) != 1 {
		t.Errorf("Expected 1 tech article, got %d", len(resp.Categories["tech"]))
	}
}

func TestGetNewspaper_BadDate(t *testing.T) {
	env := newTestEnv("", &fakeScorer{})

	w := doRequest(env.router, "GET", "/newspapers/not-a-date", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestTriggerUpdate(t *testing.T) {
	env := newTestEnv("", &fakeScorer{})

	w := doRequest(env.router, "POST", "/update", "", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if len(env.scheduler.enqueued) != 1 {
		t.Errorf("Expected 1 enqueued task, got %d", len(env.scheduler.enqueued))
	}
}

func TestTriggerUpdate_Conflict(t *testing.T) {
	env := newTestEnv("", &fakeScorer{})
	env.updater.running = true

	w := doRequest(env.router, "POST", "/update", "", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 while an update is running, got %d", w.Code)
	}
	if len(env.scheduler.enqueued) != 0 {
		t.Error("No task must be enqueued on conflict")
	}
}

func TestTriggerUpdate_SingleStage(t *testing.T) {
	env := newTestEnv("", &fakeScorer{})

	w := doRequest(env.router, "POST", "/update?stage=cleanup", "", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if len(env.updater.stages) != 1 || env.updater.stages[0] != tasks.TaskTypeCleanup {
		t.Errorf("Expected a cleanup stage task request, got %v", env.updater.stages)
	}
	if len(env.scheduler.enqueued) != 1 || env.scheduler.enqueued[0].GetType() != tasks.TaskTypeCleanup {
		t.Errorf("Expected the cleanup task on the queue, got %v", env.scheduler.enqueued)
	}

	// Stage runs bypass the full-update conflict check.
	env.updater.running = true
	if w := doRequest(env.router, "POST", "/update?stage=cleanup", "", nil); w.Code != http.StatusAccepted {
		t.Errorf("Expected 202 for a stage run during an update, got %d", w.Code)
	}

	if w := doRequest(env.router, "POST", "/update?stage=reticulate", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an unknown stage, got %d", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv("secret", &fakeScorer{})

	// Reads stay open.
	if w := doRequest(env.router, "GET", "/articles", "", nil); w.Code != http.StatusOK {
		t.Errorf("Read endpoints must not require a key, got %d", w.Code)
	}

	// Mutations require the key.
	if w := doRequest(env.router, "POST", "/articles/1/vote", `{"vote": -1}`, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without a key, got %d", w.Code)
	}
	if w := doRequest(env.router, "POST", "/articles/1/vote", `{"vote": -1}`, map[string]string{"X-API-Key": "wrong"}); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with a wrong key, got %d", w.Code)
	}
	if w := doRequest(env.router, "POST", "/articles/1/vote", `{"vote": -1}`, map[string]string{"X-API-Key": "secret"}); w.Code != http.StatusOK {
		t.Errorf("Expected 200 with the right key, got %d", w.Code)
	}
	if w := doRequest(env.router, "POST", "/articles/1/vote", `{"vote": -1}`, map[string]string{"Authorization": "Bearer secret"}); w.Code != http.StatusOK {
		t.Errorf("Expected 200 with a bearer key, got %d", w.Code)
	}
}
