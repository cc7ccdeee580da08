package api

import (
	"context"
	"time"

	"github.com/lysyi3m/paperboy/app/config"
	"github.com/lysyi3m/paperboy/app/curation"
	"github.com/lysyi3m/paperboy/app/database"
	"github.com/lysyi3m/paperboy/app/tasks"
)

type ScorerInterface interface {
	Adjust(articles []database.Article) error
	Explain(ctx context.Context, article *database.Article) (string, error)
}

var _ ScorerInterface = (*curation.Scorer)(nil)

type UpdaterInterface interface {
	Run(ctx context.Context) (*tasks.UpdateResult, error)
	Status() tasks.UpdateStatus
	StageTask(taskType tasks.TaskType) (tasks.TaskInterface, error)
}

var _ UpdaterInterface = (*tasks.Updater)(nil)

type Handler struct {
	articleRepo   database.ArticleRepository
	feedRepo      database.FeedRepository
	newspaperRepo database.NewspaperRepository
	scorer        ScorerInterface
	updater       UpdaterInterface
	scheduler     tasks.TaskSchedulerInterface
	curation      *config.Config
}

// articleView is the JSON shape of one article. Adjusted score fields are
// present only when the current downvote set suppresses the article.
type articleView struct {
	ID            int64      `json:"id"`
	FeedName      string     `json:"feed_name"`
	Title         string     `json:"title"`
	Subtitle      string     `json:"subtitle,omitempty"`
	Summary       string     `json:"summary,omitempty"`
	Link          string     `json:"link"`
	Author        string     `json:"author,omitempty"`
	Category      string     `json:"category,omitempty"`
	ImageURLs     []string   `json:"image_urls,omitempty"`
	PublishedDate *time.Time `json:"published_date,omitempty"`

	RelevanceScore   *float64 `json:"relevance_score,omitempty"`
	AdjustedScore    *float64 `json:"adjusted_score,omitempty"`
	AdjustmentReason string   `json:"adjustment_reason,omitempty"`

	UserVote    int  `json:"user_vote"`
	IsRead      bool `json:"is_read"`
	IsDuplicate bool `json:"is_duplicate"`

	DuplicateOfID *int64 `json:"duplicate_of_id,omitempty"`
}

func newArticleView(a *database.Article) articleView {
	view := articleView{
		ID:             a.ID,
		FeedName:       a.FeedName,
		Title:          a.DisplayTitle(),
		Link:           a.Link,
		Author:         a.Author,
		Category:       a.CategorySlug,
		ImageURLs:      a.ImageURLs,
		PublishedDate:  a.PublishedDate,
		RelevanceScore: a.RelevanceScore,
		UserVote:       a.UserVote,
		IsRead:         a.IsRead,
		IsDuplicate:    a.IsDuplicate,
		DuplicateOfID:  a.DuplicateOfID,
	}

	if a.LLMSubtitle != nil {
		view.Subtitle = *a.LLMSubtitle
	}
	if a.LLMSummary != nil {
		view.Summary = *a.LLMSummary
	}
	if a.AdjustedRelevanceScore != nil {
		view.AdjustedScore = a.AdjustedRelevanceScore
		view.AdjustmentReason = a.ScoreAdjustmentReason
	}

	return view
}
