package database

import (
	"time"
)

// Article is one fetched item, mutated in place as it moves through the
// pipeline. Raw fields are immutable once fetched; enriched fields are
// written once by the processor.
type Article struct {
	ID           int64
	FeedID       int64
	FeedName     string // joined from feeds for display and fairness rules
	CategorySlug string // empty until the processor assigns a category

	// Raw fields
	Title         string
	Link          string
	Description   string
	Content       string
	Author        string
	PublishedDate *time.Time
	ImageURLs     []string

	// Enriched fields, nil until processed
	LLMTitle              *string
	LLMSubtitle           *string
	LLMSummary            *string
	LLMCategorySuggestion *string
	RelevanceScore        *float64
	TitleEmbedding        []float64
	ProcessedAt           *time.Time

	// Duplicate detection
	IsDuplicate   bool
	DuplicateOfID *int64

	// Feedback
	UserVote      int
	VoteUpdatedAt *time.Time

	// Derived at read time from the current downvote set, never persisted
	AdjustedRelevanceScore *float64
	ScoreAdjustmentReason  string

	// Lifecycle
	IsRead     bool
	IsArchived bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Processed reports whether the article went through LLM enrichment
// (successfully or as a recorded failure).
func (a *Article) Processed() bool {
	return a.ProcessedAt != nil
}

// Canonical reports whether the article represents its similarity cluster.
func (a *Article) Canonical() bool {
	return !a.IsDuplicate
}

// Score returns the relevance score, 0 for unprocessed articles.
func (a *Article) Score() float64 {
	if a.RelevanceScore == nil {
		return 0
	}
	return *a.RelevanceScore
}

// AdjustedScore returns the adjusted relevance score when computed,
// falling back to the original relevance score.
func (a *Article) AdjustedScore() float64 {
	if a.AdjustedRelevanceScore != nil {
		return *a.AdjustedRelevanceScore
	}
	return a.Score()
}

// DisplayTitle prefers the enriched title over the raw one.
func (a *Article) DisplayTitle() string {
	if a.LLMTitle != nil && *a.LLMTitle != "" {
		return *a.LLMTitle
	}
	return a.Title
}

// OrderKey is the timestamp used for canonical tie-breaking: the published
// date when the feed provided one, the fetch time otherwise.
func (a *Article) OrderKey() time.Time {
	if a.PublishedDate != nil {
		return *a.PublishedDate
	}
	return a.CreatedAt
}

// NewArticle is a raw fetched item before it is stored.
type NewArticle struct {
	Title         string
	Link          string
	Description   string
	Content       string
	Author        string
	PublishedDate *time.Time
	ImageURLs     []string
}

// Enrichment holds everything the processor persists for one article as a
// single atomic update.
type Enrichment struct {
	Title              string
	Subtitle           string
	Summary            string
	CategorySuggestion string
	CategorySlug       string
	RelevanceScore     float64
	TitleEmbedding     []float64
}

// Feed is one registered source.
type Feed struct {
	ID            int64
	URL           string
	Name          string
	LastFetchedAt *time.Time
	CreatedAt     time.Time
}

// NewspaperStructure maps the Today section and category slugs to ordered
// article ID lists.
type NewspaperStructure struct {
	Today      []int64            `json:"today"`
	Categories map[string][]int64 `json:"categories"`
}

// Newspaper is one generated edition for a calendar date. Regeneration
// overwrites the structure in place.
type Newspaper struct {
	ID        int64
	Date      time.Time
	Structure NewspaperStructure
	CreatedAt time.Time
	UpdatedAt time.Time
}
