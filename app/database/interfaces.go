package database

import (
	"time"
)

// ListOptions narrows article listings for the API layer.
type ListOptions struct {
	CategorySlug      string
	IncludeDuplicates bool
	IncludeArchived   bool
	Limit             int
}

type ArticleRepository interface {
	// InsertArticle stores a fetched item. Returns false when an article
	// with the same link already exists.
	InsertArticle(feedID int64, article NewArticle) (bool, error)

	GetByID(id int64) (*Article, error)
	List(opts ListOptions) ([]Article, error)
	GetArticleStats() (total, processed, duplicates int, err error)

	// Enrichment
	GetUnprocessed(since time.Time, limit int) ([]Article, error)
	SaveEnrichment(id int64, enrichment Enrichment) error
	MarkEnrichmentFailed(id int64) error

	// Duplicate detection
	GetDedupCandidates(articleID int64, since time.Time) ([]Article, error)
	MarkDuplicate(id, canonicalID int64) error
	RepointDuplicates(fromCanonicalID, toCanonicalID int64) (int64, error)

	// Feedback
	SetVote(id int64, vote int) error
	GetDownvoted(since time.Time) ([]Article, error)

	// Newspaper pool: processed, canonical, non-archived articles
	GetPool(since time.Time) ([]Article, error)

	// Lifecycle
	SetRead(id int64, read bool) error
	ArchiveOlderThan(cutoff time.Time) (int64, error)
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

type FeedRepository interface {
	UpsertFeed(url, name string) (int64, error)
	GetFeedCount() (int, error)
	SetLastFetched(id int64, fetchedAt time.Time) error
}

type NewspaperRepository interface {
	// Upsert overwrites the structure for the given date.
	Upsert(date time.Time, structure NewspaperStructure) (*Newspaper, error)
	GetByDate(date time.Time) (*Newspaper, error)
}
