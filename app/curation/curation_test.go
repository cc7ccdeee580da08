package curation

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/lysyi3m/paperboy/app/database"
)

// memRepo is an in-memory ArticleRepository covering the methods the
// curation pipeline uses.
type memRepo struct {
	database.ArticleRepository

	mu       sync.Mutex
	articles map[int64]*database.Article

	enrichments map[int64]database.Enrichment
	failed      map[int64]bool
}

func newMemRepo(articles ...database.Article) *memRepo {
	r := &memRepo{
		articles:    map[int64]*database.Article{},
		enrichments: map[int64]database.Enrichment{},
		failed:      map[int64]bool{},
	}
	for i := range articles {
		a := articles[i]
		r.articles[a.ID] = &a
	}
	return r
}

func (r *memRepo) sorted(filter func(*database.Article) bool) []database.Article {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []database.Article
	for _, a := range r.articles {
		if filter(a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memRepo) GetUnprocessed(since time.Time, limit int) ([]database.Article, error) {
	out := r.sorted(func(a *database.Article) bool {
		return a.ProcessedAt == nil && !a.IsArchived
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) SaveEnrichment(id int64, enrichment database.Enrichment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := r.articles[id]
	now := time.Now().UTC()
	a.LLMTitle = &enrichment.Title
	a.LLMSummary = &enrichment.Summary
	a.CategorySlug = enrichment.CategorySlug
	a.RelevanceScore = &enrichment.RelevanceScore
	a.TitleEmbedding = enrichment.TitleEmbedding
	a.ProcessedAt = &now
	r.enrichments[id] = enrichment
	return nil
}

func (r *memRepo) MarkEnrichmentFailed(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := r.articles[id]
	zero := 0.0
	now := time.Now().UTC()
	a.RelevanceScore = &zero
	a.ProcessedAt = &now
	r.failed[id] = true
	return nil
}

func (r *memRepo) GetDedupCandidates(articleID int64, since time.Time) ([]database.Article, error) {
	return r.sorted(func(a *database.Article) bool {
		return a.ID != articleID && a.ProcessedAt != nil &&
			len(a.TitleEmbedding) > 0 && !a.IsArchived
	}), nil
}

func (r *memRepo) MarkDuplicate(id, canonicalID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := r.articles[id]
	a.IsDuplicate = true
	a.DuplicateOfID = &canonicalID
	return nil
}

func (r *memRepo) RepointDuplicates(fromCanonicalID, toCanonicalID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var moved int64
	for _, a := range r.articles {
		if a.DuplicateOfID != nil && *a.DuplicateOfID == fromCanonicalID && a.ID != toCanonicalID {
			id := toCanonicalID
			a.DuplicateOfID = &id
			moved++
		}
	}
	return moved, nil
}

func (r *memRepo) GetDownvoted(since time.Time) ([]database.Article, error) {
	return r.sorted(func(a *database.Article) bool {
		return a.UserVote == -1 && len(a.TitleEmbedding) > 0
	}), nil
}

func (r *memRepo) GetPool(since time.Time) ([]database.Article, error) {
	return r.sorted(func(a *database.Article) bool {
		return a.ProcessedAt != nil && !a.IsDuplicate && !a.IsArchived
	}), nil
}

func (r *memRepo) get(id int64) database.Article {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.articles[id]
}

// embeddingAt returns a unit vector at the given angle, so the cosine
// similarity between two of them is exactly cos(a - b).
func embeddingAt(angle float64) []float64 {
	return []float64{math.Cos(angle), math.Sin(angle)}
}

// angleFor returns the angle whose embedding has the given similarity to
// embeddingAt(0).
func angleFor(similarity float64) float64 {
	return math.Acos(similarity)
}

func processedArticle(id, feedID int64, published time.Time, score float64, embedding []float64) database.Article {
	now := published
	return database.Article{
		ID:             id,
		FeedID:         feedID,
		Title:          "article",
		Link:           "https://example.com/" + string(rune('a'+id)),
		PublishedDate:  &published,
		RelevanceScore: &score,
		TitleEmbedding: embedding,
		ProcessedAt:    &now,
		CreatedAt:      published,
	}
}
