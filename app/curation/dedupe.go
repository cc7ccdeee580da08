package curation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/lysyi3m/paperboy/app/cfg"
	"github.com/lysyi3m/paperboy/app/database"
)

// DedupResult summarizes one duplicate detection pass.
type DedupResult struct {
	Checked    int
	Duplicates int
}

// Deduper clusters near-identical coverage by title embedding similarity.
// The earliest-published article of a cluster stays canonical, later ones are
// marked duplicates pointing at it. Clusters stay flat, a duplicate never
// points at another duplicate.
type Deduper struct {
	articleRepo database.ArticleRepository

	threshold float64
	window    time.Duration
}

func NewDeduper(articleRepo database.ArticleRepository) *Deduper {
	c := cfg.Get()

	return &Deduper{
		articleRepo: articleRepo,
		threshold:   c.DedupThreshold,
		window:      time.Duration(c.DedupWindowDays) * 24 * time.Hour,
	}
}

// Run examines every canonical article in the candidate window, oldest
// first. Rerunning over an unchanged window changes nothing.
func (d *Deduper) Run(ctx context.Context) (DedupResult, error) {
	since := time.Now().UTC().Add(-d.window)

	pool, err := d.articleRepo.GetPool(since)
	if err != nil {
		return DedupResult{}, fmt.Errorf("failed to load dedup pool: %w", err)
	}

	sortByOrderKey(pool)

	var result DedupResult
	for i := range pool {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		article := &pool[i]
		if len(article.TitleEmbedding) == 0 {
			continue
		}
		result.Checked++

		marked, err := d.checkArticle(article, since)
		if err != nil {
			return result, err
		}
		if marked {
			result.Duplicates++
		}
	}

	if result.Duplicates > 0 {
		slog.Info("Duplicate detection finished", "checked", result.Checked, "duplicates", result.Duplicates)
	}

	return result, nil
}

// checkArticle compares the article against earlier candidates and marks it
// a duplicate when one is close enough.
func (d *Deduper) checkArticle(article *database.Article, since time.Time) (bool, error) {
	candidates, err := d.articleRepo.GetDedupCandidates(article.ID, since)
	if err != nil {
		return false, fmt.Errorf("failed to load dedup candidates: %w", err)
	}

	var best *database.Article
	bestSim := 0.0

	for i := range candidates {
		candidate := &candidates[i]
		if len(candidate.TitleEmbedding) == 0 {
			continue
		}
		// Only an earlier article can claim this one: the earliest coverage
		// of a story stays canonical.
		if !candidate.OrderKey().Before(article.OrderKey()) {
			continue
		}

		sim := CosineSimilarity(article.TitleEmbedding, candidate.TitleEmbedding)
		if sim >= d.threshold && sim > bestSim {
			best = candidate
			bestSim = sim
		}
	}

	if best == nil {
		return false, nil
	}

	canonicalID := best.ID
	if best.IsDuplicate && best.DuplicateOfID != nil {
		canonicalID = *best.DuplicateOfID
	}
	if canonicalID == article.ID {
		return false, nil
	}

	if err := d.articleRepo.MarkDuplicate(article.ID, canonicalID); err != nil {
		return false, err
	}

	// The demoted article may have been canonical for others, keep the
	// cluster flat by moving them along.
	if _, err := d.articleRepo.RepointDuplicates(article.ID, canonicalID); err != nil {
		return false, err
	}

	slog.Debug("Duplicate detected",
		"article_id", article.ID,
		"canonical_id", canonicalID,
		"similarity", bestSim)

	return true, nil
}

func sortByOrderKey(articles []database.Article) {
	sort.Slice(articles, func(i, j int) bool {
		a, b := &articles[i], &articles[j]
		if !a.OrderKey().Equal(b.OrderKey()) {
			return a.OrderKey().Before(b.OrderKey())
		}
		return a.ID < b.ID
	})
}
