package curation

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/lysyi3m/paperboy/app/cfg"
	"github.com/lysyi3m/paperboy/app/config"
	"github.com/lysyi3m/paperboy/app/database"
)

// Generator assembles the newspaper edition for a calendar date: a Today
// section of the best articles overall and one section per configured
// category. Generation is a pure function of the current article state,
// regenerating overwrites the previous structure for the date.
type Generator struct {
	articleRepo   database.ArticleRepository
	newspaperRepo database.NewspaperRepository
	scorer        *Scorer
	curation      *config.Config

	selectionScore float64
	todayLimit     int
	categoryLimit  int
	maxPerFeed     int
	window         time.Duration
}

func NewGenerator(articleRepo database.ArticleRepository, newspaperRepo database.NewspaperRepository, scorer *Scorer, curation *config.Config) *Generator {
	c := cfg.Get()

	return &Generator{
		articleRepo:    articleRepo,
		newspaperRepo:  newspaperRepo,
		scorer:         scorer,
		curation:       curation,
		selectionScore: c.SelectionScore,
		todayLimit:     c.TodayLimit,
		categoryLimit:  c.CategoryLimit,
		maxPerFeed:     c.MaxPerFeedToday,
		window:         time.Duration(c.ArchiveDays) * 24 * time.Hour,
	}
}

// Run generates and stores the edition for the given date.
func (g *Generator) Run(date time.Time) (*database.Newspaper, error) {
	pool, err := g.articleRepo.GetPool(time.Now().UTC().Add(-g.window))
	if err != nil {
		return nil, fmt.Errorf("failed to load newspaper pool: %w", err)
	}

	if err := g.scorer.Adjust(pool); err != nil {
		return nil, err
	}

	structure := g.Build(pool)

	newspaper, err := g.newspaperRepo.Upsert(date, structure)
	if err != nil {
		return nil, fmt.Errorf("failed to store newspaper: %w", err)
	}

	slog.Info("Newspaper generated",
		"date", date.Format("2006-01-02"),
		"today", len(structure.Today),
		"categories", len(structure.Categories))

	return newspaper, nil
}

// Build selects the edition structure from an already-adjusted pool. The
// same pool always yields the same structure.
func (g *Generator) Build(pool []database.Article) database.NewspaperStructure {
	eligible := make([]database.Article, 0, len(pool))
	for _, a := range pool {
		if a.AdjustedScore() >= g.selectionScore {
			eligible = append(eligible, a)
		}
	}

	sort.Slice(eligible, func(i, j int) bool {
		a, b := &eligible[i], &eligible[j]
		if a.AdjustedScore() != b.AdjustedScore() {
			return a.AdjustedScore() > b.AdjustedScore()
		}
		if !a.OrderKey().Equal(b.OrderKey()) {
			return a.OrderKey().After(b.OrderKey())
		}
		return a.ID < b.ID
	})

	structure := database.NewspaperStructure{
		Today:      []int64{},
		Categories: map[string][]int64{},
	}

	// Today: the best articles overall, capped per feed so a single busy
	// source cannot dominate the front page.
	inToday := map[int64]bool{}
	perFeed := map[int64]int{}
	for _, a := range eligible {
		if len(structure.Today) >= g.todayLimit {
			break
		}
		if perFeed[a.FeedID] >= g.maxPerFeed {
			continue
		}
		structure.Today = append(structure.Today, a.ID)
		inToday[a.ID] = true
		perFeed[a.FeedID]++
	}

	// Category sections draw from what Today did not take. Uncategorized
	// articles can only appear in Today.
	for _, category := range g.curation.Categories {
		var ids []int64
		for _, a := range eligible {
			if len(ids) >= g.categoryLimit {
				break
			}
			if a.CategorySlug != category.Slug || inToday[a.ID] {
				continue
			}
			ids = append(ids, a.ID)
		}
		if len(ids) > 0 {
			structure.Categories[category.Slug] = ids
		}
	}

	return structure
}
