package curation

import (
	"context"
	"fmt"
	"time"

	"github.com/lysyi3m/paperboy/app/cfg"
	"github.com/lysyi3m/paperboy/app/database"
)

// DecayFunc maps a similarity to a downvoted article onto a score
// multiplier in [0, 1].
type DecayFunc func(similarity float64) float64

// LinearDecay suppresses proportionally to similarity: identical coverage
// drops to zero, borderline matches keep most of their score.
func LinearDecay(similarity float64) float64 {
	return 1 - similarity
}

// Completer generates the natural-language explanation for an adjustment.
type Completer interface {
	Complete(ctx context.Context, system, user string, maxTokens int) (string, error)
}

// Scorer derives adjusted relevance scores from the current downvote set.
// Adjustments are computed on every read and never persisted, so removing a
// downvote restores the original scores immediately.
type Scorer struct {
	articleRepo database.ArticleRepository
	completer   Completer

	suppressThreshold float64
	window            time.Duration
	decay             DecayFunc
}

func NewScorer(articleRepo database.ArticleRepository, completer Completer) *Scorer {
	c := cfg.Get()

	return &Scorer{
		articleRepo:       articleRepo,
		completer:         completer,
		suppressThreshold: c.SuppressThreshold,
		window:            time.Duration(c.ArchiveDays) * 24 * time.Hour,
		decay:             LinearDecay,
	}
}

// Adjust computes adjusted scores for the given articles against the
// current downvote set.
func (s *Scorer) Adjust(articles []database.Article) error {
	downvoted, err := s.articleRepo.GetDownvoted(time.Now().UTC().Add(-s.window))
	if err != nil {
		return fmt.Errorf("failed to load downvoted articles: %w", err)
	}

	s.AdjustAgainst(articles, downvoted)
	return nil
}

// AdjustAgainst applies the adjustment with an explicit downvote snapshot,
// so one snapshot can serve a whole listing.
func (s *Scorer) AdjustAgainst(articles, downvoted []database.Article) {
	for i := range articles {
		s.adjustOne(&articles[i], downvoted)
	}
}

func (s *Scorer) adjustOne(article *database.Article, downvoted []database.Article) {
	article.AdjustedRelevanceScore = nil
	article.ScoreAdjustmentReason = ""

	if article.RelevanceScore == nil || len(article.TitleEmbedding) == 0 {
		return
	}

	var closest *database.Article
	maxSim := 0.0

	for i := range downvoted {
		d := &downvoted[i]
		if d.ID == article.ID || len(d.TitleEmbedding) == 0 {
			continue
		}
		if sim := CosineSimilarity(article.TitleEmbedding, d.TitleEmbedding); sim > maxSim {
			maxSim = sim
			closest = d
		}
	}

	if closest == nil || maxSim < s.suppressThreshold {
		return
	}

	adjusted := *article.RelevanceScore * s.decay(maxSim)
	article.AdjustedRelevanceScore = &adjusted
	article.ScoreAdjustmentReason = fmt.Sprintf(
		"%.0f%% similar to downvoted article %q", maxSim*100, closest.DisplayTitle())
}

// Explain produces a short natural-language explanation of why an article's
// score was adjusted. Articles without an adjustment get a static answer
// without a model call.
func (s *Scorer) Explain(ctx context.Context, article *database.Article) (string, error) {
	downvoted, err := s.articleRepo.GetDownvoted(time.Now().UTC().Add(-s.window))
	if err != nil {
		return "", fmt.Errorf("failed to load downvoted articles: %w", err)
	}

	single := []database.Article{*article}
	s.AdjustAgainst(single, downvoted)
	adjusted := single[0]

	if adjusted.AdjustedRelevanceScore == nil {
		return "This article's score has not been adjusted: it is not similar to anything you have downvoted recently.", nil
	}

	system := "You explain article ranking decisions in a personal news reader. Answer in one or two sentences, plainly, addressing the reader directly."
	user := fmt.Sprintf(
		"The article %q originally scored %.2f. Because it is %s, its score was lowered to %.2f. Explain this to the reader.",
		adjusted.DisplayTitle(), adjusted.Score(), adjusted.ScoreAdjustmentReason, *adjusted.AdjustedRelevanceScore)

	explanation, err := s.completer.Complete(ctx, system, user, 200)
	if err != nil {
		return "", fmt.Errorf("failed to generate explanation: %w", err)
	}

	return explanation, nil
}
