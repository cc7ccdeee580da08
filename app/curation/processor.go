package curation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/paperboy/app/cfg"
	"github.com/lysyi3m/paperboy/app/config"
	"github.com/lysyi3m/paperboy/app/database"
	"github.com/lysyi3m/paperboy/app/llm"
	"github.com/lysyi3m/paperboy/app/ratelimit"
	"github.com/lysyi3m/paperboy/app/retry"
)

const batchLimit = 50

// LLMClient is the subset of the provider client the processor needs.
type LLMClient interface {
	Analyze(ctx context.Context, req llm.AnalysisRequest) (*llm.Analysis, *llm.Usage, error)
	Embed(ctx context.Context, text string) ([]float64, *llm.Usage, error)
}

// ProcessResult summarizes one enrichment batch.
type ProcessResult struct {
	Processed int // enriched and saved
	Failed    int // recorded as failed (malformed reply or exhausted retries)
	Aborted   int // left unprocessed after a fatal provider error
}

// Processor runs LLM enrichment over unprocessed articles: analysis, category
// assignment, relevance scoring and the title embedding, saved atomically per
// article.
type Processor struct {
	articleRepo database.ArticleRepository
	client      LLMClient
	limiter     *ratelimit.Limiter
	curation    *config.Config

	lookback       time.Duration
	maxInputTokens int
	retryConfig    retry.Config
}

func NewProcessor(articleRepo database.ArticleRepository, client LLMClient, limiter *ratelimit.Limiter, curation *config.Config) *Processor {
	c := cfg.Get()

	return &Processor{
		articleRepo:    articleRepo,
		client:         client,
		limiter:        limiter,
		curation:       curation,
		lookback:       time.Duration(c.LookbackHours) * time.Hour,
		maxInputTokens: c.MaxInputTokens,
		retryConfig:    retry.Config{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true},
	}
}

// Run enriches the current batch of unprocessed articles. A fatal provider
// error (bad credentials, exhausted quota) aborts the remaining batch, the
// untouched articles stay eligible for the next run.
func (p *Processor) Run(ctx context.Context) (ProcessResult, error) {
	since := time.Now().UTC().Add(-p.lookback)

	articles, err := p.articleRepo.GetUnprocessed(since, batchLimit)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("failed to load unprocessed articles: %w", err)
	}
	if len(articles) == 0 {
		return ProcessResult{}, nil
	}

	slog.Info("Processing batch started", "articles", len(articles))

	var mu sync.Mutex
	var result ProcessResult
	var fatalErr error

	g, gctx := errgroup.WithContext(ctx)

	for i := range articles {
		article := articles[i]
		g.Go(func() error {
			err := p.processArticle(gctx, &article)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				result.Processed++
			case llm.IsFatal(err):
				result.Aborted++
				if fatalErr == nil {
					fatalErr = err
				}
				return err // cancels gctx, aborting the rest of the batch
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				result.Aborted++
			default:
				result.Failed++
			}
			return nil
		})
	}

	g.Wait()

	slog.Info("Processing batch finished",
		"processed", result.Processed,
		"failed", result.Failed,
		"aborted", result.Aborted)

	if fatalErr != nil {
		return result, fmt.Errorf("batch aborted: %w", fatalErr)
	}
	return result, nil
}

func (p *Processor) processArticle(ctx context.Context, article *database.Article) error {
	req := p.buildRequest(article)
	estimated := llm.EstimateRequestTokens(req) + llm.EstimateTokens(article.Title)

	permit, err := p.limiter.Acquire(ctx, estimated)
	if err != nil {
		return err
	}

	actual := 0
	defer func() { permit.Release(actual) }()

	var analysis *llm.Analysis
	err = retry.Do(ctx, p.retryConfig, func() error {
		result, usage, callErr := p.client.Analyze(ctx, req)
		if usage != nil {
			actual += usage.TotalTokens
		}
		if callErr != nil {
			return classify(callErr)
		}
		analysis = result
		return nil
	})
	if err != nil {
		return p.recordFailure(article, err)
	}

	var embedding []float64
	err = retry.Do(ctx, p.retryConfig, func() error {
		vector, usage, callErr := p.client.Embed(ctx, article.Title)
		if usage != nil {
			actual += usage.TotalTokens
		}
		if callErr != nil {
			return classify(callErr)
		}
		embedding = vector
		return nil
	})
	if err != nil {
		return p.recordFailure(article, err)
	}

	enrichment := database.Enrichment{
		Title:              analysis.Title,
		Subtitle:           analysis.Subtitle,
		Summary:            analysis.Summary,
		CategorySuggestion: analysis.CategorySlug,
		CategorySlug:       p.resolveCategory(analysis.CategorySlug),
		RelevanceScore:     analysis.RelevanceScore,
		TitleEmbedding:     embedding,
	}

	if err := p.articleRepo.SaveEnrichment(article.ID, enrichment); err != nil {
		return fmt.Errorf("failed to save enrichment: %w", err)
	}

	slog.Debug("Article enriched",
		"article_id", article.ID,
		"category", enrichment.CategorySlug,
		"relevance", enrichment.RelevanceScore)

	return nil
}

// recordFailure marks the article processed with no score so it is not
// retried forever, unless the failure is fatal or a cancellation, in which
// case the article stays eligible for the next batch.
func (p *Processor) recordFailure(article *database.Article, err error) error {
	if llm.IsFatal(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	slog.Warn("Article enrichment failed", "article_id", article.ID, "error", err)

	if markErr := p.articleRepo.MarkEnrichmentFailed(article.ID); markErr != nil {
		return fmt.Errorf("failed to record enrichment failure: %w", markErr)
	}
	return err
}

func (p *Processor) buildRequest(article *database.Article) llm.AnalysisRequest {
	content := llm.StripImages(article.Content)
	content = llm.TruncateToTokens(content, p.maxInputTokens)

	categories := make([]llm.CategoryOption, 0, len(p.curation.Categories))
	for _, c := range p.curation.Categories {
		categories = append(categories, llm.CategoryOption{
			Name:        c.Name,
			Slug:        c.Slug,
			Description: c.Description,
		})
	}

	return llm.AnalysisRequest{
		Title:          article.Title,
		Author:         article.Author,
		Content:        content,
		InterestPrompt: p.curation.InterestPrompt,
		Categories:     categories,
	}
}

// resolveCategory accepts the model's suggestion only when it names a
// configured category. Anything else leaves the article uncategorized.
func (p *Processor) resolveCategory(slug string) string {
	if slug == "" {
		return ""
	}
	if p.curation.CategoryBySlug(slug) != nil {
		return slug
	}
	return ""
}

// classify maps provider errors onto the retry policy: fatal errors stop the
// batch, transient ones get retried, malformed replies fail straight away.
func classify(err error) error {
	if llm.IsFatal(err) || !llm.IsTransient(err) {
		return &retry.Permanent{Err: err}
	}
	return err
}
