package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/paperboy/app/cfg"
	"github.com/lysyi3m/paperboy/app/config"
	"github.com/lysyi3m/paperboy/app/database"
)

const fetchConcurrency = 4

// Fetcher pulls all configured feeds and stores the new items. Already-seen
// links are skipped by the storage layer.
type Fetcher struct {
	articleRepo database.ArticleRepository
	feedRepo    database.FeedRepository
	parser      *Parser
	extractor   *ContentExtractor
	httpClient  *http.Client
	userAgent   string
}

func NewFetcher(articleRepo database.ArticleRepository, feedRepo database.FeedRepository) *Fetcher {
	c := cfg.Get()

	return &Fetcher{
		articleRepo: articleRepo,
		feedRepo:    feedRepo,
		parser:      NewParser(),
		extractor:   NewContentExtractor(),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		userAgent: c.UserAgent,
	}
}

// Run fetches every feed concurrently and returns the number of newly
// stored articles. A failing feed is logged and skipped, it does not abort
// the remaining feeds.
func (f *Fetcher) Run(ctx context.Context, feeds []config.Feed) (int, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)

	counts := make([]int, len(feeds))

	for i, feed := range feeds {
		g.Go(func() error {
			added, err := f.fetchFeed(ctx, feed)
			if err != nil {
				slog.Error("Feed fetch failed", "feed", feed.Name, "error", err)
				return nil
			}
			counts[i] = added
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := 0
	for _, c := range counts {
		total += c
	}

	slog.Info("Feed fetch completed", "feeds", len(feeds), "new_articles", total)
	return total, nil
}

func (f *Fetcher) fetchFeed(ctx context.Context, feed config.Feed) (int, error) {
	feedID, err := f.feedRepo.UpsertFeed(feed.URL, feed.Name)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert feed: %w", err)
	}

	data, err := f.download(ctx, feed.URL)
	if err != nil {
		return 0, err
	}

	articles, err := f.parser.Run(data)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, article := range articles {
		if feed.ExtractContent {
			f.enrichContent(ctx, &article)
		}

		inserted, err := f.articleRepo.InsertArticle(feedID, article)
		if err != nil {
			slog.Error("Failed to store article", "feed", feed.Name, "link", article.Link, "error", err)
			continue
		}
		if inserted {
			added++
		}
	}

	if err := f.feedRepo.SetLastFetched(feedID, time.Now().UTC()); err != nil {
		slog.Error("Failed to update feed timestamp", "feed", feed.Name, "error", err)
	}

	slog.Debug("Feed fetched", "feed", feed.Name, "items", len(articles), "new", added)
	return added, nil
}

// enrichContent replaces a teaser body with the readable content of the
// linked page. Extraction failures keep the teaser.
func (f *Fetcher) enrichContent(ctx context.Context, article *database.NewArticle) {
	page, err := f.download(ctx, article.Link)
	if err != nil {
		slog.Debug("Content page download failed", "link", article.Link, "error", err)
		return
	}

	content, err := f.extractor.Run(page)
	if err != nil {
		slog.Debug("Content extraction failed", "link", article.Link, "error", err)
		return
	}

	article.Content = content
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return data, nil
}
