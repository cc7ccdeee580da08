package fetch

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/lysyi3m/paperboy/app/database"
)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run parses raw feed bytes into storable articles. Items without a link are
// skipped, they cannot participate in link-based deduplication.
func (p *Parser) Run(data []byte) ([]database.NewArticle, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	articles := make([]database.NewArticle, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil || strings.TrimSpace(item.Link) == "" {
			continue
		}
		articles = append(articles, p.normalizeItem(item))
	}

	return articles, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) database.NewArticle {
	article := database.NewArticle{
		Title:       strings.TrimSpace(item.Title),
		Link:        strings.TrimSpace(item.Link),
		Description: item.Description,
		Content:     cmp.Or(item.Content, item.Description),
		Author:      p.extractAuthor(item),
	}

	if item.PublishedParsed != nil {
		published := item.PublishedParsed.UTC()
		article.PublishedDate = &published
	} else if item.UpdatedParsed != nil {
		updated := item.UpdatedParsed.UTC()
		article.PublishedDate = &updated
	}

	article.ImageURLs = p.extractImageURLs(item)

	return article
}

func (p *Parser) extractAuthor(item *gofeed.Item) string {
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		if name := strings.TrimSpace(item.Authors[0].Name); name != "" {
			return name
		}
		return strings.TrimSpace(item.Authors[0].Email)
	}
	if item.Author != nil {
		if name := strings.TrimSpace(item.Author.Name); name != "" {
			return name
		}
		return strings.TrimSpace(item.Author.Email)
	}
	return ""
}

// extractImageURLs collects item images in display order: the item image,
// image enclosures, then inline images from the content markup.
func (p *Parser) extractImageURLs(item *gofeed.Item) []string {
	var urls []string
	seen := map[string]bool{}

	add := func(url string) {
		url = strings.TrimSpace(url)
		if url == "" || seen[url] {
			return
		}
		seen[url] = true
		urls = append(urls, url)
	}

	if item.Image != nil {
		add(item.Image.URL)
	}

	for _, enclosure := range item.Enclosures {
		if enclosure != nil && strings.HasPrefix(enclosure.Type, "image/") {
			add(enclosure.URL)
		}
	}

	content := cmp.Or(item.Content, item.Description)
	if content != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(content)); err == nil {
			doc.Find("img[src]").Each(func(_ int, sel *goquery.Selection) {
				if src, ok := sel.Attr("src"); ok {
					add(src)
				}
			})
		}
	}

	return urls
}
