package llm

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	charsPerToken    = 4
	requestOverhead  = 8   // message framing tokens
	responseReserve  = 500 // budget for the model reply
	maxSummaryTokens = 300
)

var bareImageURL = regexp.MustCompile(`https?://\S+\.(?:png|jpe?g|gif|webp|svg)(?:\?\S*)?`)

// BuildAnalysisPrompt renders the system and user messages for one
// enrichment call.
func BuildAnalysisPrompt(req AnalysisRequest) (system, user string) {
	var sb strings.Builder

	sb.WriteString("You are an editorial assistant curating articles for a personal newspaper.\n")
	sb.WriteString("Analyze the article below and reply with a single JSON object with these keys:\n")
	sb.WriteString(`  "title": a cleaned-up headline (plain text, no site name suffix)` + "\n")
	sb.WriteString(`  "subtitle": a one-sentence hook, or null` + "\n")
	sb.WriteString(fmt.Sprintf(`  "summary": a neutral summary of at most %d words`+"\n", maxSummaryTokens/2))
	sb.WriteString(`  "category": the slug of the best-matching category, or null if none fits` + "\n")
	sb.WriteString(`  "relevance_score": a number between 0.0 and 1.0 for how well the article matches the reader's interests` + "\n\n")

	sb.WriteString("Reader's interests:\n")
	sb.WriteString(req.InterestPrompt)
	sb.WriteString("\n\n")

	if len(req.Categories) > 0 {
		sb.WriteString("Available categories (answer with the slug):\n")
		for _, c := range req.Categories {
			if c.Description != "" {
				sb.WriteString(fmt.Sprintf("  %s: %s (%s)\n", c.Slug, c.Name, c.Description))
			} else {
				sb.WriteString(fmt.Sprintf("  %s: %s\n", c.Slug, c.Name))
			}
		}
	}

	var ub strings.Builder
	ub.WriteString("Title: ")
	ub.WriteString(req.Title)
	ub.WriteString("\n")
	if req.Author != "" {
		ub.WriteString("Author: ")
		ub.WriteString(req.Author)
		ub.WriteString("\n")
	}
	ub.WriteString("\n")
	ub.WriteString(req.Content)

	return sb.String(), ub.String()
}

// StripImages removes image markup and bare image URLs from article content
// so they do not waste the token budget.
func StripImages(content string) string {
	if content == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err == nil {
		doc.Find("img, picture, figure, svg").Remove()
		if html, err := doc.Find("body").Html(); err == nil {
			content = html
		}
	}

	content = bareImageURL.ReplaceAllString(content, "")
	return strings.TrimSpace(content)
}

// TruncateToTokens cuts text to roughly the given token budget using the
// 4-characters-per-token heuristic, preferring a word boundary. The cut
// never splits a multi-byte rune.
func TruncateToTokens(text string, maxTokens int) string {
	limit := maxTokens * charsPerToken
	if len(text) <= limit {
		return text
	}

	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}

	cut := text[:limit]
	if idx := strings.LastIndexByte(cut, ' '); idx > limit/2 {
		cut = cut[:idx]
	}
	return cut
}

// EstimateTokens approximates the token count of a string.
func EstimateTokens(text string) int {
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// EstimateRequestTokens approximates the total budget one analysis call will
// consume, including the reserved reply.
func EstimateRequestTokens(req AnalysisRequest) int {
	system, user := BuildAnalysisPrompt(req)
	return EstimateTokens(system) + EstimateTokens(user) + requestOverhead + responseReserve
}
