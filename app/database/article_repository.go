package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// ArticleRepo handles database operations for articles.
type ArticleRepo struct {
	db *DB
}

var _ ArticleRepository = (*ArticleRepo)(nil)

func NewArticleRepository(db *DB) *ArticleRepo {
	return &ArticleRepo{db: db}
}

const articleColumns = `
	a.id, a.feed_id, f.name, COALESCE(a.category_slug, ''),
	a.title, a.link, a.description, a.content, a.author,
	a.published_date, a.image_urls,
	a.llm_title, a.llm_subtitle, a.llm_summary, a.llm_category_suggestion,
	a.relevance_score, a.title_embedding, a.processed_at,
	a.is_duplicate, a.duplicate_of_id,
	a.user_vote, a.vote_updated_at,
	a.is_read, a.is_archived, a.created_at, a.updated_at`

func scanArticle(row interface{ Scan(...interface{}) error }) (*Article, error) {
	var a Article
	var publishedDate, processedAt, voteUpdatedAt sql.NullTime
	var imageURLs []byte
	var llmTitle, llmSubtitle, llmSummary, llmCategory, embedding sql.NullString
	var relevance sql.NullFloat64
	var duplicateOf sql.NullInt64

	err := row.Scan(
		&a.ID, &a.FeedID, &a.FeedName, &a.CategorySlug,
		&a.Title, &a.Link, &a.Description, &a.Content, &a.Author,
		&publishedDate, &imageURLs,
		&llmTitle, &llmSubtitle, &llmSummary, &llmCategory,
		&relevance, &embedding, &processedAt,
		&a.IsDuplicate, &duplicateOf,
		&a.UserVote, &voteUpdatedAt,
		&a.IsRead, &a.IsArchived, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if publishedDate.Valid {
		a.PublishedDate = &publishedDate.Time
	}
	if processedAt.Valid {
		a.ProcessedAt = &processedAt.Time
	}
	if voteUpdatedAt.Valid {
		a.VoteUpdatedAt = &voteUpdatedAt.Time
	}
	if llmTitle.Valid {
		a.LLMTitle = &llmTitle.String
	}
	if llmSubtitle.Valid {
		a.LLMSubtitle = &llmSubtitle.String
	}
	if llmSummary.Valid {
		a.LLMSummary = &llmSummary.String
	}
	if llmCategory.Valid {
		a.LLMCategorySuggestion = &llmCategory.String
	}
	if relevance.Valid {
		a.RelevanceScore = &relevance.Float64
	}
	if duplicateOf.Valid {
		a.DuplicateOfID = &duplicateOf.Int64
	}
	if len(imageURLs) > 0 {
		if err := json.Unmarshal(imageURLs, &a.ImageURLs); err != nil {
			return nil, fmt.Errorf("failed to decode image_urls: %w", err)
		}
	}
	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &a.TitleEmbedding); err != nil {
			return nil, fmt.Errorf("failed to decode title_embedding: %w", err)
		}
	}

	return &a, nil
}

func (r *ArticleRepo) queryArticles(query string, args ...interface{}) ([]Article, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article row: %w", err)
		}
		articles = append(articles, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating article rows: %w", err)
	}

	return articles, nil
}

// InsertArticle stores a fetched item. Articles are deduplicated at the
// link level: inserting an already-known link is a no-op returning false.
func (r *ArticleRepo) InsertArticle(feedID int64, article NewArticle) (bool, error) {
	imageURLs, err := json.Marshal(article.ImageURLs)
	if err != nil {
		return false, fmt.Errorf("failed to encode image_urls: %w", err)
	}
	if article.ImageURLs == nil {
		imageURLs = []byte("[]")
	}

	result, err := r.db.Exec(`
		INSERT INTO articles (feed_id, title, link, description, content, author, published_date, image_urls)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (link) DO NOTHING
	`, feedID, article.Title, article.Link, article.Description, article.Content,
		article.Author, article.PublishedDate, imageURLs)
	if err != nil {
		return false, fmt.Errorf("failed to insert article: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return inserted > 0, nil
}

func (r *ArticleRepo) GetByID(id int64) (*Article, error) {
	row := r.db.QueryRow(`
		SELECT `+articleColumns+`
		FROM articles a JOIN feeds f ON f.id = a.feed_id
		WHERE a.id = $1
	`, id)

	article, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}

	return article, nil
}

func (r *ArticleRepo) List(opts ListOptions) ([]Article, error) {
	query := `
		SELECT ` + articleColumns + `
		FROM articles a JOIN feeds f ON f.id = a.feed_id
		WHERE 1=1`
	var args []interface{}

	if !opts.IncludeArchived {
		query += ` AND a.is_archived = FALSE`
	}
	if !opts.IncludeDuplicates {
		query += ` AND a.is_duplicate = FALSE`
	}
	if opts.CategorySlug != "" {
		args = append(args, opts.CategorySlug)
		query += fmt.Sprintf(` AND a.category_slug = $%d`, len(args))
	}

	query += ` ORDER BY COALESCE(a.published_date, a.created_at) DESC, a.id`

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(` LIMIT $%d`, len(args))

	articles, err := r.queryArticles(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}

	return articles, nil
}

func (r *ArticleRepo) GetArticleStats() (total, processed, duplicates int, err error) {
	err = r.db.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE processed_at IS NOT NULL),
			COUNT(*) FILTER (WHERE is_duplicate = TRUE)
		FROM articles
	`).Scan(&total, &processed, &duplicates)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to get article stats: %w", err)
	}

	return total, processed, duplicates, nil
}

// GetUnprocessed returns articles awaiting enrichment within the lookback
// window, oldest first so a recurring run drains the backlog in order.
func (r *ArticleRepo) GetUnprocessed(since time.Time, limit int) ([]Article, error) {
	articles, err := r.queryArticles(`
		SELECT `+articleColumns+`
		FROM articles a JOIN feeds f ON f.id = a.feed_id
		WHERE a.processed_at IS NULL
		  AND a.is_archived = FALSE
		  AND a.created_at >= $1
		ORDER BY a.created_at, a.id
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get unprocessed articles: %w", err)
	}

	return articles, nil
}

// nullIfEmpty maps an absent optional string to SQL NULL.
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// SaveEnrichment persists the full enrichment result as one atomic update.
func (r *ArticleRepo) SaveEnrichment(id int64, enrichment Enrichment) error {
	var embedding interface{}
	if len(enrichment.TitleEmbedding) > 0 {
		data, err := json.Marshal(enrichment.TitleEmbedding)
		if err != nil {
			return fmt.Errorf("failed to encode title_embedding: %w", err)
		}
		embedding = string(data)
	}

	_, err := r.db.Exec(`
		UPDATE articles
		SET llm_title = $2, llm_subtitle = $3, llm_summary = $4,
		    llm_category_suggestion = $5, category_slug = $6,
		    relevance_score = $7, title_embedding = $8,
		    processed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, id, enrichment.Title, nullIfEmpty(enrichment.Subtitle), enrichment.Summary,
		nullIfEmpty(enrichment.CategorySuggestion), nullIfEmpty(enrichment.CategorySlug),
		enrichment.RelevanceScore, embedding)
	if err != nil {
		return fmt.Errorf("failed to save enrichment: %w", err)
	}

	return nil
}

// MarkEnrichmentFailed records a parse failure: raw fields stay visible,
// relevance drops to zero so the article is excluded from selection.
func (r *ArticleRepo) MarkEnrichmentFailed(id int64) error {
	_, err := r.db.Exec(`
		UPDATE articles
		SET relevance_score = 0, processed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark enrichment failed: %w", err)
	}

	return nil
}

// GetDedupCandidates returns processed articles with embeddings inside the
// candidate window, excluding the article itself. Duplicates are included
// so matches against them can be resolved to their canonical article.
func (r *ArticleRepo) GetDedupCandidates(articleID int64, since time.Time) ([]Article, error) {
	articles, err := r.queryArticles(`
		SELECT `+articleColumns+`
		FROM articles a JOIN feeds f ON f.id = a.feed_id
		WHERE a.id != $1
		  AND a.created_at >= $2
		  AND a.title_embedding IS NOT NULL
		  AND a.processed_at IS NOT NULL
		  AND a.is_archived = FALSE
		ORDER BY a.created_at, a.id
	`, articleID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get dedup candidates: %w", err)
	}

	return articles, nil
}

func (r *ArticleRepo) MarkDuplicate(id, canonicalID int64) error {
	_, err := r.db.Exec(`
		UPDATE articles
		SET is_duplicate = TRUE, duplicate_of_id = $2, updated_at = NOW()
		WHERE id = $1
	`, id, canonicalID)
	if err != nil {
		return fmt.Errorf("failed to mark duplicate: %w", err)
	}

	return nil
}

// RepointDuplicates moves every member of a cluster to a new canonical
// article, keeping duplicate links flat (no chains).
func (r *ArticleRepo) RepointDuplicates(fromCanonicalID, toCanonicalID int64) (int64, error) {
	result, err := r.db.Exec(`
		UPDATE articles
		SET duplicate_of_id = $2, updated_at = NOW()
		WHERE duplicate_of_id = $1 AND id != $2
	`, fromCanonicalID, toCanonicalID)
	if err != nil {
		return 0, fmt.Errorf("failed to repoint duplicates: %w", err)
	}

	moved, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return moved, nil
}

func (r *ArticleRepo) SetVote(id int64, vote int) error {
	_, err := r.db.Exec(`
		UPDATE articles
		SET user_vote = $2, vote_updated_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, id, vote)
	if err != nil {
		return fmt.Errorf("failed to set vote: %w", err)
	}

	return nil
}

// GetDownvoted returns currently-downvoted articles with embeddings within
// the recent window. The score adjustment engine derives suppression from
// this set on every read, so removing a downvote takes effect immediately.
func (r *ArticleRepo) GetDownvoted(since time.Time) ([]Article, error) {
	articles, err := r.queryArticles(`
		SELECT `+articleColumns+`
		FROM articles a JOIN feeds f ON f.id = a.feed_id
		WHERE a.user_vote = -1
		  AND a.title_embedding IS NOT NULL
		  AND a.created_at >= $1
		ORDER BY a.created_at, a.id
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get downvoted articles: %w", err)
	}

	return articles, nil
}

// GetPool returns the newspaper candidate pool: processed, canonical,
// non-archived articles within the window.
func (r *ArticleRepo) GetPool(since time.Time) ([]Article, error) {
	articles, err := r.queryArticles(`
		SELECT `+articleColumns+`
		FROM articles a JOIN feeds f ON f.id = a.feed_id
		WHERE a.processed_at IS NOT NULL
		  AND a.is_duplicate = FALSE
		  AND a.is_archived = FALSE
		  AND a.created_at >= $1
		ORDER BY a.created_at, a.id
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get newspaper pool: %w", err)
	}

	return articles, nil
}

func (r *ArticleRepo) SetRead(id int64, read bool) error {
	_, err := r.db.Exec(`
		UPDATE articles
		SET is_read = $2, updated_at = NOW()
		WHERE id = $1
	`, id, read)
	if err != nil {
		return fmt.Errorf("failed to set read flag: %w", err)
	}

	return nil
}

func (r *ArticleRepo) ArchiveOlderThan(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(`
		UPDATE articles
		SET is_archived = TRUE, updated_at = NOW()
		WHERE is_archived = FALSE
		  AND COALESCE(published_date, created_at) < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to archive articles: %w", err)
	}

	archived, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return archived, nil
}

func (r *ArticleRepo) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(`
		DELETE FROM articles
		WHERE COALESCE(published_date, created_at) < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old articles: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return deleted, nil
}
