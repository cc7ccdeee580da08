package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/paperboy/app/config"
	"github.com/lysyi3m/paperboy/app/database"
	"github.com/lysyi3m/paperboy/app/tasks"
)

func NewHandler(articleRepo database.ArticleRepository, feedRepo database.FeedRepository,
	newspaperRepo database.NewspaperRepository, scorer ScorerInterface,
	updater UpdaterInterface, scheduler tasks.TaskSchedulerInterface, curation *config.Config) *Handler {
	return &Handler{
		articleRepo:   articleRepo,
		feedRepo:      feedRepo,
		newspaperRepo: newspaperRepo,
		scorer:        scorer,
		updater:       updater,
		scheduler:     scheduler,
		curation:      curation,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if feedCount, err := h.feedRepo.GetFeedCount(); err == nil {
		health["feeds"] = feedCount
	}

	health["configured_feeds"] = len(h.curation.Feeds)
	health["categories"] = len(h.curation.Categories)

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	total, processed, duplicates, err := h.articleRepo.GetArticleStats()
	if err != nil {
		slog.Error("Database error", "operation", "get_stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"articles": gin.H{
			"total":      total,
			"processed":  processed,
			"duplicates": duplicates,
		},
		"update": h.updater.Status(),
	})
}

// ListArticles returns articles with adjusted scores computed against the
// current downvote set.
func (h *Handler) ListArticles(c *gin.Context) {
	opts := database.ListOptions{
		CategorySlug:      c.Query("category"),
		IncludeDuplicates: c.Query("include_duplicates") == "true",
		IncludeArchived:   c.Query("include_archived") == "true",
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil {
		opts.Limit = limit
	}

	articles, err := h.articleRepo.List(opts)
	if err != nil {
		slog.Error("Database error", "operation", "list_articles", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if err := h.scorer.Adjust(articles); err != nil {
		slog.Error("Score adjustment failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Score adjustment failed"})
		return
	}

	views := make([]articleView, 0, len(articles))
	for i := range articles {
		views = append(views, newArticleView(&articles[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"articles": views,
		"total":    len(views),
	})
}

func (h *Handler) GetArticle(c *gin.Context) {
	article, ok := h.loadArticle(c)
	if !ok {
		return
	}

	single := []database.Article{*article}
	if err := h.scorer.Adjust(single); err != nil {
		slog.Error("Score adjustment failed", "article_id", article.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Score adjustment failed"})
		return
	}

	c.JSON(http.StatusOK, newArticleView(&single[0]))
}

// ExplainArticle answers why an article's score was adjusted, generating the
// explanation on demand.
func (h *Handler) ExplainArticle(c *gin.Context) {
	article, ok := h.loadArticle(c)
	if !ok {
		return
	}

	explanation, err := h.scorer.Explain(c.Request.Context(), article)
	if err != nil {
		slog.Error("Explanation failed", "article_id", article.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate explanation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"article_id":  article.ID,
		"explanation": explanation,
	})
}

type voteRequest struct {
	Vote int `json:"vote"`
}

// VoteArticle records reader feedback. The vote is a downvote toggle: -1
// suppresses similar articles on subsequent reads, 0 undoes that.
func (h *Handler) VoteArticle(c *gin.Context) {
	article, ok := h.loadArticle(c)
	if !ok {
		return
	}

	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Vote != -1 && req.Vote != 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Vote must be -1 or 0"})
		return
	}

	if err := h.articleRepo.SetVote(article.ID, req.Vote); err != nil {
		slog.Error("Database error", "operation", "set_vote", "article_id", article.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"article_id": article.ID,
		"vote":       req.Vote,
	})
}

type readRequest struct {
	Read bool `json:"read"`
}

func (h *Handler) MarkArticleRead(c *gin.Context) {
	article, ok := h.loadArticle(c)
	if !ok {
		return
	}

	var req readRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.articleRepo.SetRead(article.ID, req.Read); err != nil {
		slog.Error("Database error", "operation", "set_read", "article_id", article.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"article_id": article.ID,
		"read":       req.Read,
	})
}

// GetNewspaper returns the edition for a date, with the referenced articles
// resolved and adjusted.
func (h *Handler) GetNewspaper(c *gin.Context) {
	date, err := parseDate(c.Param("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date, expected YYYY-MM-DD"})
		return
	}

	newspaper, err := h.newspaperRepo.GetByDate(date)
	if err != nil {
		slog.Error("Database error", "operation", "get_newspaper", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if newspaper == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No newspaper for this date"})
		return
	}

	today, err := h.resolveArticles(newspaper.Structure.Today)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	categories := map[string][]articleView{}
	for slug, ids := range newspaper.Structure.Categories {
		views, err := h.resolveArticles(ids)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		categories[slug] = views
	}

	c.JSON(http.StatusOK, gin.H{
		"date":       newspaper.Date.Format("2006-01-02"),
		"today":      today,
		"categories": categories,
		"updated_at": newspaper.UpdatedAt,
	})
}

var stageTaskTypes = map[string]tasks.TaskType{
	"fetch":     tasks.TaskTypeFetchFeeds,
	"process":   tasks.TaskTypeProcessArticles,
	"newspaper": tasks.TaskTypeGenerateNewspaper,
	"cleanup":   tasks.TaskTypeCleanup,
}

// TriggerUpdate enqueues a pipeline run in the background. Without a stage
// parameter the full pipeline runs and a run already in progress is reported
// as a conflict; ?stage=fetch|process|newspaper|cleanup runs a single stage.
func (h *Handler) TriggerUpdate(c *gin.Context) {
	var task tasks.TaskInterface

	if stage := c.Query("stage"); stage != "" {
		taskType, ok := stageTaskTypes[stage]
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown stage, expected fetch, process, newspaper or cleanup"})
			return
		}

		built, err := h.updater.StageTask(taskType)
		if err != nil {
			slog.Error("Failed to build stage task", "stage", stage, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build stage task"})
			return
		}
		task = built
	} else {
		if h.updater.Status().Running {
			c.JSON(http.StatusConflict, gin.H{"error": "Update already in progress"})
			return
		}
		task = tasks.NewFullUpdateTask(h.updater)
	}

	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Failed to enqueue update task", "type", string(task.GetType()), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue update"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Update enqueued",
		"task_id": task.GetID(),
		"type":    string(task.GetType()),
	})
}

func (h *Handler) GetUpdateStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.updater.Status())
}

func (h *Handler) loadArticle(c *gin.Context) (*database.Article, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid article id"})
		return nil, false
	}

	article, err := h.articleRepo.GetByID(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_article", "article_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return nil, false
	}
	if article == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Article not found"})
		return nil, false
	}

	return article, true
}

func (h *Handler) resolveArticles(ids []int64) ([]articleView, error) {
	articles := make([]database.Article, 0, len(ids))
	for _, id := range ids {
		article, err := h.articleRepo.GetByID(id)
		if err != nil {
			slog.Error("Database error", "operation", "resolve_article", "article_id", id, "error", err)
			return nil, err
		}
		if article == nil {
			continue
		}
		articles = append(articles, *article)
	}

	if err := h.scorer.Adjust(articles); err != nil {
		return nil, err
	}

	views := make([]articleView, 0, len(articles))
	for i := range articles {
		views = append(views, newArticleView(&articles[i]))
	}
	return views, nil
}

var errBadDate = errors.New("invalid date")

func parseDate(raw string) (time.Time, error) {
	if raw == "today" {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}

	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, errBadDate
	}
	return date, nil
}
