package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBHost     string `long:"db-host" env:"DB_HOST" default:"localhost" description:"Database host"`
	DBPort     string `long:"db-port" env:"DB_PORT" default:"5432" description:"Database port"`
	DBUser     string `long:"db-user" env:"DB_USER" default:"paperboy" description:"Database user"`
	DBPassword string `long:"db-password" env:"DB_PASSWORD" default:"paperboy" description:"Database password (required)" required:"true"`
	DBName     string `long:"db-name" env:"DB_NAME" default:"paperboy" description:"Database name"`

	// Application configuration
	ConfigPath        string `long:"config" env:"CONFIG_PATH" default:"./curation.yml" description:"Path to the curation configuration file (interest prompt, categories, feeds)"`
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"3" description:"Number of background workers for pipeline tasks"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"60" description:"Full update interval in minutes"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for mutating endpoints (optional)"`

	// LLM provider (OpenAI-compatible)
	LLMEndpoint    string `long:"llm-endpoint" env:"LLM_ENDPOINT" default:"https://api.openai.com/v1" description:"Base URL of the OpenAI-compatible API"`
	LLMAPIKey      string `long:"llm-api-key" env:"LLM_API_KEY" description:"API key for the LLM provider (required)" required:"true"`
	LLMModel       string `long:"llm-model" env:"LLM_MODEL" default:"gpt-4-turbo-preview" description:"Chat model used for article enrichment"`
	EmbeddingModel string `long:"embedding-model" env:"EMBEDDING_MODEL" default:"text-embedding-3-small" description:"Embedding model used for duplicate detection"`
	TPMLimit       int    `long:"llm-tpm-limit" env:"LLM_TPM_LIMIT" default:"30000" description:"Tokens-per-minute budget for the LLM provider"`
	MaxConcurrent  int    `long:"llm-max-concurrent" env:"LLM_MAX_CONCURRENT" default:"5" description:"Maximum concurrent in-flight LLM calls"`
	MaxInputTokens int    `long:"llm-max-input-tokens" env:"LLM_MAX_INPUT_TOKENS" default:"4000" description:"Input token budget per enrichment request"`

	// Curation tuning
	DedupThreshold    float64 `long:"dedup-threshold" env:"DEDUP_THRESHOLD" default:"0.85" description:"Cosine similarity above which two articles are duplicates"`
	SuppressThreshold float64 `long:"suppress-threshold" env:"SUPPRESS_THRESHOLD" default:"0.80" description:"Similarity to downvoted content above which scores are suppressed"`
	SelectionScore    float64 `long:"selection-score" env:"SELECTION_SCORE" default:"0.6" description:"Minimum adjusted relevance score for newspaper selection"`
	TodayLimit        int     `long:"today-limit" env:"TODAY_LIMIT" default:"20" description:"Maximum articles in the Today section"`
	CategoryLimit     int     `long:"category-limit" env:"CATEGORY_LIMIT" default:"15" description:"Maximum articles per category section"`
	MaxPerFeedToday   int     `long:"max-per-feed-today" env:"MAX_PER_FEED_TODAY" default:"5" description:"Maximum Today articles from a single feed"`
	LookbackHours     int     `long:"lookback-hours" env:"LOOKBACK_HOURS" default:"24" description:"Only enrich articles fetched within this window"`
	DedupWindowDays   int     `long:"dedup-window-days" env:"DEDUP_WINDOW_DAYS" default:"3" description:"Candidate window for duplicate detection"`
	ArchiveDays       int     `long:"archive-days" env:"ARCHIVE_DAYS" default:"7" description:"Archive articles older than this many days"`
	CleanupDays       int     `long:"cleanup-days" env:"CLEANUP_DAYS" default:"8" description:"Delete articles older than this many days"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Paperboy/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBHost:            raw.DBHost,
		DBPort:            raw.DBPort,
		DBUser:            raw.DBUser,
		DBPassword:        raw.DBPassword,
		DBName:            raw.DBName,
		ConfigPath:        raw.ConfigPath,
		Port:              raw.Port,
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: raw.SchedulerInterval,
		APIAccessKey:      raw.APIAccessKey,
		LLMEndpoint:       raw.LLMEndpoint,
		LLMAPIKey:         raw.LLMAPIKey,
		LLMModel:          raw.LLMModel,
		EmbeddingModel:    raw.EmbeddingModel,
		TPMLimit:          raw.TPMLimit,
		MaxConcurrent:     raw.MaxConcurrent,
		MaxInputTokens:    raw.MaxInputTokens,
		DedupThreshold:    raw.DedupThreshold,
		SuppressThreshold: raw.SuppressThreshold,
		SelectionScore:    raw.SelectionScore,
		TodayLimit:        raw.TodayLimit,
		CategoryLimit:     raw.CategoryLimit,
		MaxPerFeedToday:   raw.MaxPerFeedToday,
		LookbackHours:     raw.LookbackHours,
		DedupWindowDays:   raw.DedupWindowDays,
		ArchiveDays:       raw.ArchiveDays,
		CleanupDays:       raw.CleanupDays,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func validate(cfg *Cfg) error {
	if cfg.TPMLimit <= 0 {
		return fmt.Errorf("llm-tpm-limit must be positive, got %d", cfg.TPMLimit)
	}
	if cfg.MaxConcurrent <= 0 {
		return fmt.Errorf("llm-max-concurrent must be positive, got %d", cfg.MaxConcurrent)
	}
	if cfg.DedupThreshold <= 0 || cfg.DedupThreshold > 1 {
		return fmt.Errorf("dedup-threshold must be in (0, 1], got %g", cfg.DedupThreshold)
	}
	if cfg.SuppressThreshold <= 0 || cfg.SuppressThreshold > 1 {
		return fmt.Errorf("suppress-threshold must be in (0, 1], got %g", cfg.SuppressThreshold)
	}
	if cfg.CleanupDays < cfg.ArchiveDays {
		return fmt.Errorf("cleanup-days (%d) must not be smaller than archive-days (%d)", cfg.CleanupDays, cfg.ArchiveDays)
	}
	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
