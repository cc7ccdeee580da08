package cfg

type Cfg struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Application configuration
	ConfigPath        string
	Port              string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string

	// LLM provider
	LLMEndpoint    string
	LLMAPIKey      string
	LLMModel       string
	EmbeddingModel string
	TPMLimit       int
	MaxConcurrent  int
	MaxInputTokens int

	// Curation tuning
	DedupThreshold    float64
	SuppressThreshold float64
	SelectionScore    float64
	TodayLimit        int
	CategoryLimit     int
	MaxPerFeedToday   int
	LookbackHours     int
	DedupWindowDays   int
	ArchiveDays       int
	CleanupDays       int

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
