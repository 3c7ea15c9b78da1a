package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Checkpoint backends
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// LLM providers
const (
	ProviderAnthropic = "anthropic"
	ProviderLorem     = "lorem"
	ProviderNone      = "none"
)

// Planners
const (
	PlannerRules = "rules"
	PlannerLLM   = "llm"
)

type Config struct {
	Port        string
	Environment string
	CORSOrigins string
	TablePrefix string
	JWKSURL     string // Empty disables JWT auth (dev user)

	// Checkpoint storage
	CheckpointBackend string
	DatabaseURL       string
	SQLitePath        string

	// LLM Configuration
	LLMProvider     string
	AnthropicAPIKey string
	DefaultModel    string
	Planner         string

	// Orchestration
	CompactionThreshold       int
	CompactionKeepMessages    int
	MaxPlanSteps              int
	MaxClarificationQuestions int
	ClarificationMode         string // "batch" or "wizard"
	VerifyCustomer            bool
	PolishAnswers             bool
	WorkerTimeout             time.Duration
	WorkerMaxRetries          int

	// Retrieval
	RetrievalTopK     int
	RetrievalFunction string

	// Logging
	LogDir      string
	LogMaxFiles int

	// Debug flags
	Debug bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: env,
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000"),
		TablePrefix: getTablePrefix(env),
		JWKSURL:     getEnv("JWKS_URL", ""),

		CheckpointBackend: getEnv("CHECKPOINT_BACKEND", defaultBackend()),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		SQLitePath:        getEnv("SQLITE_PATH", "data/labmate.db"),

		LLMProvider:     getEnv("LLM_PROVIDER", defaultProvider()),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		DefaultModel:    getEnv("DEFAULT_MODEL", "claude-haiku-4-5-20251001"),
		Planner:         getEnv("PLANNER", PlannerRules),

		CompactionThreshold:       getEnvInt("COMPACTION_THRESHOLD", DefaultCompactionThreshold),
		CompactionKeepMessages:    getEnvInt("COMPACTION_KEEP_MESSAGES", DefaultCompactionKeepMessages),
		MaxPlanSteps:              getEnvInt("MAX_PLAN_STEPS", DefaultMaxPlanSteps),
		MaxClarificationQuestions: getEnvInt("MAX_CLARIFICATION_QUESTIONS", DefaultMaxClarificationQuestions),
		ClarificationMode:         getEnv("CLARIFICATION_MODE", "batch"),
		VerifyCustomer:            getEnv("VERIFY_CUSTOMER", "false") == "true",
		PolishAnswers:             getEnv("POLISH_ANSWERS", "false") == "true",
		WorkerTimeout:             getEnvDuration("WORKER_TIMEOUT", DefaultWorkerTimeout),
		WorkerMaxRetries:          getEnvInt("WORKER_MAX_RETRIES", 0),

		RetrievalTopK:     getEnvInt("RETRIEVAL_TOP_K", DefaultRetrievalTopK),
		RetrievalFunction: getEnv("RETRIEVAL_FUNCTION", "match_documents"),

		LogDir:      getEnv("LOG_DIR", ""),
		LogMaxFiles: getEnvInt("LOG_MAX_FILES", 10),

		// Debug flags - default to true in dev/test, false in production
		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// Validate checks value ranges and enumerations after Load.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.CheckpointBackend, validation.Required,
			validation.In(BackendPostgres, BackendSQLite, BackendMemory)),
		validation.Field(&c.DatabaseURL,
			validation.When(c.CheckpointBackend == BackendPostgres, validation.Required)),
		validation.Field(&c.SQLitePath,
			validation.When(c.CheckpointBackend == BackendSQLite, validation.Required)),
		validation.Field(&c.LLMProvider, validation.Required,
			validation.In(ProviderAnthropic, ProviderLorem, ProviderNone)),
		validation.Field(&c.AnthropicAPIKey,
			validation.When(c.LLMProvider == ProviderAnthropic, validation.Required)),
		validation.Field(&c.Planner, validation.Required, validation.In(PlannerRules, PlannerLLM)),
		validation.Field(&c.CompactionThreshold, validation.Min(1)),
		validation.Field(&c.CompactionKeepMessages, validation.Min(0)),
		validation.Field(&c.MaxPlanSteps, validation.Min(1), validation.Max(MaxPlanStepsLimit)),
		validation.Field(&c.MaxClarificationQuestions, validation.Min(1), validation.Max(MaxClarificationQuestionsLimit)),
		validation.Field(&c.ClarificationMode, validation.In("batch", "wizard")),
		validation.Field(&c.WorkerTimeout, validation.Min(time.Second)),
		validation.Field(&c.WorkerMaxRetries, validation.Min(0), validation.Max(MaxWorkerRetries)),
		validation.Field(&c.RetrievalTopK, validation.Min(1), validation.Max(MaxRetrievalTopK)),
	)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsProduction reports whether the service runs in the prod environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "prod"
}

// defaultBackend picks postgres when a database URL is configured.
func defaultBackend() string {
	if os.Getenv("DATABASE_URL") != "" {
		return BackendPostgres
	}
	return BackendSQLite
}

// defaultProvider picks anthropic when an API key is configured.
func defaultProvider() string {
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		return ProviderAnthropic
	}
	return ProviderNone
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true" // Enable DEBUG in dev/test by default
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %s=%q is not an integer, using %d\n", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %s=%q is not a duration, using %s\n", key, value, defaultValue)
		return defaultValue
	}
	return d
}
