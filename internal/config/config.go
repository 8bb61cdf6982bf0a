package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/newsgraph/internal/util"
)

const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"

	AdapterOpenAI = "openai"
	AdapterOllama = "ollama"

	SourceGoogleNews = "googlenews"
	SourceBing       = "bing"
)

// Config holds every setting the binaries read from the environment. It is
// loaded once at startup and passed down explicitly.
type Config struct {
	Port        string
	MetricsPort string
	Debug       bool
	LogFormat   string

	CacheBackend  string
	DatabaseURL   string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LeaseLock     bool

	AIAdapter        string
	AIBaseURL        string
	AIKey            string
	AIModel          string
	AIParallelReq    int64
	ExtractTimeout   time.Duration
	StructuredOutput bool
	RepairJSON       bool

	NewsSources     []string
	SourceTimeout   time.Duration
	NormalizeTitles bool

	QueueEnabled     bool
	RabbitMQUser     string
	RabbitMQPassword string
	RabbitMQHost     string
	RabbitMQPort     string
	QueueMaxRetries  int

	RefreshCron   string
	RefreshTopics []string
	RefreshDepth  int
	RefreshLang   string

	ArchiveFailures bool
	AWSRegion       string
	AWSEndpoint     string
	AWSAccessKey    string
	AWSSecretKey    string
	AWSBucket       string
}

// Load reads the configuration from the environment. Call util.LoadEnv first
// to pick up a .env file.
func Load() (Config, error) {
	key := util.GetEnv("AI_CHAT_KEY")
	if key == "" {
		key = util.GetEnv("GEMINI_API_KEY")
	}

	cfg := Config{
		Port:        util.GetEnvString("PORT", "8080"),
		MetricsPort: util.GetEnv("METRICS_PORT"),
		Debug:       util.GetEnvBool("DEBUG", false),
		LogFormat:   util.GetEnvString("LOG_FORMAT", "text"),

		CacheBackend:  strings.ToLower(util.GetEnvString("CACHE_BACKEND", BackendSQLite)),
		DatabaseURL:   util.GetEnv("DATABASE_URL"),
		SQLitePath:    util.GetEnvString("SQLITE_PATH", "data/newsgraph.db"),
		RedisAddr:     util.GetEnvString("REDIS_ADDR", "localhost:6379"),
		RedisPassword: util.GetEnv("REDIS_PASSWORD"),
		RedisDB:       util.GetEnvInt("REDIS_DB", 0),
		LeaseLock:     util.GetEnvBool("LEASE_LOCK", false),

		AIAdapter:        strings.ToLower(util.GetEnvString("AI_ADAPTER", AdapterOpenAI)),
		AIBaseURL:        util.GetEnv("AI_CHAT_URL"),
		AIKey:            key,
		AIModel:          util.GetEnv("AI_CHAT_EXTRACT_MODEL"),
		AIParallelReq:    int64(util.GetEnvInt("AI_PARALLEL_REQ", 2)),
		ExtractTimeout:   util.GetEnvDuration("EXTRACT_TIMEOUT", 120*time.Second),
		StructuredOutput: util.GetEnvBool("EXTRACT_STRUCTURED_OUTPUT", false),
		RepairJSON:       util.GetEnvBool("EXTRACT_REPAIR_JSON", false),

		NewsSources:     util.GetEnvList("NEWS_SOURCES", []string{SourceGoogleNews}),
		SourceTimeout:   util.GetEnvDuration("NEWS_SOURCE_TIMEOUT", 10*time.Second),
		NormalizeTitles: util.GetEnvBool("NEWS_NORMALIZE_TITLES", false),

		QueueEnabled:     util.GetEnvBool("QUEUE_ENABLED", false),
		RabbitMQUser:     util.GetEnvString("RABBITMQ_USER", "guest"),
		RabbitMQPassword: util.GetEnvString("RABBITMQ_PASSWORD", "guest"),
		RabbitMQHost:     util.GetEnvString("RABBITMQ_HOST", "localhost"),
		RabbitMQPort:     util.GetEnvString("RABBITMQ_PORT", "5672"),
		QueueMaxRetries:  util.GetEnvInt("QUEUE_MAX_RETRIES", 5),

		RefreshCron:   util.GetEnv("REFRESH_CRON"),
		RefreshTopics: util.GetEnvList("REFRESH_TOPICS", nil),
		RefreshDepth:  util.GetEnvInt("REFRESH_DEPTH", 3),
		RefreshLang:   util.GetEnvString("REFRESH_LANG", "en"),

		ArchiveFailures: util.GetEnvBool("ARCHIVE_FAILURES", false),
		AWSRegion:       util.GetEnv("AWS_REGION"),
		AWSEndpoint:     util.GetEnv("AWS_ENDPOINT"),
		AWSAccessKey:    util.GetEnv("AWS_ACCESS_KEY"),
		AWSSecretKey:    util.GetEnv("AWS_SECRET_KEY"),
		AWSBucket:       util.GetEnv("AWS_BUCKET"),
	}

	for i, s := range cfg.NewsSources {
		cfg.NewsSources[i] = strings.ToLower(s)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	switch c.CacheBackend {
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.CacheBackend)
	}

	if c.LeaseLock && c.DatabaseURL == "" {
		return fmt.Errorf("LEASE_LOCK needs DATABASE_URL")
	}

	switch c.AIAdapter {
	case AdapterOpenAI, AdapterOllama:
	default:
		return fmt.Errorf("unknown AI_ADAPTER %q", c.AIAdapter)
	}

	if len(c.NewsSources) == 0 {
		return fmt.Errorf("NEWS_SOURCES must name at least one source")
	}
	for _, s := range c.NewsSources {
		if s != SourceGoogleNews && s != SourceBing {
			return fmt.Errorf("unknown news source %q", s)
		}
	}

	if c.ArchiveFailures && c.AWSBucket == "" {
		return fmt.Errorf("ARCHIVE_FAILURES needs AWS_BUCKET")
	}
	if c.RefreshCron != "" && c.RefreshDepth < 1 {
		return fmt.Errorf("REFRESH_DEPTH must be positive, got %d", c.RefreshDepth)
	}
	return nil
}

// RabbitMQURL renders the AMQP connection string.
func (c Config) RabbitMQURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.RabbitMQUser, c.RabbitMQPassword, c.RabbitMQHost, c.RabbitMQPort)
}
