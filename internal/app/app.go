package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/OFFIS-RIT/newsgraph/internal/config"
	"github.com/OFFIS-RIT/newsgraph/internal/metrics"
	"github.com/OFFIS-RIT/newsgraph/internal/storage"
	"github.com/OFFIS-RIT/newsgraph/internal/util"
	"github.com/OFFIS-RIT/newsgraph/pkg/ai"
	oai "github.com/OFFIS-RIT/newsgraph/pkg/ai/ollama"
	gai "github.com/OFFIS-RIT/newsgraph/pkg/ai/openai"
	"github.com/OFFIS-RIT/newsgraph/pkg/graph"
	"github.com/OFFIS-RIT/newsgraph/pkg/leaselock"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"
	"github.com/OFFIS-RIT/newsgraph/pkg/news"
	"github.com/OFFIS-RIT/newsgraph/pkg/news/bing"
	"github.com/OFFIS-RIT/newsgraph/pkg/news/googlenews"
	"github.com/OFFIS-RIT/newsgraph/pkg/store"
	pgstore "github.com/OFFIS-RIT/newsgraph/pkg/store/pgx"
	redisstore "github.com/OFFIS-RIT/newsgraph/pkg/store/redis"
	"github.com/OFFIS-RIT/newsgraph/pkg/store/sqlite"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ollamaPlaceholderKey lets requests through the credential check when a
// local Ollama server needs no key.
const ollamaPlaceholderKey = "ollama"

// App bundles everything the binaries share.
type App struct {
	Config  config.Config
	Cache   store.GraphCache
	Graphs  *graph.GraphClient
	Metrics *metrics.Metrics
	Archive *storage.FailureArchive

	pool *pgxpool.Pool
}

// New opens the configured cache, runs its schema setup and builds the graph
// client with every optional collaborator the configuration enables.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{Config: cfg, Metrics: metrics.New()}

	if cfg.DatabaseURL != "" && (cfg.CacheBackend == config.BackendPostgres || cfg.LeaseLock) {
		pool, err := OpenPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.pool = pool
	}

	cache, err := OpenCache(cfg, a.pool)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Cache = cache

	if err := a.Cache.Init(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	var locker graph.KeyLocker
	if cfg.LeaseLock {
		if cfg.CacheBackend != config.BackendPostgres {
			// app_locks comes with the postgres migrations.
			if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
				a.Close()
				return nil, fmt.Errorf("failed to migrate lock table: %w", err)
			}
		}
		locker = leaselock.NewKeyLocker(leaselock.New(a.pool), leaselock.Options{
			TTL:        cfg.ExtractTimeout + time.Minute,
			WaitJitter: 100 * time.Millisecond,
		})
	}

	var archive graph.FailureArchive
	if cfg.ArchiveFailures {
		client, err := storage.NewS3Client(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Archive = storage.NewFailureArchive(client, cfg.AWSBucket)
		archive = a.Archive
	}

	fallbackKey := cfg.AIKey
	if fallbackKey == "" && cfg.AIAdapter == config.AdapterOllama {
		fallbackKey = ollamaPlaceholderKey
	}

	graphs, err := graph.NewGraphClient(graph.NewGraphClientParams{
		Cache:            a.Cache,
		Articles:         NewAggregator(cfg),
		NewAIClient:      NewClientFactory(cfg),
		FallbackAPIKey:   fallbackKey,
		ExtractTimeout:   cfg.ExtractTimeout,
		StructuredOutput: cfg.StructuredOutput,
		RepairJSON:       cfg.RepairJSON,
		Locker:           locker,
		Archive:          archive,
		Metrics:          a.Metrics,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Graphs = graphs

	logger.Info("[App] Initialized", "cache", cfg.CacheBackend, "adapter", cfg.AIAdapter, "sources", cfg.NewsSources, "lease_lock", cfg.LeaseLock, "archive", cfg.ArchiveFailures)
	return a, nil
}

// Close releases the cache and the database pool.
func (a *App) Close() {
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			logger.Warn("[App] Failed to close cache", "err", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// OpenPool connects to Postgres, retrying while the database comes up.
func OpenPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := util.RetryWithContext(ctx, 5, 2*time.Second, func(ctx context.Context) (*pgxpool.Pool, error) {
		pool, err := pgxpool.New(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			logger.Warn("[App] Database not reachable yet", "err", err)
			return nil, err
		}
		return pool, nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return pool, nil
}

// OpenCache builds the configured cache backend. pool is required for the
// postgres backend.
func OpenCache(cfg config.Config, pool *pgxpool.Pool) (store.GraphCache, error) {
	switch cfg.CacheBackend {
	case config.BackendPostgres:
		if pool == nil {
			return nil, errors.New("postgres cache needs a database pool")
		}
		return pgstore.NewGraphCache(pgstore.NewGraphCacheParams{
			Pool:        pool,
			DatabaseURL: cfg.DatabaseURL,
		}), nil
	case config.BackendRedis:
		return redisstore.NewGraphCache(redisstore.NewGraphCacheParams{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}), nil
	case config.BackendSQLite:
		cache, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite cache: %w", err)
		}
		return cache, nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
}

// NewSources returns the configured news sources in configuration order,
// which is also the interleaving order.
func NewSources(cfg config.Config) []news.Source {
	fetcher := news.NewFeedFetcher(&http.Client{Timeout: cfg.SourceTimeout})

	sources := make([]news.Source, 0, len(cfg.NewsSources))
	for _, name := range cfg.NewsSources {
		switch name {
		case config.SourceGoogleNews:
			sources = append(sources, googlenews.NewGoogleNewsSource(googlenews.NewGoogleNewsSourceParams{Fetcher: fetcher}))
		case config.SourceBing:
			sources = append(sources, bing.NewBingNewsSource(bing.NewBingNewsSourceParams{Fetcher: fetcher}))
		default:
			logger.Warn("[App] Ignoring unknown news source", "source", name)
		}
	}
	return sources
}

func NewAggregator(cfg config.Config) *news.Aggregator {
	return news.NewAggregator(news.NewAggregatorParams{
		Sources:         NewSources(cfg),
		SourceTimeout:   cfg.SourceTimeout,
		NormalizeTitles: cfg.NormalizeTitles,
	})
}

// NewClientFactory returns the per-request extraction client constructor for
// the configured adapter. A request baseURL overrides AI_CHAT_URL.
//
// The Ollama client for the configured key and endpoint is shared so its
// concurrency limit applies across requests. Request overrides get a client
// of their own that is dropped after use.
func NewClientFactory(cfg config.Config) graph.ClientFactory {
	switch cfg.AIAdapter {
	case config.AdapterOllama:
		newClient := func(apiKey, baseURL string) (*oai.GraphOllamaClient, error) {
			return oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
				Model:                 cfg.AIModel,
				BaseURL:               baseURL,
				APIKey:                apiKey,
				MaxConcurrentRequests: cfg.AIParallelReq,
			})
		}
		var (
			mu     sync.Mutex
			shared *oai.GraphOllamaClient
		)
		return func(apiKey string, baseURL string) (ai.GraphAIClient, error) {
			if baseURL == "" {
				baseURL = cfg.AIBaseURL
			}
			if apiKey == ollamaPlaceholderKey {
				apiKey = ""
			}
			if apiKey != cfg.AIKey || baseURL != cfg.AIBaseURL {
				return newClient(apiKey, baseURL)
			}

			mu.Lock()
			defer mu.Unlock()
			if shared == nil {
				c, err := newClient(apiKey, baseURL)
				if err != nil {
					return nil, err
				}
				shared = c
			}
			return shared, nil
		}
	default:
		return func(apiKey string, baseURL string) (ai.GraphAIClient, error) {
			if baseURL == "" {
				baseURL = cfg.AIBaseURL
			}
			return gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
				Model:   cfg.AIModel,
				BaseURL: baseURL,
				APIKey:  apiKey,
			}), nil
		}
	}
}
