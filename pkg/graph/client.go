package graph

import (
	"context"
	"errors"
	"time"

	"github.com/OFFIS-RIT/newsgraph/pkg/ai"
	"github.com/OFFIS-RIT/newsgraph/pkg/common"
	"github.com/OFFIS-RIT/newsgraph/pkg/store"

	"golang.org/x/sync/singleflight"
)

const DefaultExtractTimeout = 120 * time.Second

// ArticleSource gathers deduplicated articles for a topic. news.Aggregator
// implements it.
type ArticleSource interface {
	Combine(ctx context.Context, topic string, maxArticles int, language string, timeRange string) []common.Article
}

// ClientFactory builds an extraction client for one request. baseURL may be
// empty, in which case the implementation default is used.
type ClientFactory func(apiKey string, baseURL string) (ai.GraphAIClient, error)

// KeyLocker serializes work on a key across processes.
type KeyLocker interface {
	WithKeyLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// FailureArchive keeps model answers that could not be parsed.
type FailureArchive interface {
	ArchiveFailure(ctx context.Context, key store.CacheKey, raw string) error
}

// Metrics receives resolve events. All methods must be safe for concurrent
// use.
type Metrics interface {
	CacheHit()
	CacheMiss()
	ArticlesFetched(n int)
	Extraction(outcome string, d time.Duration)
}

// Extraction outcomes reported to Metrics.
const (
	OutcomeSuccess   = "success"
	OutcomeNoResults = "no_results"
	OutcomeError     = "error"
	OutcomeInvalid   = "invalid"
)

type nopMetrics struct{}

func (nopMetrics) CacheHit()                        {}
func (nopMetrics) CacheMiss()                       {}
func (nopMetrics) ArticlesFetched(int)              {}
func (nopMetrics) Extraction(string, time.Duration) {}

// GraphClient resolves topics to knowledge graphs, serving repeated requests
// from the cache and extracting new graphs from live news otherwise.
//
// A GraphClient should be created using NewGraphClient.
type GraphClient struct {
	cache     store.GraphCache
	articles  ArticleSource
	newClient ClientFactory

	fallbackKey      string
	extractTimeout   time.Duration
	temperature      float64
	structuredOutput bool
	repairJSON       bool

	locker  KeyLocker
	archive FailureArchive
	metrics Metrics

	flight singleflight.Group
}

// NewGraphClientParams defines the collaborators of a GraphClient.
//
// Cache, Articles and NewAIClient are required. FallbackAPIKey is used when a
// request carries no key of its own. Locker, Archive and Metrics are optional.
// StructuredOutput sends the graph JSON schema as response format, RepairJSON
// tries to repair answers that are not valid JSON before giving up.
type NewGraphClientParams struct {
	Cache       store.GraphCache
	Articles    ArticleSource
	NewAIClient ClientFactory

	FallbackAPIKey   string
	ExtractTimeout   time.Duration
	Temperature      float64
	StructuredOutput bool
	RepairJSON       bool

	Locker  KeyLocker
	Archive FailureArchive
	Metrics Metrics
}

// NewGraphClient creates and returns a new GraphClient.
//
// Example:
//
//	client, err := graph.NewGraphClient(graph.NewGraphClientParams{
//		Cache:          cache,
//		Articles:       aggregator,
//		NewAIClient:    factory,
//		FallbackAPIKey: os.Getenv("GEMINI_API_KEY"),
//	})
func NewGraphClient(params NewGraphClientParams) (*GraphClient, error) {
	if params.Cache == nil {
		return nil, errors.New("graph client needs a cache")
	}
	if params.Articles == nil {
		return nil, errors.New("graph client needs an article source")
	}
	if params.NewAIClient == nil {
		return nil, errors.New("graph client needs an ai client factory")
	}

	timeout := params.ExtractTimeout
	if timeout <= 0 {
		timeout = DefaultExtractTimeout
	}
	temperature := params.Temperature
	if temperature <= 0 {
		temperature = 0.2
	}
	var metrics Metrics = nopMetrics{}
	if params.Metrics != nil {
		metrics = params.Metrics
	}

	return &GraphClient{
		cache:            params.Cache,
		articles:         params.Articles,
		newClient:        params.NewAIClient,
		fallbackKey:      params.FallbackAPIKey,
		extractTimeout:   timeout,
		temperature:      temperature,
		structuredOutput: params.StructuredOutput,
		repairJSON:       params.RepairJSON,
		locker:           params.Locker,
		archive:          params.Archive,
		metrics:          metrics,
	}, nil
}
