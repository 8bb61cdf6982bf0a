package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/newsgraph/internal/util"
	"github.com/OFFIS-RIT/newsgraph/pkg/ai"
	"github.com/OFFIS-RIT/newsgraph/pkg/common"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"
	"github.com/OFFIS-RIT/newsgraph/pkg/store"
)

// ResolveRequest describes one graph request. Topic, Language, TimeRange and
// Depth form the cache key. APIKey and BaseURL only affect extraction and
// are never part of the key. Force skips the cache lookup and overwrites any
// stored graph.
type ResolveRequest struct {
	Topic     string
	APIKey    string
	Depth     int
	Language  string
	TimeRange string
	BaseURL   string
	Force     bool
}

// Result is a resolved graph. Raw is the exact payload stored in the cache.
type Result struct {
	Graph  *common.Graph
	Raw    string
	Cached bool
}

// ResolveGraph returns the graph for req.
//
// A cached graph is returned without contacting any news source or model.
// On a miss the articles for the topic are gathered, turned into a graph by
// the model and written to the cache before returning. Concurrent misses for
// the same key share one extraction.
//
// Without a request key the configured fallback key is used, and then only
// against the configured endpoint; req.BaseURL is ignored.
//
// Errors wrap ErrInvalidDepth, ErrNoResults, ErrMissingAPIKey,
// ErrBadExtraction or store.ErrStorage where applicable.
func (c *GraphClient) ResolveGraph(ctx context.Context, req ResolveRequest) (*Result, error) {
	if req.Depth < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDepth, req.Depth)
	}

	key := store.CacheKey{
		Topic:     req.Topic,
		Language:  req.Language,
		TimeRange: req.TimeRange,
		Depth:     req.Depth,
	}.Normalize()

	if !req.Force {
		res, err := c.lookup(ctx, key)
		if err != nil {
			return nil, err
		}
		if res != nil {
			c.metrics.CacheHit()
			logger.Info("[Graph] Cache hit", "topic", key.Topic, "depth", key.Depth, "lang", key.Language, "time_range", key.TimeRange)
			return res, nil
		}
		c.metrics.CacheMiss()
	}

	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		// The configured key is only ever sent to the configured endpoint.
		apiKey = c.fallbackKey
		if req.BaseURL != "" {
			logger.Warn("[Graph] Ignoring endpoint override without a request key", "topic", key.Topic)
			req.BaseURL = ""
		}
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	flightKey := key.String()
	if req.Force {
		flightKey += "|force"
	}
	// The extraction is shared by every waiter on the key, so it must outlive
	// the caller that started it. extractTimeout still bounds the model call.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(flightKey, func() (any, error) {
		return c.resolveMiss(flightCtx, key, req, apiKey)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		if r.Shared {
			logger.Debug("[Graph] Shared extraction result", "topic", key.Topic, "depth", key.Depth)
		}
		return r.Val.(*Result), nil
	}
}

// lookup returns nil on a miss. A stored payload that no longer decodes is
// logged and treated as a miss so the next extraction overwrites it.
func (c *GraphClient) lookup(ctx context.Context, key store.CacheKey) (*Result, error) {
	raw, found, err := c.cache.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	g, err := DecodeGraph(raw)
	if err != nil {
		logger.Warn("[Graph] Cached graph is unreadable, extracting again", "key", key.String(), "err", err)
		return nil, nil
	}
	return &Result{Graph: g, Raw: raw, Cached: true}, nil
}

func (c *GraphClient) resolveMiss(ctx context.Context, key store.CacheKey, req ResolveRequest, apiKey string) (*Result, error) {
	if c.locker == nil {
		return c.extractAndStore(ctx, key, req, apiKey)
	}

	var res *Result
	err := c.locker.WithKeyLock(ctx, "graph:"+key.String(), func(ctx context.Context) error {
		// Another process may have filled the cache while we waited.
		if !req.Force {
			cached, err := c.lookup(ctx, key)
			if err != nil {
				return err
			}
			if cached != nil {
				res = cached
				return nil
			}
		}

		var err error
		res, err = c.extractAndStore(ctx, key, req, apiKey)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *GraphClient) extractAndStore(ctx context.Context, key store.CacheKey, req ResolveRequest, apiKey string) (*Result, error) {
	start := time.Now()

	articles := c.articles.Combine(ctx, key.Topic, ArticleBudget(key.Depth), key.Language, key.TimeRange)
	c.metrics.ArticlesFetched(len(articles))
	if len(articles) == 0 {
		c.metrics.Extraction(OutcomeNoResults, time.Since(start))
		logger.Info("[Graph] No articles found", "topic", key.Topic, "lang", key.Language, "time_range", key.TimeRange)
		return nil, ErrNoResults
	}

	logger.Info("[Graph] Extracting graph", "topic", key.Topic, "depth", key.Depth, "articles", len(articles))

	raw, err := c.extract(ctx, key, req.BaseURL, apiKey, articles)
	if err != nil {
		c.metrics.Extraction(OutcomeError, time.Since(start))
		return nil, err
	}

	clean := SanitizeOutput(raw)
	g, payload, err := ParseGraph(clean, c.repairJSON)
	if err != nil {
		c.metrics.Extraction(OutcomeInvalid, time.Since(start))
		logger.Error("[Graph] Model answer is not a valid graph", "topic", key.Topic, "err", err, "raw", util.Preview(raw, 500))
		c.archiveFailure(ctx, key, raw)
		return nil, err
	}

	if warnings := g.Check(); len(warnings) > 0 {
		logger.Warn("[Graph] Extracted graph has structural issues", "topic", key.Topic, "count", len(warnings), "first", warnings[0])
	}

	if err := c.cache.Upsert(ctx, key, payload); err != nil {
		c.metrics.Extraction(OutcomeError, time.Since(start))
		return nil, err
	}

	c.metrics.Extraction(OutcomeSuccess, time.Since(start))
	logger.Info("[Graph] Graph stored", "topic", key.Topic, "depth", key.Depth, "nodes", len(g.Nodes), "links", len(g.Links), "duration", time.Since(start))

	return &Result{Graph: g, Raw: payload, Cached: false}, nil
}

func (c *GraphClient) extract(
	ctx context.Context,
	key store.CacheKey,
	baseURL string,
	apiKey string,
	articles []common.Article,
) (string, error) {
	client, err := c.newClient(apiKey, baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to create ai client: %w", err)
	}

	opts := []ai.GenerateOption{
		ai.WithSystemPrompts(ai.ExtractionSystemPrompt(key.Depth)),
		ai.WithTemperature(c.temperature),
	}
	if c.structuredOutput {
		opts = append(opts, ai.WithResponseFormat(
			"knowledge_graph",
			"Knowledge graph of branches, nodes and links extracted from news articles.",
			ai.GenerateSchema(common.Graph{}),
		))
	}

	extractCtx, cancel := context.WithTimeout(ctx, c.extractTimeout)
	defer cancel()

	raw, err := client.GenerateCompletion(extractCtx, ai.ExtractionInput(key.Topic, articles), opts...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("graph extraction timed out after %s: %w", c.extractTimeout, err)
		}
		return "", fmt.Errorf("failed to extract graph: %w", err)
	}

	m := client.GetMetrics()
	logger.Debug("[Graph] Extraction finished", "topic", key.Topic, "tokens", m.TotalTokens, "duration_ms", m.DurationMs)
	return raw, nil
}

func (c *GraphClient) archiveFailure(ctx context.Context, key store.CacheKey, raw string) {
	if c.archive == nil {
		return
	}
	if err := c.archive.ArchiveFailure(ctx, key, raw); err != nil {
		logger.Warn("[Graph] Failed to archive invalid answer", "topic", key.Topic, "err", err)
	}
}
