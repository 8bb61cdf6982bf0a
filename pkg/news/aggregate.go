package news

import (
	"context"
	"errors"
	"time"

	"github.com/OFFIS-RIT/newsgraph/pkg/common"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const DefaultSourceTimeout = 10 * time.Second

// Aggregator fans a query out to every configured source and merges the
// results round-robin, skipping duplicate titles.
//
// An Aggregator should be created using NewAggregator.
type Aggregator struct {
	sources  []Source
	timeout  time.Duration
	titleKey func(string) string
}

// NewAggregatorParams configures an Aggregator.
//
// Sources are interleaved in the given order. SourceTimeout bounds every
// single source call; a source that runs out of time contributes nothing.
// NormalizeTitles makes deduplication ignore case, markup and whitespace
// differences instead of comparing titles exactly.
type NewAggregatorParams struct {
	Sources         []Source
	SourceTimeout   time.Duration
	NormalizeTitles bool
}

func NewAggregator(params NewAggregatorParams) *Aggregator {
	timeout := params.SourceTimeout
	if timeout <= 0 {
		timeout = DefaultSourceTimeout
	}
	titleKey := func(s string) string { return s }
	if params.NormalizeTitles {
		titleKey = NormalizeTitle
	}
	return &Aggregator{
		sources:  params.Sources,
		timeout:  timeout,
		titleKey: titleKey,
	}
}

// Combine returns at most maxArticles unique-titled articles for topic. Every
// source is queried concurrently with the same parameters; failed sources are
// logged and treated as empty. An empty result means nothing was found.
func (a *Aggregator) Combine(
	ctx context.Context,
	topic string,
	maxArticles int,
	language string,
	timeRange string,
) []common.Article {
	if maxArticles <= 0 || len(a.sources) == 0 {
		return nil
	}

	q := Query{
		Topic:     topic,
		Language:  language,
		TimeRange: timeRange,
		Limit:     maxArticles,
	}

	results := a.fetchAll(ctx, q)
	merged := Interleave(results, maxArticles, a.titleKey)

	logger.Debug("[News] Aggregated articles", "topic", topic, "count", len(merged), "sources", len(a.sources))
	return merged
}

func (a *Aggregator) fetchAll(ctx context.Context, q Query) [][]common.Article {
	results := make([][]common.Article, len(a.sources))

	var eg errgroup.Group
	for i, src := range a.sources {
		eg.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			start := time.Now()
			articles, err := src.Fetch(fetchCtx, q)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
					logger.Warn("[News] Source timed out", "source", src.Name(), "timeout", a.timeout)
				} else {
					logger.Warn("[News] Source failed", "source", src.Name(), "err", err)
				}
				return nil
			}
			logger.Debug("[News] Source fetched", "source", src.Name(), "count", len(articles), "duration", time.Since(start))
			results[i] = articles
			return nil
		})
	}
	_ = eg.Wait()

	return results
}

// Interleave merges lists round-robin. Each round every list, in order,
// contributes its next article whose key(title) has not been emitted yet;
// duplicates are skipped within the same turn so a list keeps its slot in the
// round. Merging stops as soon as limit articles are collected or all lists
// are exhausted.
func Interleave(lists [][]common.Article, limit int, key func(string) string) []common.Article {
	if limit <= 0 {
		return nil
	}
	if key == nil {
		key = func(s string) string { return s }
	}

	total := 0
	for _, l := range lists {
		total += len(l)
	}

	out := make([]common.Article, 0, min(limit, total))
	seen := make(map[string]struct{}, min(limit, total))
	cursors := make([]int, len(lists))
	for {
		emitted := false
		for i, l := range lists {
			for cursors[i] < len(l) {
				a := l[cursors[i]]
				cursors[i]++

				k := key(a.Title)
				if _, dup := seen[k]; dup {
					continue
				}
				seen[k] = struct{}{}
				out = append(out, a)
				emitted = true
				if len(out) == limit {
					return out
				}
				break
			}
		}
		if !emitted {
			return out
		}
	}
}
