package bing

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/OFFIS-RIT/newsgraph/pkg/common"
	"github.com/OFFIS-RIT/newsgraph/pkg/news"
)

const DefaultBaseURL = "https://www.bing.com/news/search"

// BingNewsSource searches the Bing News RSS endpoint. It is the secondary
// source.
type BingNewsSource struct {
	baseURL string
	fetcher *news.FeedFetcher
}

type NewBingNewsSourceParams struct {
	BaseURL string
	Fetcher *news.FeedFetcher
}

func NewBingNewsSource(params NewBingNewsSourceParams) *BingNewsSource {
	baseURL := params.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	fetcher := params.Fetcher
	if fetcher == nil {
		fetcher = news.NewFeedFetcher(nil)
	}
	return &BingNewsSource{baseURL: baseURL, fetcher: fetcher}
}

func (s *BingNewsSource) Name() string {
	return "bing"
}

func (s *BingNewsSource) Fetch(ctx context.Context, q news.Query) ([]common.Article, error) {
	articles, err := s.fetcher.Fetch(ctx, s.searchURL(q), q)
	if err != nil {
		return nil, fmt.Errorf("bing news: %w", err)
	}
	return articles, nil
}

func (s *BingNewsSource) searchURL(q news.Query) string {
	v := url.Values{}
	v.Set("q", strings.TrimSpace(q.Topic))
	v.Set("format", "rss")
	if lang := strings.TrimSpace(q.Language); lang != "" {
		v.Set("setlang", lang)
	}
	if interval := intervalFilter(q.TimeRange); interval != "" {
		v.Set("qft", fmt.Sprintf("interval=%q", interval))
	}
	return s.baseURL + "?" + v.Encode()
}

// intervalFilter picks the smallest Bing freshness bucket that covers the
// range. Longer or unparseable ranges get no filter; the feed fetcher still
// applies the cutoff locally when it can.
func intervalFilter(timeRange string) string {
	window, err := news.ParseTimeRange(timeRange)
	if err != nil || window == 0 {
		return ""
	}
	switch {
	case window <= time.Hour:
		return "4"
	case window <= 24*time.Hour:
		return "7"
	case window <= 7*24*time.Hour:
		return "8"
	case window <= 30*24*time.Hour:
		return "9"
	default:
		return ""
	}
}
