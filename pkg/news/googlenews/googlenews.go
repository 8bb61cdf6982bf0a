package googlenews

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/OFFIS-RIT/newsgraph/pkg/common"
	"github.com/OFFIS-RIT/newsgraph/pkg/news"
)

const DefaultBaseURL = "https://news.google.com/rss/search"

// GoogleNewsSource searches the Google News RSS endpoint. It is the primary
// source.
type GoogleNewsSource struct {
	baseURL string
	fetcher *news.FeedFetcher
}

// NewGoogleNewsSourceParams configures a GoogleNewsSource. BaseURL is only
// overridden in tests.
type NewGoogleNewsSourceParams struct {
	BaseURL string
	Fetcher *news.FeedFetcher
}

func NewGoogleNewsSource(params NewGoogleNewsSourceParams) *GoogleNewsSource {
	baseURL := params.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	fetcher := params.Fetcher
	if fetcher == nil {
		fetcher = news.NewFeedFetcher(nil)
	}
	return &GoogleNewsSource{baseURL: baseURL, fetcher: fetcher}
}

func (s *GoogleNewsSource) Name() string {
	return "google"
}

func (s *GoogleNewsSource) Fetch(ctx context.Context, q news.Query) ([]common.Article, error) {
	articles, err := s.fetcher.Fetch(ctx, s.searchURL(q), q)
	if err != nil {
		return nil, fmt.Errorf("google news: %w", err)
	}
	return articles, nil
}

func (s *GoogleNewsSource) searchURL(q news.Query) string {
	term := strings.TrimSpace(q.Topic)
	if when := whenOperator(q.TimeRange); when != "" {
		term += " when:" + when
	}

	lang, region := locale(q.Language)
	v := url.Values{}
	v.Set("q", term)
	v.Set("hl", lang+"-"+region)
	v.Set("gl", region)
	v.Set("ceid", region+":"+lang)
	return s.baseURL + "?" + v.Encode()
}

// whenOperator renders the time range for the "when:" search operator, which
// understands hours and days. Unparseable ranges are passed through.
func whenOperator(timeRange string) string {
	timeRange = strings.TrimSpace(timeRange)
	if timeRange == "" {
		return ""
	}
	window, err := news.ParseTimeRange(timeRange)
	if err != nil {
		return timeRange
	}
	if window < 24*time.Hour {
		return fmt.Sprintf("%dh", int(window.Hours()))
	}
	return fmt.Sprintf("%dd", int(window.Hours()/24))
}

// locale maps "en" to ("en", "US") and "pt-BR" to ("pt", "BR").
func locale(language string) (string, string) {
	language = strings.TrimSpace(language)
	if language == "" {
		language = "en"
	}
	lang, region, found := strings.Cut(strings.ReplaceAll(language, "_", "-"), "-")
	lang = strings.ToLower(lang)
	if found && region != "" {
		return lang, strings.ToUpper(region)
	}
	if lang == "en" {
		return lang, "US"
	}
	return lang, strings.ToUpper(lang)
}
