package news

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/OFFIS-RIT/newsgraph/pkg/common"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/rss"
)

const unknownSource = "Unknown Source"

// FeedFetcher downloads and parses RSS search feeds. It is shared by the
// feed based sources.
type FeedFetcher struct {
	client *http.Client
	now    func() time.Time
}

// NewFeedFetcher creates a fetcher. A nil client uses http.DefaultClient.
func NewFeedFetcher(client *http.Client) *FeedFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &FeedFetcher{client: client, now: time.Now}
}

// Fetch downloads feedURL and converts its entries into articles, keeping
// feed order. Entries older than the query's time range are dropped when both
// the range and the entry date can be parsed. At most q.Limit articles are
// returned when q.Limit > 0.
func (f *FeedFetcher) Fetch(ctx context.Context, feedURL string, q Query) ([]common.Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "newsgraph/1.0 (+https://github.com/OFFIS-RIT/newsgraph)")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch feed: status %d", resp.StatusCode)
	}

	parser := gofeed.NewParser()
	parser.RSSTranslator = &sourceTranslator{}
	feed, err := parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	var cutoff time.Time
	if window, err := ParseTimeRange(q.TimeRange); err == nil && window > 0 {
		cutoff = f.now().Add(-window)
	}

	articles := make([]common.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		if q.Limit > 0 && len(articles) >= q.Limit {
			break
		}
		title := CleanText(item.Title)
		if title == "" {
			continue
		}
		if !cutoff.IsZero() {
			if pub, ok := publishedAt(item); ok && pub.Before(cutoff) {
				continue
			}
		}

		source := unknownSource
		if item.Custom != nil && item.Custom[customSourceKey] != "" {
			source = item.Custom[customSourceKey]
		}

		articles = append(articles, common.Article{
			Title:       title,
			Link:        item.Link,
			PublishedAt: item.Published,
			SourceName:  source,
		})
	}

	return articles, nil
}

func publishedAt(item *gofeed.Item) (time.Time, bool) {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed, true
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed, true
	}
	if item.Published == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseAny(item.Published)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

const customSourceKey = "source"

// sourceTranslator keeps the per item <source> element, which the universal
// feed model drops. Bing publishes it as a namespaced News:Source extension.
type sourceTranslator struct {
	gofeed.DefaultRSSTranslator
}

func (t *sourceTranslator) Translate(feed interface{}) (*gofeed.Feed, error) {
	out, err := t.DefaultRSSTranslator.Translate(feed)
	if err != nil {
		return nil, err
	}
	rssFeed, ok := feed.(*rss.Feed)
	if !ok {
		return out, nil
	}

	for i, item := range rssFeed.Items {
		if i >= len(out.Items) {
			break
		}
		name := ""
		if item.Source != nil {
			name = strings.TrimSpace(item.Source.Title)
		}
		if name == "" {
			name = extensionValue(item, "source")
		}
		if name == "" {
			continue
		}
		if out.Items[i].Custom == nil {
			out.Items[i].Custom = map[string]string{}
		}
		out.Items[i].Custom[customSourceKey] = CleanText(name)
	}
	return out, nil
}

func extensionValue(item *rss.Item, name string) string {
	for _, byName := range item.Extensions {
		for extName, values := range byName {
			if !strings.EqualFold(extName, name) {
				continue
			}
			for _, v := range values {
				if strings.TrimSpace(v.Value) != "" {
					return strings.TrimSpace(v.Value)
				}
			}
		}
	}
	return ""
}
