package redis

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/OFFIS-RIT/newsgraph/pkg/store"

	"github.com/go-redis/redis/v8"
)

const (
	keyPrefix = "newsgraph:graph:"
	topicsKey = "newsgraph:topics"
)

// GraphCache keeps one string key per cache key. Redis has no schema, so the
// topic registry is a hash of lower(name) to "<unix seconds>|<display name>".
type GraphCache struct {
	client redis.UniversalClient
}

type NewGraphCacheParams struct {
	Addr     string
	Password string
	DB       int
}

func NewGraphCache(params NewGraphCacheParams) *GraphCache {
	return &GraphCache{
		client: redis.NewClient(&redis.Options{
			Addr:     params.Addr,
			Password: params.Password,
			DB:       params.DB,
		}),
	}
}

// NewGraphCacheWithClient wraps an existing client.
func NewGraphCacheWithClient(client redis.UniversalClient) *GraphCache {
	return &GraphCache{client: client}
}

// GraphKey renders the redis key for k. Each component is query escaped, so
// ':' and glob characters inside a field never reach the key verbatim.
func GraphKey(k store.CacheKey) string {
	k = k.Normalize()
	return fmt.Sprintf("%s:%s:%s:%d", topicPrefix(k.TopicKey()), url.QueryEscape(k.Language), url.QueryEscape(k.TimeRange), k.Depth)
}

func topicPrefix(folded string) string {
	return keyPrefix + url.QueryEscape(folded)
}

// Init checks connectivity. There is nothing to create.
func (c *GraphCache) Init(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return store.Wrap("ping redis", err)
	}
	return nil
}

func (c *GraphCache) Lookup(ctx context.Context, key store.CacheKey) (string, bool, error) {
	raw, err := c.client.Get(ctx, GraphKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, store.Wrap("lookup graph", err)
	}
	return raw, true, nil
}

func (c *GraphCache) Upsert(ctx context.Context, key store.CacheKey, raw string) error {
	key = key.Normalize()

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, topicsKey, key.TopicKey(), encodeTopic(key.Topic, time.Now()))
		pipe.Set(ctx, GraphKey(key), raw, 0)
		return nil
	})
	if err != nil {
		return store.Wrap("store graph", err)
	}
	return nil
}

func (c *GraphCache) Delete(ctx context.Context, key store.CacheKey) error {
	if err := c.client.Del(ctx, GraphKey(key)).Err(); err != nil {
		return store.Wrap("delete graph", err)
	}
	return nil
}

func (c *GraphCache) ListTopics(ctx context.Context) ([]store.Topic, error) {
	entries, err := c.client.HGetAll(ctx, topicsKey).Result()
	if err != nil {
		return nil, store.Wrap("list topics", err)
	}

	topics := make([]store.Topic, 0, len(entries))
	for folded, value := range entries {
		t := decodeTopic(value)
		if t.Name == "" {
			t.Name = folded
		}
		keys, err := c.countGraphs(ctx, folded)
		if err != nil {
			return nil, store.Wrap("count graphs", err)
		}
		t.Graphs = keys
		topics = append(topics, t)
	}
	slices.SortFunc(topics, func(a, b store.Topic) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return topics, nil
}

func (c *GraphCache) countGraphs(ctx context.Context, folded string) (int, error) {
	var (
		cursor uint64
		count  int
	)
	pattern := topicPrefix(folded) + ":*"
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return 0, err
		}
		count += len(keys)
		if next == 0 {
			return count, nil
		}
		cursor = next
	}
}

func (c *GraphCache) Close() error {
	return c.client.Close()
}

func encodeTopic(name string, createdAt time.Time) string {
	return fmt.Sprintf("%d|%s", createdAt.Unix(), name)
}

func decodeTopic(value string) store.Topic {
	ts, name, ok := strings.Cut(value, "|")
	if !ok {
		return store.Topic{Name: value}
	}
	var secs int64
	if _, err := fmt.Sscan(ts, &secs); err != nil {
		return store.Topic{Name: value}
	}
	return store.Topic{Name: name, CreatedAt: time.Unix(secs, 0).UTC()}
}
