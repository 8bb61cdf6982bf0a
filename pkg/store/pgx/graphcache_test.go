package pgx

import (
	"context"
	"os"
	"testing"

	"github.com/OFFIS-RIT/newsgraph/pkg/store"

	"github.com/jackc/pgx/v5/pgxpool"
)

// newTestCache connects to TEST_DATABASE_URL and skips when it is unset.
func newTestCache(t *testing.T) *GraphCache {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	c := NewGraphCache(NewGraphCacheParams{Pool: pool, DatabaseURL: dsn})
	t.Cleanup(func() { _ = c.Close() })

	if err := c.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE graphs, topics RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return c
}

func TestGraphCache_RoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	key := store.CacheKey{Topic: "Acme Merger", Language: "en", TimeRange: "7d", Depth: 2}
	if _, found, err := c.Lookup(ctx, key); err != nil || found {
		t.Fatalf("expected miss, got found=%v err=%v", found, err)
	}

	if err := c.Upsert(ctx, key, `{"nodes":[]}`); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, found, err := c.Lookup(ctx, store.CacheKey{Topic: "acme merger", Language: "en", TimeRange: "7d", Depth: 2})
	if err != nil || !found {
		t.Fatalf("expected hit, got found=%v err=%v", found, err)
	}
	if got != `{"nodes":[]}` {
		t.Fatalf("unexpected payload %q", got)
	}
}

func TestGraphCache_ReplaceAndTopics(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	key := store.CacheKey{Topic: "OpenAI", Language: "en", Depth: 3}
	if err := c.Upsert(ctx, key, "first"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := c.Upsert(ctx, store.CacheKey{Topic: "OPENAI", Language: "en", Depth: 3}, "second"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, _, err := c.Lookup(ctx, key)
	if err != nil || got != "second" {
		t.Fatalf("expected replaced payload, got %q err=%v", got, err)
	}

	topics, err := c.ListTopics(ctx)
	if err != nil {
		t.Fatalf("list topics: %v", err)
	}
	if len(topics) != 1 || topics[0].Name != "OpenAI" || topics[0].Graphs != 1 {
		t.Fatalf("unexpected topics %+v", topics)
	}

	if err := c.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := c.Lookup(ctx, key); found {
		t.Fatal("expected miss after delete")
	}
}

func TestGraphCache_SanitizesPayload(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	key := store.CacheKey{Topic: "Acme", Language: "en", Depth: 1}
	if err := c.Upsert(ctx, key, "a\x00b"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, _, _ := c.Lookup(ctx, key)
	if got != "ab" {
		t.Fatalf("expected NUL bytes to be dropped, got %q", got)
	}
}

func TestInit_WithoutDatabaseURL(t *testing.T) {
	c := NewGraphCacheWithConnection(nil)
	if err := c.Init(context.Background()); err == nil {
		t.Fatal("expected error without database url")
	}
}
