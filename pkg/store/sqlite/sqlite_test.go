package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/OFFIS-RIT/newsgraph/pkg/store"
)

func newTestCache(t *testing.T) *GraphCache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache", "news.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return c
}

func TestInit_Idempotent(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	key := store.CacheKey{Topic: "Acme", Language: "en", Depth: 2}
	if err := c.Upsert(ctx, key, `{"nodes":[]}`); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := c.Init(ctx); err != nil {
		t.Fatalf("second init: %v", err)
	}
	if _, found, _ := c.Lookup(ctx, key); !found {
		t.Fatal("expected data to survive a second init")
	}
}

func TestLookup_MissOnEmptyCache(t *testing.T) {
	c := newTestCache(t)

	raw, found, err := c.Lookup(context.Background(), store.CacheKey{Topic: "Nothing", Language: "en", Depth: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found || raw != "" {
		t.Fatalf("expected miss, got found=%v raw=%q", found, raw)
	}
}

func TestUpsert_RoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	key := store.CacheKey{Topic: "Acme Merger", Language: "en", TimeRange: "7d", Depth: 2}
	raw := `{"branches":[],"nodes":[{"id":"n1","label":"Merger ✓"}],"links":[]}`
	if err := c.Upsert(ctx, key, raw); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, found, err := c.Lookup(ctx, key)
	if err != nil || !found {
		t.Fatalf("expected hit, got found=%v err=%v", found, err)
	}
	if got != raw {
		t.Fatalf("expected byte-identical payload, got %q", got)
	}
}

func TestLookup_TopicIsCaseInsensitive(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.Upsert(ctx, store.CacheKey{Topic: "SpaceX", Language: "en", Depth: 3}, "X"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	for _, topic := range []string{"spacex", "SPACEX", "  SpaceX "} {
		got, found, err := c.Lookup(ctx, store.CacheKey{Topic: topic, Language: "en", Depth: 3})
		if err != nil || !found || got != "X" {
			t.Fatalf("topic %q: expected hit with X, got %q found=%v err=%v", topic, got, found, err)
		}
	}
}

func TestLookup_OtherKeyFieldsAreExact(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	base := store.CacheKey{Topic: "Acme", Language: "en", TimeRange: "7d", Depth: 2}
	if err := c.Upsert(ctx, base, "X"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	misses := []store.CacheKey{
		{Topic: "Acme", Language: "EN", TimeRange: "7d", Depth: 2},
		{Topic: "Acme", Language: "de", TimeRange: "7d", Depth: 2},
		{Topic: "Acme", Language: "en", TimeRange: "", Depth: 2},
		{Topic: "Acme", Language: "en", TimeRange: "7D", Depth: 2},
		{Topic: "Acme", Language: "en", TimeRange: "7d", Depth: 3},
	}
	for _, k := range misses {
		if _, found, err := c.Lookup(ctx, k); err != nil || found {
			t.Fatalf("key %+v: expected miss, got found=%v err=%v", k, found, err)
		}
	}
}

func TestUpsert_ReplacesExisting(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	key := store.CacheKey{Topic: "Acme", Language: "en", Depth: 2}
	if err := c.Upsert(ctx, key, "first"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := c.Upsert(ctx, store.CacheKey{Topic: "ACME", Language: "en", Depth: 2}, "second"); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, _, err := c.Lookup(ctx, key)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got != "second" {
		t.Fatalf("expected second, got %q", got)
	}

	var rows int
	if err := c.readDB.QueryRow(`SELECT COUNT(*) FROM graphs`).Scan(&rows); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected 1 graph row, got %d", rows)
	}
}

func TestUpsert_KeepsFirstTopicSpelling(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.Upsert(ctx, store.CacheKey{Topic: "OpenAI", Language: "en", Depth: 1}, "a"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := c.Upsert(ctx, store.CacheKey{Topic: "openai", Language: "en", Depth: 2}, "b"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	topics, err := c.ListTopics(ctx)
	if err != nil {
		t.Fatalf("list topics: %v", err)
	}
	if len(topics) != 1 {
		t.Fatalf("expected one topic, got %+v", topics)
	}
	if topics[0].Name != "OpenAI" || topics[0].Graphs != 2 {
		t.Fatalf("unexpected topic %+v", topics[0])
	}
	if topics[0].CreatedAt.IsZero() {
		t.Fatal("expected creation time")
	}
}

func TestDelete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	key := store.CacheKey{Topic: "Acme", Language: "en", Depth: 2}
	other := store.CacheKey{Topic: "Acme", Language: "en", Depth: 3}
	for _, k := range []store.CacheKey{key, other} {
		if err := c.Upsert(ctx, k, "X"); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	if err := c.Delete(ctx, store.CacheKey{Topic: "acme", Language: "en", Depth: 2}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := c.Lookup(ctx, key); found {
		t.Fatal("expected deleted key to miss")
	}
	if _, found, _ := c.Lookup(ctx, other); !found {
		t.Fatal("expected other depth to survive")
	}
	if err := c.Delete(ctx, store.CacheKey{Topic: "missing", Language: "en", Depth: 1}); err != nil {
		t.Fatalf("deleting a missing key should not fail: %v", err)
	}
}

func TestUpsert_Concurrent(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			topic := "Acme"
			if i%2 == 0 {
				topic = "ACME"
			}
			errs <- c.Upsert(ctx, store.CacheKey{Topic: topic, Language: "en", Depth: 2}, "X")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent upsert: %v", err)
		}
	}

	var topics, graphs int
	_ = c.readDB.QueryRow(`SELECT COUNT(*) FROM topics`).Scan(&topics)
	_ = c.readDB.QueryRow(`SELECT COUNT(*) FROM graphs`).Scan(&graphs)
	if topics != 1 || graphs != 1 {
		t.Fatalf("expected 1 topic and 1 graph, got %d and %d", topics, graphs)
	}
}

func TestErrorsAreStorageErrors(t *testing.T) {
	c := newTestCache(t)
	_ = c.Close()

	_, _, err := c.Lookup(context.Background(), store.CacheKey{Topic: "Acme", Language: "en", Depth: 1})
	if !errors.Is(err, store.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

func TestLookup_UnicodeTopicIsCaseInsensitive(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.Upsert(ctx, store.CacheKey{Topic: "Ärger Über München", Language: "de", Depth: 2}, "X"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, found, err := c.Lookup(ctx, store.CacheKey{Topic: "ärger über münchen", Language: "de", Depth: 2})
	if err != nil || !found || got != "X" {
		t.Fatalf("expected hit with X, got %q found=%v err=%v", got, found, err)
	}

	if err := c.Upsert(ctx, store.CacheKey{Topic: "ÄRGER ÜBER MÜNCHEN", Language: "de", Depth: 3}, "Y"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	topics, err := c.ListTopics(ctx)
	if err != nil {
		t.Fatalf("list topics: %v", err)
	}
	if len(topics) != 1 || topics[0].Name != "Ärger Über München" || topics[0].Graphs != 2 {
		t.Fatalf("expected one topic with two graphs, got %+v", topics)
	}
}

func TestInit_AddsTopicKeysToOlderSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	legacy := `
CREATE TABLE topics (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE COLLATE NOCASE,
	created_at DATETIME NOT NULL
);
INSERT INTO topics (name, created_at) VALUES ('Ärger', '2026-01-01 00:00:00');
`
	if _, err := c.writeDB.ExecContext(ctx, legacy); err != nil {
		t.Fatalf("legacy schema: %v", err)
	}
	if err := c.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	if err := c.Upsert(ctx, store.CacheKey{Topic: "ärger", Language: "de", Depth: 1}, "X"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	topics, err := c.ListTopics(ctx)
	if err != nil {
		t.Fatalf("list topics: %v", err)
	}
	if len(topics) != 1 || topics[0].Name != "Ärger" || topics[0].Graphs != 1 {
		t.Fatalf("expected upgraded topic to be reused, got %+v", topics)
	}
}
