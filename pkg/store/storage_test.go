package store

import (
	"errors"
	"testing"
)

func TestCacheKey_Normalize(t *testing.T) {
	k := CacheKey{Topic: "  Acme Merger\t", Language: " en", TimeRange: "7d ", Depth: 2}.Normalize()
	if k.Topic != "Acme Merger" {
		t.Fatalf("expected trimmed topic, got %q", k.Topic)
	}
	if k.Language != " en" || k.TimeRange != "7d " {
		t.Fatalf("expected other fields untouched, got %+v", k)
	}
}

func TestCacheKey_TopicIdentity(t *testing.T) {
	a := CacheKey{Topic: "SpaceX", Language: "en", Depth: 3}
	b := CacheKey{Topic: " spacex ", Language: "en", Depth: 3}
	if a.String() != b.String() {
		t.Fatalf("expected %q and %q to identify the same key", a, b)
	}

	c := CacheKey{Topic: "SpaceX", Language: "EN", Depth: 3}
	if a.String() == c.String() {
		t.Fatal("expected language to be compared exactly")
	}
}

func TestCacheKey_SeparatorsDoNotCollide(t *testing.T) {
	keys := []CacheKey{
		{Topic: "gaza|en", Language: "7d", TimeRange: "", Depth: 2},
		{Topic: "gaza", Language: "en|7d", TimeRange: "", Depth: 2},
		{Topic: "gaza", Language: "en", TimeRange: "7d|", Depth: 2},
		{Topic: "gaza", Language: "en", TimeRange: "7d", Depth: 2},
	}
	seen := map[string]CacheKey{}
	for _, k := range keys {
		s := k.String()
		if prev, ok := seen[s]; ok {
			t.Fatalf("expected distinct strings, %+v and %+v both render %s", prev, k, s)
		}
		seen[s] = k
	}
}

func TestWrap(t *testing.T) {
	if Wrap("lookup graph", nil) != nil {
		t.Fatal("expected nil for nil error")
	}

	cause := errors.New("disk full")
	err := Wrap("store graph", cause)
	if !errors.Is(err, ErrStorage) || !errors.Is(err, cause) {
		t.Fatalf("expected both ErrStorage and cause, got %v", err)
	}
}
