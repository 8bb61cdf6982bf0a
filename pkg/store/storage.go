package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrStorage marks failures of the underlying cache backend. Callers match it
// with errors.Is to tell storage problems apart from extraction problems.
var ErrStorage = errors.New("storage error")

// CacheKey identifies one cached graph. Topic identity is case-insensitive,
// every other field is compared exactly.
type CacheKey struct {
	Topic     string
	Language  string
	TimeRange string
	Depth     int
}

// Normalize trims surrounding whitespace from the topic. Casing is kept so the
// first spelling of a topic becomes its display name.
func (k CacheKey) Normalize() CacheKey {
	k.Topic = strings.TrimSpace(k.Topic)
	return k
}

// TopicKey is the case folded form used to identify a topic.
func (k CacheKey) TopicKey() string {
	return strings.ToLower(strings.TrimSpace(k.Topic))
}

// String renders the key with quoted components so that separators inside a
// field cannot make two keys collide.
func (k CacheKey) String() string {
	return fmt.Sprintf("%q|%q|%q|%d", k.TopicKey(), k.Language, k.TimeRange, k.Depth)
}

// GraphCache persists the raw JSON text of extracted graphs.
//
// Lookup reports a miss as found=false with a nil error. Upsert registers the
// topic on first use and replaces any existing payload for the same key, so a
// key never maps to more than one row.
type GraphCache interface {
	Init(ctx context.Context) error
	Lookup(ctx context.Context, key CacheKey) (raw string, found bool, err error)
	Upsert(ctx context.Context, key CacheKey, raw string) error
	Close() error
}

// Invalidator is implemented by caches that support explicit removal of a
// single entry. Deleting a missing key is not an error.
type Invalidator interface {
	Delete(ctx context.Context, key CacheKey) error
}

// Topic is one entry of the topic registry.
type Topic struct {
	Name      string
	CreatedAt time.Time
	Graphs    int
}

// TopicLister is implemented by caches that can enumerate their topics.
type TopicLister interface {
	ListTopics(ctx context.Context) ([]Topic, error)
}

// Wrap annotates err with op and ErrStorage. A nil err stays nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: failed to %s: %w", ErrStorage, op, err)
}
