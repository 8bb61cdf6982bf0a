package news

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/OFFIS-RIT/newsgraph/pkg/common"
)

// Query holds the parameters every source receives for one aggregation.
//
// TimeRange is the raw request value ("7d", "24h", ""), Limit bounds the
// number of articles a single source returns.
type Query struct {
	Topic     string
	Language  string
	TimeRange string
	Limit     int
}

// Source retrieves an ordered list of articles from one provider.
//
// Implementations keep the provider's native ordering and must be safe for
// concurrent use. Errors are reported to the Aggregator, which turns them into
// an empty contribution.
type Source interface {
	Name() string
	Fetch(ctx context.Context, q Query) ([]common.Article, error)
}

// ParseTimeRange converts values like "24h", "7d", "2w", "1m" or "1y" into a
// duration. An empty value means unrestricted and returns 0 with no error.
func ParseTimeRange(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return 0, nil
	}
	if len(raw) < 2 {
		return 0, fmt.Errorf("invalid time range %q", raw)
	}

	n, err := strconv.Atoi(raw[:len(raw)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid time range %q", raw)
	}

	day := 24 * time.Hour
	switch raw[len(raw)-1] {
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * day, nil
	case 'w':
		return time.Duration(n) * 7 * day, nil
	case 'm':
		return time.Duration(n) * 30 * day, nil
	case 'y':
		return time.Duration(n) * 365 * day, nil
	default:
		return 0, fmt.Errorf("invalid time range %q", raw)
	}
}
