package queue

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/newsgraph/pkg/logger"

	"github.com/robfig/cron/v3"
)

// JobPublisher enqueues resolve jobs. *Publisher implements it.
type JobPublisher interface {
	PublishResolveJob(ctx context.Context, job ResolveJob) error
}

// Refresher periodically enqueues forced jobs for a fixed set of topics so
// their cached graphs are re-extracted and overwritten.
type Refresher struct {
	publisher JobPublisher
	topics    []string
	depth     int
	language  string
	timeRange string
}

type NewRefresherParams struct {
	Publisher JobPublisher
	Topics    []string
	Depth     int
	Language  string
	TimeRange string
}

func NewRefresher(params NewRefresherParams) *Refresher {
	return &Refresher{
		publisher: params.Publisher,
		topics:    params.Topics,
		depth:     params.Depth,
		language:  params.Language,
		timeRange: params.TimeRange,
	}
}

// Schedule registers the refresh on a new cron scheduler. The caller starts
// and stops it.
func (r *Refresher) Schedule(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if n, err := r.RefreshAll(ctx); err != nil {
			logger.Error("[Refresh] Refresh run incomplete", "published", n, "err", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	return c, nil
}

// RefreshAll publishes one forced job per topic and returns how many were
// published. It keeps going after a failed publish.
func (r *Refresher) RefreshAll(ctx context.Context) (int, error) {
	var (
		published int
		firstErr  error
	)
	for _, topic := range r.topics {
		job, err := NewResolveJob(topic, r.depth, r.language, r.timeRange, true)
		if err == nil {
			err = r.publisher.PublishResolveJob(ctx, job)
		}
		if err != nil {
			logger.Warn("[Refresh] Failed to enqueue refresh", "topic", topic, "err", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		published++
	}
	logger.Info("[Refresh] Enqueued refresh jobs", "count", published, "topics", len(r.topics))
	return published, firstErr
}
