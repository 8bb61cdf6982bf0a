package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/newsgraph/pkg/graph"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ResolveJob asks a worker to resolve one graph in the background. Force
// re-extracts even when the graph is cached.
type ResolveJob struct {
	Topic         string `json:"topic"`
	Depth         int    `json:"depth"`
	Language      string `json:"language"`
	TimeRange     string `json:"timeRange"`
	Force         bool   `json:"force"`
	CorrelationID string `json:"correlationId"`
}

// NewResolveJob returns a job with a fresh correlation id.
func NewResolveJob(topic string, depth int, language, timeRange string, force bool) (ResolveJob, error) {
	id, err := gonanoid.New()
	if err != nil {
		return ResolveJob{}, fmt.Errorf("failed to generate correlation id: %w", err)
	}
	return ResolveJob{
		Topic:         topic,
		Depth:         depth,
		Language:      language,
		TimeRange:     timeRange,
		Force:         force,
		CorrelationID: id,
	}, nil
}

func (j ResolveJob) Validate() error {
	if strings.TrimSpace(j.Topic) == "" {
		return errors.New("job topic is empty")
	}
	if j.Depth < 1 {
		return fmt.Errorf("job depth must be positive, got %d", j.Depth)
	}
	return nil
}

// Request converts the job into a resolve request using apiKey.
func (j ResolveJob) Request(apiKey string) graph.ResolveRequest {
	return graph.ResolveRequest{
		Topic:     j.Topic,
		APIKey:    apiKey,
		Depth:     j.Depth,
		Language:  j.Language,
		TimeRange: j.TimeRange,
		Force:     j.Force,
	}
}

func DecodeResolveJob(body []byte) (ResolveJob, error) {
	var job ResolveJob
	if err := json.Unmarshal(body, &job); err != nil {
		return ResolveJob{}, fmt.Errorf("failed to decode resolve job: %w", err)
	}
	if err := job.Validate(); err != nil {
		return ResolveJob{}, err
	}
	return job, nil
}

// Publisher enqueues resolve jobs on a single channel.
type Publisher struct {
	mu    sync.Mutex
	ch    Channel
	queue string
}

func NewPublisher(ch Channel, queueName string) *Publisher {
	if queueName == "" {
		queueName = ResolveQueue
	}
	return &Publisher{ch: ch, queue: queueName}
}

func (p *Publisher) PublishResolveJob(ctx context.Context, job ResolveJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode resolve job: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := PublishFIFO(ctx, p.ch, p.queue, data, nil); err != nil {
		return fmt.Errorf("failed to publish resolve job: %w", err)
	}

	logger.Debug("[Queue] Published resolve job", "topic", job.Topic, "depth", job.Depth, "force", job.Force, "correlation_id", job.CorrelationID)
	return nil
}
