package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/OFFIS-RIT/newsgraph/pkg/graph"

	"github.com/rabbitmq/amqp091-go"
)

type published struct {
	key string
	msg amqp091.Publishing
}

type fakeChannel struct {
	mu         sync.Mutex
	declared   map[string]amqp091.Table
	published  []published
	publishErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{declared: map[string]amqp091.Table{}}
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declared[name] = args
	return amqp091.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{key: key, msg: msg})
	return nil
}

type fakeAck struct {
	acks, nacks int
	requeued    bool
}

func (a *fakeAck) Ack(tag uint64, multiple bool) error {
	a.acks++
	return nil
}

func (a *fakeAck) Nack(tag uint64, multiple, requeue bool) error {
	a.nacks++
	a.requeued = requeue
	return nil
}

func (a *fakeAck) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type fakeResolver struct {
	err  error
	reqs []graph.ResolveRequest
}

func (r *fakeResolver) ResolveGraph(ctx context.Context, req graph.ResolveRequest) (*graph.Result, error) {
	r.reqs = append(r.reqs, req)
	if r.err != nil {
		return nil, r.err
	}
	return &graph.Result{Raw: "{}"}, nil
}

type countingJobs struct {
	results map[string]int
}

func (c *countingJobs) Job(result string) {
	if c.results == nil {
		c.results = map[string]int{}
	}
	c.results[result]++
}

func delivery(t *testing.T, job any, headers amqp091.Table) (amqp091.Delivery, *fakeAck) {
	t.Helper()
	body, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	ack := &fakeAck{}
	return amqp091.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body, Headers: headers, ContentType: "application/json"}, ack
}

func TestSetupQueues(t *testing.T) {
	ch := newFakeChannel()
	if err := SetupQueues(ch, []string{ResolveQueue}); err != nil {
		t.Fatalf("setup: %v", err)
	}

	for _, name := range []string{"resolve_queue", "resolve_queue_dlq", "resolve_queue_retry"} {
		if _, ok := ch.declared[name]; !ok {
			t.Fatalf("expected %s to be declared", name)
		}
	}
	retryArgs := ch.declared["resolve_queue_retry"]
	if retryArgs["x-dead-letter-routing-key"] != "resolve_queue" {
		t.Fatalf("expected retry queue to dead-letter into resolve_queue, got %v", retryArgs)
	}
	if retryArgs["x-message-ttl"] != int32(10000) {
		t.Fatalf("expected 10s ttl, got %v", retryArgs["x-message-ttl"])
	}
}

func TestPublisher_PublishResolveJob(t *testing.T) {
	ch := newFakeChannel()
	p := NewPublisher(ch, "")

	job, err := NewResolveJob("SpaceX", 2, "en", "7d", false)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if job.CorrelationID == "" {
		t.Fatal("expected a correlation id")
	}
	if err := p.PublishResolveJob(context.Background(), job); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(ch.published) != 1 || ch.published[0].key != ResolveQueue {
		t.Fatalf("expected one message on resolve_queue, got %+v", ch.published)
	}
	got, err := DecodeResolveJob(ch.published[0].msg.Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != job {
		t.Fatalf("expected %+v, got %+v", job, got)
	}
	if ch.published[0].msg.DeliveryMode != amqp091.Persistent {
		t.Fatal("expected persistent delivery")
	}
}

func TestPublisher_RejectsEmptyTopic(t *testing.T) {
	ch := newFakeChannel()
	p := NewPublisher(ch, "")
	if err := p.PublishResolveJob(context.Background(), ResolveJob{Topic: "  "}); err == nil {
		t.Fatal("expected error for empty topic")
	}
	if len(ch.published) != 0 {
		t.Fatal("expected nothing to be published")
	}
}

func TestConsumer_Success(t *testing.T) {
	resolver := &fakeResolver{}
	jobs := &countingJobs{}
	c := NewConsumer(NewConsumerParams{Resolver: resolver, APIKey: "k", MaxRetries: 3, Metrics: jobs})
	ch := newFakeChannel()

	msg, ack := delivery(t, ResolveJob{Topic: "SpaceX", Depth: 1, Language: "en", Force: true}, nil)
	c.Handle(context.Background(), ch, msg)

	if ack.acks != 1 || len(ch.published) != 0 {
		t.Fatalf("expected a plain ack, got %d acks and %d publishes", ack.acks, len(ch.published))
	}
	want := graph.ResolveRequest{Topic: "SpaceX", APIKey: "k", Depth: 1, Language: "en", Force: true}
	if len(resolver.reqs) != 1 || resolver.reqs[0] != want {
		t.Fatalf("expected request %+v, got %+v", want, resolver.reqs)
	}
	if jobs.results[ResultAck] != 1 {
		t.Fatalf("expected one ack metric, got %v", jobs.results)
	}
}

func TestConsumer_NoResultsIsAcked(t *testing.T) {
	resolver := &fakeResolver{err: fmt.Errorf("resolve: %w", graph.ErrNoResults)}
	c := NewConsumer(NewConsumerParams{Resolver: resolver, MaxRetries: 3})
	ch := newFakeChannel()

	msg, ack := delivery(t, ResolveJob{Topic: "nothing", Depth: 2}, nil)
	c.Handle(context.Background(), ch, msg)

	if ack.acks != 1 || len(ch.published) != 0 {
		t.Fatalf("expected ack without retry, got %d acks and %d publishes", ack.acks, len(ch.published))
	}
}

func TestConsumer_RetryThenDeadLetter(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("model unavailable")}
	jobs := &countingJobs{}
	c := NewConsumer(NewConsumerParams{Resolver: resolver, MaxRetries: 2, Metrics: jobs})
	ch := newFakeChannel()

	var headers amqp091.Table
	for attempt := 1; attempt <= 2; attempt++ {
		msg, ack := delivery(t, ResolveJob{Topic: "SpaceX", Depth: 2}, headers)
		c.Handle(context.Background(), ch, msg)

		last := ch.published[len(ch.published)-1]
		if last.key != "resolve_queue_retry" {
			t.Fatalf("attempt %d: expected retry queue, got %s", attempt, last.key)
		}
		if got := RetryCount(last.msg.Headers); got != attempt {
			t.Fatalf("attempt %d: expected retry count %d, got %d", attempt, attempt, got)
		}
		if ack.acks != 1 {
			t.Fatalf("attempt %d: expected original to be acked", attempt)
		}
		headers = last.msg.Headers
	}

	msg, ack := delivery(t, ResolveJob{Topic: "SpaceX", Depth: 2}, headers)
	c.Handle(context.Background(), ch, msg)

	last := ch.published[len(ch.published)-1]
	if last.key != "resolve_queue_dlq" {
		t.Fatalf("expected dlq after max retries, got %s", last.key)
	}
	if ack.acks != 1 {
		t.Fatal("expected original to be acked after dead-lettering")
	}
	if jobs.results[ResultRetry] != 2 || jobs.results[ResultDead] != 1 {
		t.Fatalf("expected 2 retries and 1 dead, got %v", jobs.results)
	}
}

func TestConsumer_MalformedGoesToDLQ(t *testing.T) {
	resolver := &fakeResolver{}
	c := NewConsumer(NewConsumerParams{Resolver: resolver, MaxRetries: 5})
	ch := newFakeChannel()

	ack := &fakeAck{}
	msg := amqp091.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte("not json")}
	c.Handle(context.Background(), ch, msg)

	if len(ch.published) != 1 || ch.published[0].key != "resolve_queue_dlq" {
		t.Fatalf("expected malformed job in dlq, got %+v", ch.published)
	}
	if len(resolver.reqs) != 0 {
		t.Fatal("expected resolver not to be called")
	}
}

func TestConsumer_NonPositiveDepthGoesToDLQ(t *testing.T) {
	resolver := &fakeResolver{}
	c := NewConsumer(NewConsumerParams{Resolver: resolver, MaxRetries: 5})
	ch := newFakeChannel()

	ack := &fakeAck{}
	msg := amqp091.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte(`{"topic":"SpaceX","depth":0}`)}
	c.Handle(context.Background(), ch, msg)

	if len(ch.published) != 1 || ch.published[0].key != "resolve_queue_dlq" {
		t.Fatalf("expected depth 0 job in dlq, got %+v", ch.published)
	}
	if len(resolver.reqs) != 0 {
		t.Fatal("expected resolver not to be called")
	}
}

func TestPublisher_RejectsNonPositiveDepth(t *testing.T) {
	ch := newFakeChannel()
	p := NewPublisher(ch, "")
	if err := p.PublishResolveJob(context.Background(), ResolveJob{Topic: "SpaceX", Depth: -1}); err == nil {
		t.Fatal("expected error for negative depth")
	}
	if len(ch.published) != 0 {
		t.Fatal("expected nothing to be published")
	}
}

func TestConsumer_PublishFailureRequeues(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("boom")}
	c := NewConsumer(NewConsumerParams{Resolver: resolver, MaxRetries: 5})
	ch := newFakeChannel()
	ch.publishErr = errors.New("channel closed")

	msg, ack := delivery(t, ResolveJob{Topic: "SpaceX", Depth: 2}, nil)
	c.Handle(context.Background(), ch, msg)

	if ack.nacks != 1 || !ack.requeued || ack.acks != 0 {
		t.Fatalf("expected requeueing nack, got acks=%d nacks=%d requeue=%v", ack.acks, ack.nacks, ack.requeued)
	}
}

func TestRetryCount(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp091.Table
		want    int
	}{
		{"missing", nil, 0},
		{"int32", amqp091.Table{"x-retries": int32(3)}, 3},
		{"int64", amqp091.Table{"x-retries": int64(4)}, 4},
		{"int", amqp091.Table{"x-retries": 5}, 5},
		{"string", amqp091.Table{"x-retries": "7"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RetryCount(tt.headers); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

type recordingPublisher struct {
	jobs    []ResolveJob
	failFor string
}

func (p *recordingPublisher) PublishResolveJob(ctx context.Context, job ResolveJob) error {
	if job.Topic == p.failFor {
		return errors.New("publish failed")
	}
	p.jobs = append(p.jobs, job)
	return nil
}

func TestRefresher_RefreshAll(t *testing.T) {
	pub := &recordingPublisher{failFor: "broken"}
	r := NewRefresher(NewRefresherParams{
		Publisher: pub,
		Topics:    []string{"SpaceX", "broken", "Mars"},
		Depth:     2,
		Language:  "de",
		TimeRange: "7d",
	})

	n, err := r.RefreshAll(context.Background())
	if err == nil {
		t.Fatal("expected the failed publish to be reported")
	}
	if n != 2 || len(pub.jobs) != 2 {
		t.Fatalf("expected 2 published jobs, got %d", n)
	}
	for _, job := range pub.jobs {
		if !job.Force || job.Depth != 2 || job.Language != "de" || job.TimeRange != "7d" || job.CorrelationID == "" {
			t.Fatalf("unexpected refresh job %+v", job)
		}
	}
	if pub.jobs[0].CorrelationID == pub.jobs[1].CorrelationID {
		t.Fatal("expected distinct correlation ids")
	}
}

func TestRefresher_Schedule(t *testing.T) {
	r := NewRefresher(NewRefresherParams{Publisher: &recordingPublisher{}})

	if _, err := r.Schedule(context.Background(), "not a schedule"); err == nil {
		t.Fatal("expected invalid schedule to fail")
	}
	c, err := r.Schedule(context.Background(), "@every 1h")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(c.Entries()) != 1 {
		t.Fatalf("expected one cron entry, got %d", len(c.Entries()))
	}
}
