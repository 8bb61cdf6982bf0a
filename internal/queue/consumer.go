package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/newsgraph/pkg/graph"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

const retryHeader = "x-retries"

// Job results reported to JobMetrics.
const (
	ResultAck   = "ack"
	ResultRetry = "retry"
	ResultDead  = "dead"
)

// Resolver is satisfied by *graph.GraphClient.
type Resolver interface {
	ResolveGraph(ctx context.Context, req graph.ResolveRequest) (*graph.Result, error)
}

type JobMetrics interface {
	Job(result string)
}

// Consumer resolves jobs from one queue. Failed jobs go to the retry queue
// until MaxRetries is reached and to the dead-letter queue after that.
//
// A Consumer should be created using NewConsumer.
type Consumer struct {
	resolver   Resolver
	apiKey     string
	queue      string
	maxRetries int
	metrics    JobMetrics
}

type NewConsumerParams struct {
	Resolver   Resolver
	APIKey     string
	Queue      string
	MaxRetries int
	Metrics    JobMetrics
}

func NewConsumer(params NewConsumerParams) *Consumer {
	q := params.Queue
	if q == "" {
		q = ResolveQueue
	}
	maxRetries := params.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Consumer{
		resolver:   params.Resolver,
		apiKey:     params.APIKey,
		queue:      q,
		maxRetries: maxRetries,
		metrics:    params.Metrics,
	}
}

// Run consumes until ctx is done or the delivery channel closes. Only one
// message is in flight at a time.
func (c *Consumer) Run(ctx context.Context, ch *amqp091.Channel) error {
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		c.queue,
		c.queue+"_consumer",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming %s: %w", c.queue, err)
	}

	logger.Info("[Queue] Listening for messages", "queue", c.queue)
	for {
		select {
		case <-ctx.Done():
			logger.Info("[Queue] Stopping consumer", "queue", c.queue)
			return nil
		case msg, ok := <-msgs:
			if !ok {
				logger.Info("[Queue] Message channel closed", "queue", c.queue)
				return nil
			}
			c.Handle(ctx, ch, msg)
		}
	}
}

// Handle processes a single delivery and settles it.
func (c *Consumer) Handle(ctx context.Context, ch Channel, msg amqp091.Delivery) {
	start := time.Now()

	err := c.process(ctx, msg.Body)
	switch {
	case err == nil:
		c.ack(msg)
		logger.Info("[Queue] Job processed", "queue", c.queue, "duration", time.Since(start))
	case errors.Is(err, graph.ErrNoResults):
		// Nothing to extract is an answer, not a failure.
		c.ack(msg)
		logger.Info("[Queue] Job found no articles", "queue", c.queue)
	case errors.Is(err, errPoison):
		logger.Error("[Queue] Dropping malformed job", "queue", c.queue, "err", err)
		c.deadLetter(ctx, ch, msg)
	default:
		logger.Error("[Queue] Error processing job", "queue", c.queue, "err", err)
		c.handleProcessingError(ctx, ch, msg)
	}
}

var errPoison = errors.New("malformed job")

func (c *Consumer) process(ctx context.Context, body []byte) error {
	job, err := DecodeResolveJob(body)
	if err != nil {
		return fmt.Errorf("%w: %w", errPoison, err)
	}

	logger.Info("[Queue] Resolving job", "topic", job.Topic, "depth", job.Depth, "force", job.Force, "correlation_id", job.CorrelationID)
	res, err := c.resolver.ResolveGraph(ctx, job.Request(c.apiKey))
	if err != nil {
		return err
	}
	logger.Debug("[Queue] Job resolved", "topic", job.Topic, "cached", res.Cached, "correlation_id", job.CorrelationID)
	return nil
}

func (c *Consumer) handleProcessingError(ctx context.Context, ch Channel, msg amqp091.Delivery) {
	retries := RetryCount(msg.Headers)
	if retries >= c.maxRetries {
		c.deadLetter(ctx, ch, msg)
		return
	}

	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[retryHeader] = int32(retries + 1)

	retryName := c.queue + "_retry"
	err := ch.PublishWithContext(ctx, "", retryName, false, false, amqp091.Publishing{
		ContentType:  msg.ContentType,
		Body:         msg.Body,
		Headers:      headers,
		DeliveryMode: amqp091.Persistent,
	})
	if err != nil {
		logger.Error("[Queue] Failed to publish to retry queue", "retry_queue", retryName, "err", err)
		c.nack(msg)
		return
	}
	logger.Info("[Queue] Scheduled retry", "queue", c.queue, "attempt", retries+1, "max", c.maxRetries)
	c.observe(ResultRetry)
	c.settle(msg.Ack(false))
}

func (c *Consumer) deadLetter(ctx context.Context, ch Channel, msg amqp091.Delivery) {
	dlqName := c.queue + "_dlq"
	logger.Warn("[Queue] Sending message to DLQ", "dlq", dlqName)
	err := ch.PublishWithContext(ctx, "", dlqName, false, false, amqp091.Publishing{
		ContentType:  msg.ContentType,
		Body:         msg.Body,
		Headers:      msg.Headers,
		DeliveryMode: amqp091.Persistent,
	})
	if err != nil {
		logger.Error("[Queue] Failed to publish to DLQ", "dlq", dlqName, "err", err)
		c.nack(msg)
		return
	}
	c.observe(ResultDead)
	c.settle(msg.Ack(false))
}

func (c *Consumer) ack(msg amqp091.Delivery) {
	c.observe(ResultAck)
	c.settle(msg.Ack(false))
}

func (c *Consumer) nack(msg amqp091.Delivery) {
	c.settle(msg.Nack(false, true))
}

func (c *Consumer) settle(err error) {
	if err != nil {
		logger.Error("[Queue] Failed to settle message", "err", err)
	}
}

func (c *Consumer) observe(result string) {
	if c.metrics != nil {
		c.metrics.Job(result)
	}
}

// RetryCount reads the retry header. The broker may hand integers back with
// any width.
func RetryCount(headers amqp091.Table) int {
	switch v := headers[retryHeader].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	}
	return 0
}
