package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/newsgraph/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// ResolveQueue carries ResolveJob messages. Its companions are
// ResolveQueue+"_retry", which dead-letters back after RetryDelay, and
// ResolveQueue+"_dlq" for jobs that ran out of retries.
const ResolveQueue = "resolve_queue"

const RetryDelay = 10 * time.Second

// Channel is the part of *amqp091.Channel used for declaring and publishing.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

func Init(url string) *amqp091.Connection {
	conn, err := amqp091.Dial(url)
	if err != nil {
		logger.Fatal("[Queue] Failed to connect to RabbitMQ", "err", err)
	}

	return conn
}

// SetupQueues declares every queue together with its retry and dead-letter
// companions. Declaring an existing queue with the same arguments is a no-op.
func SetupQueues(ch Channel, queueNames []string) error {
	for _, name := range queueNames {
		_, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", name, err)
		}

		dlqName := name + "_dlq"
		_, err = ch.QueueDeclare(
			dlqName,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", dlqName, err)
		}

		retryName := name + "_retry"
		_, err = ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             int32(RetryDelay.Milliseconds()),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", retryName, err)
		}
	}

	return nil
}

func PublishFIFO(ctx context.Context, ch Channel, queueName string, data []byte, headers amqp091.Table) error {
	q, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		Headers:      headers,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}

	return ch.PublishWithContext(
		ctx,
		"",
		q.Name,
		false,
		false,
		publishing,
	)
}
