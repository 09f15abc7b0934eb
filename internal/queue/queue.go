// Package queue carries asynchronous evaluation requests over RabbitMQ.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/resume-screener/internal/ai"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DefaultQueue is the durable queue used when none is configured.
const DefaultQueue = "evaluation_queue"

// Request asks a worker to screen resumes against a job on behalf of a user.
type Request struct {
	OwnerID     string    `json:"ownerId"`
	Email       string    `json:"email,omitempty"`
	Role        string    `json:"role,omitempty"`
	JobID       string    `json:"jobId"`
	ResumeIDs   []string  `json:"resumeIds"`
	Max         int       `json:"max,omitempty"`
	RequestedAt time.Time `json:"requestedAt"`
}

// Handler processes one request. Returning an error that ai.Retryable accepts
// requeues the message once.
type Handler func(ctx context.Context, req Request) error

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Close() error
}

// RabbitMQ publishes and consumes Requests on one queue.
type RabbitMQ struct {
	conn    *amqp.Connection
	channel channel
	queue   string
	logger  *zap.Logger
}

// Dial connects to url and declares the durable queue.
func Dial(url, queue string, log *zap.Logger) (*RabbitMQ, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	if log == nil {
		log = zap.NewNop()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	log.Info("connected to rabbitmq", zap.String("queue", queue))

	return &RabbitMQ{conn: conn, channel: ch, queue: queue, logger: log}, nil
}

// Close shuts the channel and the connection.
func (r *RabbitMQ) Close() error {
	err := r.channel.Close()
	if r.conn != nil {
		err = errors.Join(err, r.conn.Close())
	}
	return err
}

// Publish enqueues req as a persistent JSON message.
func (r *RabbitMQ) Publish(ctx context.Context, req Request) error {
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.channel.PublishWithContext(ctx, "", r.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    req.RequestedAt,
		Body:         body,
	}); err != nil {
		return fmt.Errorf("publish request: %w", err)
	}
	return nil
}

// Consume delivers messages to handler one at a time until ctx is done or the
// channel closes. Messages are acknowledged manually.
func (r *RabbitMQ) Consume(ctx context.Context, handler Handler) error {
	if err := r.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}

	msgs, err := r.channel.Consume(r.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			r.handle(ctx, d, handler)
		}
	}
}

func (r *RabbitMQ) handle(ctx context.Context, d amqp.Delivery, handler Handler) {
	var req Request
	if err := json.Unmarshal(d.Body, &req); err != nil {
		r.logger.Warn("dropping malformed request", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	log := r.logger.With(zap.String("job_id", req.JobID), zap.Int("resumes", len(req.ResumeIDs)))

	err := handler(ctx, req)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	requeue := shouldRequeue(err) && !d.Redelivered
	log.Warn("request failed", zap.Bool("requeue", requeue), zap.Error(err))
	_ = d.Nack(false, requeue)
}

func shouldRequeue(err error) bool {
	var aiErr *ai.Error
	if errors.As(err, &aiErr) {
		return ai.Retryable(aiErr)
	}
	return ai.IsTimeout(err)
}
