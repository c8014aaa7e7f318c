// internal/infrastructure/messaging/kafka/consumer.go
package kafka

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/stock-reservation/internal/config"
	"github.com/your-org/stock-reservation/internal/pkg/metrics"
)

// ErrMalformed marks a message that can never be processed. The consumer
// commits it and moves on.
var ErrMalformed = errors.New("malformed message")

// Reader is the subset of *kafka.Reader the consumer needs
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler processes one message. Returning an error wrapping ErrMalformed
// skips the message; any other error is retried.
type Handler func(ctx context.Context, msg kafka.Message) error

// ConsumerOptions tunes redelivery of failed messages
type ConsumerOptions struct {
	MaxAttempts int
	Backoff     time.Duration
	Logger      logrus.FieldLogger
	Metrics     *metrics.Metrics
}

// Consumer drives one topic: fetch, handle, commit
type Consumer struct {
	reader  Reader
	topic   string
	handler Handler
	opts    ConsumerOptions
	logger  logrus.FieldLogger
}

// NewReader opens a consumer-group reader for topic
func NewReader(cfg config.KafkaConfig, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})
}

// NewConsumer creates a consumer for topic
func NewConsumer(reader Reader, topic string, handler Handler, opts ConsumerOptions) *Consumer {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 200 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Consumer{
		reader:  reader,
		topic:   topic,
		handler: handler,
		opts:    opts,
		logger:  logger.WithField("topic", topic),
	}
}

// Topic returns the topic this consumer reads
func (c *Consumer) Topic() string {
	return c.topic
}

// Run consumes until ctx is cancelled or the reader is closed
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("🔄 Kafka consumer started")
	defer c.logger.Info("Kafka consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			c.logger.WithError(err).Error("Failed to fetch message")
			if !sleep(ctx, time.Second) {
				return nil
			}
			continue
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.WithError(err).WithField("offset", msg.Offset).Error("Failed to commit message")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	log := c.logger.WithFields(logrus.Fields{
		"partition": msg.Partition,
		"offset":    msg.Offset,
		"key":       string(msg.Key),
	})

	for attempt := 1; ; attempt++ {
		err := c.handler(ctx, msg)
		switch {
		case err == nil:
			c.opts.Metrics.EventConsumed(c.topic, "handled")
			return
		case errors.Is(err, ErrMalformed):
			log.WithError(err).Warn("Skipping undecodable message")
			c.opts.Metrics.EventConsumed(c.topic, "malformed")
			return
		case attempt < c.opts.MaxAttempts && ctx.Err() == nil:
			log.WithError(err).WithField("attempt", attempt).Warn("Message handling failed, retrying")
			if !sleep(ctx, c.opts.Backoff*time.Duration(attempt)) {
				return
			}
		default:
			log.WithError(err).WithField("attempt", attempt).Error("Giving up on message")
			c.opts.Metrics.EventConsumed(c.topic, "failed")
			return
		}
	}
}

// Close closes the underlying reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// RunAll runs every consumer until ctx ends, closing readers on the way out
func RunAll(ctx context.Context, consumers ...*Consumer) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, consumer := range consumers {
		consumer := consumer
		g.Go(func() error {
			defer consumer.Close()
			return consumer.Run(ctx)
		})
	}
	return g.Wait()
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
