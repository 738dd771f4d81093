package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-fulfillment/internal/logger"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler processes one message. A message is committed only after its
// handler returns nil.
type Handler func(ctx context.Context, msg kafka.Message) error

type Consumer struct {
	Reader MessageReader
	Topic  string
	Logger *logger.Logger

	// MaxAttempts bounds handler calls per message; zero means one. Backoff
	// doubles after every failed attempt up to MaxBackoff.
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
}

// ErrHandlerExhausted is returned by Start when a message keeps failing. The
// message and everything after it stay uncommitted, so the group resumes
// from it on the next start.
var ErrHandlerExhausted = errors.New("handler failed on every attempt")

// NewConsumer creates a new Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{Reader: reader, Topic: topic, Logger: log}
}

// Start consumes until ctx is cancelled. Messages are handled in order and
// committed one by one; a message that exhausts its attempts stops the
// consumer instead of being skipped, since a later commit on the partition
// would move the group past it.
func (c *Consumer) Start(ctx context.Context, handler Handler) error {
	c.Logger.LogKafka("START", c.Topic, "consumer started")
	for {
		msg, err := c.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.Logger.LogKafka("STOP", c.Topic, "consumer stopped")
				return nil
			}
			return fmt.Errorf("fetch from %s: %w", c.Topic, err)
		}

		if err := c.handle(ctx, handler, msg); err != nil {
			if ctx.Err() != nil {
				c.Logger.LogKafka("STOP", c.Topic, "consumer stopped")
				return nil
			}
			c.Logger.Error("KAFKA", fmt.Sprintf("%s partition=%d offset=%d: giving up, stopping consumer: %v",
				c.Topic, msg.Partition, msg.Offset, err))
			return fmt.Errorf("%s partition=%d offset=%d: %w: %w", c.Topic, msg.Partition, msg.Offset, ErrHandlerExhausted, err)
		}

		if err := c.Reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.Logger.Error("KAFKA", fmt.Sprintf("%s offset=%d: commit failed: %v", c.Topic, msg.Offset, err))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, handler Handler, msg kafka.Message) error {
	attempts := max(c.MaxAttempts, 1)
	wait := c.Backoff
	var err error
	for i := 1; i <= attempts; i++ {
		if err = handler(ctx, msg); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		c.Logger.Warn("KAFKA", fmt.Sprintf("%s offset=%d: attempt %d/%d failed: %v", c.Topic, msg.Offset, i, attempts, err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait = min(wait*2, c.maxBackoff())
	}
	return err
}

func (c *Consumer) maxBackoff() time.Duration {
	if c.MaxBackoff > 0 {
		return c.MaxBackoff
	}
	return 30 * time.Second
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.Reader.Close()
}
