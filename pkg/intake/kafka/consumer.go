// Package kafka consumes completed-chat events from a Kafka topic.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/papercomputeco/automem/pkg/intake"
)

// DefaultGroupID is the consumer group used when none is configured.
const DefaultGroupID = "automem"

// Config holds configuration for a Consumer.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string

	Logger *slog.Logger
}

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads completed-chat events and dispatches them to a handler.
// Offsets are committed after dispatch, including for payloads that fail to
// decode, so a bad message is never redelivered.
type Consumer struct {
	reader  MessageReader
	handler intake.Handler
	logger  *slog.Logger
}

// NewConsumer creates a Consumer reading c.Topic as part of c.GroupID.
func NewConsumer(c Config, h intake.Handler) (*Consumer, error) {
	if len(c.Brokers) == 0 {
		return nil, errors.New("kafka consumer: at least one broker is required")
	}
	if c.Topic == "" {
		return nil, errors.New("kafka consumer: topic is required")
	}

	group := c.GroupID
	if group == "" {
		group = DefaultGroupID
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: c.Brokers,
		Topic:   c.Topic,
		GroupID: group,
	})
	return NewConsumerWithReader(reader, h, c.Logger), nil
}

// NewConsumerWithReader wraps an existing reader.
func NewConsumerWithReader(r MessageReader, h intake.Handler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{reader: r, handler: h, logger: logger}
}

// Run consumes until ctx is done. It returns nil on cancellation and the
// reader's error otherwise.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch completed-chat message: %w", err)
		}

		ev, err := intake.Dispatch(ctx, c.handler, msg.Value)
		if err != nil {
			c.logger.Warn("skipping completed-chat message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		} else {
			c.logger.Debug("completed chat received",
				"chat_id", ev.ChatID,
				"messages", len(ev.Messages),
			)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit completed-chat message: %w", err)
		}
	}
}

// Close closes the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
