package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type Handler func(ctx context.Context, event Event) error

// Subscriber consumes a stream as one member of a consumer group. Messages are
// acknowledged only after the handler succeeds.
type Subscriber struct {
	client        *redis.Client
	group         string
	consumer      string
	stream        string
	handler       Handler
	batchSize     int64
	blockDuration time.Duration
	logger        *slog.Logger
}

type SubscriberConfig struct {
	Group         string
	Consumer      string
	Stream        string
	Handler       Handler
	BatchSize     int64
	BlockDuration time.Duration
	Logger        *slog.Logger
}

func NewSubscriber(client *redis.Client, config SubscriberConfig) *Subscriber {
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}
	if config.BlockDuration == 0 {
		config.BlockDuration = 5 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Subscriber{
		client:        client,
		group:         config.Group,
		consumer:      config.Consumer,
		stream:        config.Stream,
		handler:       config.Handler,
		batchSize:     config.BatchSize,
		blockDuration: config.BlockDuration,
		logger:        config.Logger.With("stream", config.Stream, "group", config.Group),
	}
}

// retryPendingEvery is how many new-message reads Start performs between
// passes over this consumer's pending entries.
const retryPendingEvery = 10

// Start blocks until ctx is cancelled. Messages left pending by an earlier
// failure, in this run or a previous one, are retried on start and then
// periodically.
func (s *Subscriber) Start(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	s.logger.InfoContext(ctx, "subscriber started", "consumer", s.consumer)

	for reads := 0; ; reads++ {
		if ctx.Err() != nil {
			s.logger.InfoContext(ctx, "subscriber stopping")
			return ctx.Err()
		}

		read := s.ReadOnce
		if reads%retryPendingEvery == 0 {
			read = s.RetryPending
		}
		if _, err := read(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.ErrorContext(ctx, "failed to read messages", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

// ReadOnce reads one batch of new messages and returns how many were handled
// and acknowledged.
func (s *Subscriber) ReadOnce(ctx context.Context) (int, error) {
	return s.read(ctx, ">", s.blockDuration)
}

// RetryPending re-delivers messages this consumer has read but not
// acknowledged, typically because the handler failed. It never blocks.
func (s *Subscriber) RetryPending(ctx context.Context) (int, error) {
	return s.read(ctx, "0", -1)
}

func (s *Subscriber) read(ctx context.Context, id string, block time.Duration) (int, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, id},
		Count:    s.batchSize,
		Block:    block,
	}).Result()

	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read from stream: %w", err)
	}

	handled := 0
	for _, stream := range streams {
		for _, message := range stream.Messages {
			// A pending entry trimmed from the stream comes back without values.
			if message.Values == nil {
				s.ack(ctx, message.ID)
				continue
			}
			if err := s.processMessage(ctx, message); err != nil {
				// Stays in the pending list until RetryPending succeeds.
				s.logger.ErrorContext(ctx, "failed to process message", "id", message.ID, "error", err)
				continue
			}
			if s.ack(ctx, message.ID) {
				handled++
			}
		}
	}

	return handled, nil
}

func (s *Subscriber) ack(ctx context.Context, id string) bool {
	if err := s.client.XAck(ctx, s.stream, s.group, id).Err(); err != nil {
		s.logger.ErrorContext(ctx, "failed to ack message", "id", id, "error", err)
		return false
	}
	return true
}

func (s *Subscriber) processMessage(ctx context.Context, message redis.XMessage) error {
	eventData, ok := message.Values["event"].(string)
	if !ok {
		return errors.New("invalid message format")
	}

	var event Event
	if err := json.Unmarshal([]byte(eventData), &event); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return s.handler(ctx, event)
}
