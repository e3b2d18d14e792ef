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

// Subscriber consumes a stream through a consumer group. Messages whose
// handler fails stay pending and are reclaimed once they have been idle for
// ClaimIdle; after MaxDeliveries attempts they are moved to the dead-letter
// stream and acknowledged.
type Subscriber struct {
	client        *redis.Client
	group         string
	consumer      string
	stream        string
	deadLetter    string
	handler       Handler
	batchSize     int64
	blockDuration time.Duration
	claimIdle     time.Duration
	maxDeliveries int64
	logger        *slog.Logger
}

type SubscriberConfig struct {
	Group         string
	Consumer      string
	Stream        string
	Handler       Handler
	BatchSize     int64
	BlockDuration time.Duration
	ClaimIdle     time.Duration
	MaxDeliveries int64
	Logger        *slog.Logger
}

func NewSubscriber(client *redis.Client, config SubscriberConfig) *Subscriber {
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}
	if config.BlockDuration == 0 {
		config.BlockDuration = 5 * time.Second
	}
	if config.ClaimIdle == 0 {
		config.ClaimIdle = time.Minute
	}
	if config.MaxDeliveries == 0 {
		config.MaxDeliveries = 5
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Subscriber{
		client:        client,
		group:         config.Group,
		consumer:      config.Consumer,
		stream:        config.Stream,
		deadLetter:    DeadLetterStream(config.Stream),
		handler:       config.Handler,
		batchSize:     config.BatchSize,
		blockDuration: config.BlockDuration,
		claimIdle:     config.ClaimIdle,
		maxDeliveries: config.MaxDeliveries,
		logger:        config.Logger.With("stream", config.Stream, "group", config.Group, "consumer", config.Consumer),
	}
}

// DeadLetterStream names the stream that receives messages a subscriber of
// stream gave up on.
func DeadLetterStream(stream string) string {
	return stream + ".dead"
}

func (s *Subscriber) Start(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	s.logger.Info("subscriber started")

	lastClaim := time.Now()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("subscriber stopping")
			return ctx.Err()
		default:
		}

		if time.Since(lastClaim) >= s.claimIdle {
			if err := s.reclaim(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("error reclaiming pending messages", "error", err)
			}
			lastClaim = time.Now()
		}
		if err := s.readMessages(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("error reading messages", "error", err)
			time.Sleep(time.Second)
		}
	}
}

func (s *Subscriber) readMessages(ctx context.Context) error {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, ">"},
		Count:    s.batchSize,
		Block:    s.blockDuration,
	}).Result()

	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, stream := range streams {
		s.handleBatch(ctx, stream.Messages)
	}
	return nil
}

// reclaim takes over messages other consumers (or this one) left pending.
func (s *Subscriber) reclaim(ctx context.Context) error {
	start := "0-0"
	for {
		messages, next, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   s.stream,
			Group:    s.group,
			Consumer: s.consumer,
			MinIdle:  s.claimIdle,
			Start:    start,
			Count:    s.batchSize,
		}).Result()
		if err != nil {
			return fmt.Errorf("failed to claim pending messages: %w", err)
		}

		var retry []redis.XMessage
		for _, message := range messages {
			deliveries, err := s.deliveries(ctx, message.ID)
			if err != nil {
				return err
			}
			if deliveries > s.maxDeliveries {
				s.deadLetterMessage(ctx, message, deliveries)
				continue
			}
			retry = append(retry, message)
		}
		s.handleBatch(ctx, retry)

		if next == "0-0" || len(messages) == 0 {
			return nil
		}
		start = next
	}
}

func (s *Subscriber) deliveries(ctx context.Context, id string) (int64, error) {
	pending, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: s.stream,
		Group:  s.group,
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to inspect pending message %s: %w", id, err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	return pending[0].RetryCount, nil
}

func (s *Subscriber) deadLetterMessage(ctx context.Context, message redis.XMessage, deliveries int64) {
	values := make(map[string]any, len(message.Values)+1)
	for k, v := range message.Values {
		values[k] = v
	}
	values["sourceId"] = message.ID

	if err := s.client.XAdd(ctx, &redis.XAddArgs{Stream: s.deadLetter, Values: values}).Err(); err != nil {
		s.logger.Error("failed to dead-letter message", "messageId", message.ID, "error", err)
		return
	}
	s.logger.Warn("message dead-lettered", "messageId", message.ID, "deliveries", deliveries)
	s.ack(ctx, message.ID)
}

func (s *Subscriber) handleBatch(ctx context.Context, messages []redis.XMessage) {
	for _, message := range messages {
		if err := s.processMessage(ctx, message); err != nil {
			// left pending for reclaim
			s.logger.Warn("failed to process message", "messageId", message.ID, "error", err)
			continue
		}
		s.ack(ctx, message.ID)
	}
}

func (s *Subscriber) ack(ctx context.Context, id string) {
	if err := s.client.XAck(ctx, s.stream, s.group, id).Err(); err != nil {
		s.logger.Warn("failed to ack message", "messageId", id, "error", err)
	}
}

func (s *Subscriber) processMessage(ctx context.Context, message redis.XMessage) error {
	event, err := parseMessage(message.Values)
	if err != nil {
		return err
	}
	return s.handler(ctx, event)
}

func parseMessage(values map[string]any) (Event, error) {
	eventData, ok := values["event"].(string)
	if !ok {
		return Event{}, fmt.Errorf("invalid message format")
	}

	var event Event
	if err := json.Unmarshal([]byte(eventData), &event); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if event.Type == "" {
		return Event{}, fmt.Errorf("event %s has no type", event.ID)
	}
	return event, nil
}
