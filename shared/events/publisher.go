package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultMaxLen caps each stream at roughly this many entries.
const DefaultMaxLen = 100_000

type Publisher struct {
	client *redis.Client
	maxLen int64
	now    func() time.Time
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{
		client: client,
		maxLen: DefaultMaxLen,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Publish appends the event to stream, trimming the stream approximately to
// the publisher's max length.
func (p *Publisher) Publish(ctx context.Context, stream, eventType string, data any) error {
	values, err := encodeEvent(Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: p.now(),
		Data:      data,
	})
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: values,
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}
	return nil
}

// encodeEvent builds the stream entry fields; "type" duplicates the event
// type so entries can be inspected without decoding the payload.
func encodeEvent(event Event) (map[string]any, error) {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", event.Type, err)
	}
	return map[string]any{
		"type":  event.Type,
		"event": string(eventJSON),
	}, nil
}

// Decode re-marshals the generic Data of an event into out.
func Decode(event Event, out any) error {
	dataBytes, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event data: %w", event.Type, err)
	}
	if err := json.Unmarshal(dataBytes, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s event: %w", event.Type, err)
	}
	return nil
}
