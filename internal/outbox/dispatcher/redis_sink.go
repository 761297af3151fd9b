package dispatcher

import (
	"context"
	"errors"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/qrpay/internal/outbox/domain"
)

// StreamSink appends events to a Redis stream.
type StreamSink struct {
	client *redis.Client
	stream string
}

func NewStreamSink(client *redis.Client, stream string) *StreamSink {
	return &StreamSink{client: client, stream: stream}
}

func (s *StreamSink) Publish(ctx context.Context, event domain.Event) error {
	if s == nil || s.client == nil {
		return errors.New("redis stream sink not configured")
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"event_id":     event.ID.String(),
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID.String(),
			"payload":      string(event.Payload),
		},
	}).Err()
}
