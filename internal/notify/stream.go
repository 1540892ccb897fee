package notify

import (
	"context"

	"github.com/go-redis/redis/v8"

	rediscommon "dineflow/common/redis"
)

// StreamNotifier appends events to a Redis stream
type StreamNotifier struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamNotifier(client *redis.Client, stream string) *StreamNotifier {
	return &StreamNotifier{client: client, stream: stream, maxLen: 10000}
}

func (n *StreamNotifier) Name() string { return "redis_stream" }

func (n *StreamNotifier) Notify(ctx context.Context, ev Event) error {
	_, err := rediscommon.PublishJSONToStream(ctx, n.client, n.stream, n.maxLen, ev)
	return err
}
