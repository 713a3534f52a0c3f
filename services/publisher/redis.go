package publisher

import (
	"context"
	"encoding/base64"

	"github.com/redis/go-redis/v9"

	"sjsage522/flatworker/logger"
	"sjsage522/flatworker/pkg/errors"
)

// RedisPublisher implements Publisher on a single Redis stream
type RedisPublisher struct {
	client          *redis.Client
	stream          string
	streamMaxLength int
}

// NewRedisPublisher creates a publisher on its own client
func NewRedisPublisher(addr string, db int, stream string, streamMaxLength int) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	return NewRedisPublisherWithClient(client, stream, streamMaxLength)
}

// NewRedisPublisherWithClient creates a publisher on an existing client
func NewRedisPublisherWithClient(client *redis.Client, stream string, streamMaxLength int) *RedisPublisher {
	return &RedisPublisher{
		client:          client,
		stream:          stream,
		streamMaxLength: streamMaxLength,
	}
}

// Publish adds a message to the stream
// The message is base64 encoded before publishing
func (p *RedisPublisher) Publish(ctx context.Context, key string, message []byte) error {
	encodedMessage := base64.StdEncoding.EncodeToString(message)

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			key: encodedMessage,
		},
	}
	if p.streamMaxLength > 0 {
		args.MaxLen = int64(p.streamMaxLength)
		args.Approx = true
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		logger.ForPublisher().Warn().Err(err).Str("stream", p.stream).Msg("Failed to publish listing")
		return errors.NewPublisher("redis", "xadd "+p.stream, err)
	}
	logger.ForPublisher().Debug().Str("stream", p.stream).Str("id", id).Msg("Published listing")
	return nil
}

// TrimStreams trims the stream to exactly the configured maximum length
func (p *RedisPublisher) TrimStreams(ctx context.Context) error {
	if p.streamMaxLength <= 0 {
		return nil
	}
	trimmed, err := p.client.XTrimMaxLen(ctx, p.stream, int64(p.streamMaxLength)).Result()
	if err != nil {
		return errors.NewPublisher("redis", "xtrim "+p.stream, err)
	}
	if trimmed > 0 {
		logger.ForPublisher().Debug().Int64("trimmed", trimmed).Str("stream", p.stream).Msg("Trimmed stream")
	}
	return nil
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
