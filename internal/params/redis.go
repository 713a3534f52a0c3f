package params

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"sjsage522/flatworker/logger"
)

// DefaultRetryDelay is the pause between subscription attempts
const DefaultRetryDelay = 5 * time.Second

// RedisSync mirrors operating parameters from a Redis hash written by the
// front-end. A message on the update channel triggers a reload.
type RedisSync struct {
	client  *redis.Client
	key     string
	channel string
	params  *Params

	// RetryDelay is how long Run waits before resubscribing after a failure
	RetryDelay time.Duration
}

// NewRedisSync creates a sync from the hash at key, reloading on channel
func NewRedisSync(client *redis.Client, key, channel string, params *Params) *RedisSync {
	return &RedisSync{
		client:  client,
		key:     key,
		channel: channel,
		params:  params,

		RetryDelay: DefaultRetryDelay,
	}
}

// Load merges the contents of the hash over the local parameters, so values
// seeded from config survive a partial hash. Values that are not numeric are
// skipped. An empty hash is seeded with the local parameters.
func (s *RedisSync) Load(ctx context.Context) error {
	log := logger.ForParams()

	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return fmt.Errorf("load parameters from %s: %w", s.key, err)
	}

	if len(fields) == 0 {
		local := s.params.Snapshot()
		if len(local) == 0 {
			return nil
		}
		if err := s.store(ctx, local); err != nil {
			return err
		}
		log.Info().Interface("params", local).Msg("Seeded empty parameter hash")
		return nil
	}

	values := make(map[string]float64, len(fields))
	for k, v := range fields {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			log.Warn().Str("key", k).Str("value", v).Msg("Ignoring non-numeric parameter")
			continue
		}
		values[k] = f
	}

	s.params.Merge(values)
	log.Debug().Interface("params", s.params.Snapshot()).Msg("Operating parameters reloaded")
	return nil
}

// Run keeps the parameters in sync until ctx is done. Subscription failures
// are logged and retried after RetryDelay; Run only returns ctx.Err().
func (s *RedisSync) Run(ctx context.Context) error {
	log := logger.ForParams()

	for {
		err := s.subscribe(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Dur("retry_in", s.RetryDelay).Msg("Parameter sync interrupted")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.RetryDelay):
		}
	}
}

// subscribe reloads on every message of the update channel until the
// subscription fails or ctx is done
func (s *RedisSync) subscribe(ctx context.Context) error {
	log := logger.ForParams()

	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	// Wait for the subscription so no update published after this point is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	if err := s.Load(ctx); err != nil {
		log.Warn().Err(err).Msg("Initial parameter load failed")
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription to %s closed", s.channel)
			}
			if err := s.Load(ctx); err != nil {
				log.Error().Err(err).Msg("Failed to reload operating parameters")
			}
		}
	}
}

// Publish writes values to the hash and notifies subscribers
func (s *RedisSync) Publish(ctx context.Context, values map[string]float64) error {
	if err := s.store(ctx, values); err != nil {
		return err
	}
	return s.client.Publish(ctx, s.channel, "updated").Err()
}

func (s *RedisSync) store(ctx context.Context, values map[string]float64) error {
	fields := make(map[string]interface{}, len(values))
	for k, v := range values {
		fields[k] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	if err := s.client.HSet(ctx, s.key, fields).Err(); err != nil {
		return fmt.Errorf("store parameters: %w", err)
	}
	return nil
}
