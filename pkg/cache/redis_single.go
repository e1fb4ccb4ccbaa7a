package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platformbuilds/opsagents/pkg/logger"
)

// redisSingleImpl implements Store against a single-node Redis/Valkey
// instance.
type redisSingleImpl struct {
	client *redis.Client
	logger logger.Logger
	ttl    time.Duration
}

// NewRedisSingle connects to a single-node Redis and verifies the
// connection with a ping.
func NewRedisSingle(addr string, db int, password string, defaultTTL time.Duration, log logger.Logger) (Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis single-node: %w", err)
	}

	if log == nil {
		log = logger.New("info")
	}
	return &redisSingleImpl{
		client: client,
		logger: log,
		ttl:    defaultTTL,
	}, nil
}

func (r *redisSingleImpl) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("key not found: %s", key)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *redisSingleImpl) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return fmt.Errorf("marshal value for key %s: %w", key, err)
	}
	if ttl <= 0 {
		ttl = r.ttl
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

func (r *redisSingleImpl) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *redisSingleImpl) Keys(ctx context.Context, pattern string) ([]string, error) {
	return r.client.Keys(ctx, pattern).Result()
}

func (r *redisSingleImpl) PushBounded(ctx context.Context, key string, value interface{}, maxLen int64) error {
	data, err := encode(value)
	if err != nil {
		return fmt.Errorf("marshal value for list %s: %w", key, err)
	}
	pipe := r.client.Pipeline()
	pipe.LPush(ctx, key, data)
	if maxLen > 0 {
		pipe.LTrim(ctx, key, 0, maxLen-1)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *redisSingleImpl) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return r.client.LRange(ctx, key, start, stop).Result()
}

func (r *redisSingleImpl) Publish(ctx context.Context, channel string, payload interface{}) error {
	data, err := encode(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for channel %s: %w", channel, err)
	}
	return r.client.Publish(ctx, channel, data).Err()
}

// Subscribe pumps messages to the handler on a background goroutine
// until the context is cancelled.
func (r *redisSingleImpl) Subscribe(ctx context.Context, channel string, handler func(payload string)) error {
	sub := r.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe to %s: %w", channel, err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler(msg.Payload)
			}
		}
	}()
	return nil
}

func (r *redisSingleImpl) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisSingleImpl) Close() error {
	return r.client.Close()
}

func encode(value interface{}) ([]byte, error) {
	switch x := value.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	default:
		return json.Marshal(x)
	}
}
