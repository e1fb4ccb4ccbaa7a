package cache

import (
	"context"
	"time"
)

// Store is the key-value backend shared by the configuration store and
// the audit trail. It exposes the small Redis surface those services
// need: plain KV, bounded lists and pub/sub fan-out.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, pattern string) ([]string, error)

	// PushBounded prepends to a list and trims it to maxLen entries.
	PushBounded(ctx context.Context, key string, value interface{}, maxLen int64) error
	Range(ctx context.Context, key string, start, stop int64) ([]string, error)

	Publish(ctx context.Context, channel string, payload interface{}) error
	// Subscribe delivers channel payloads to handler until ctx is
	// cancelled.
	Subscribe(ctx context.Context, channel string, handler func(payload string)) error

	HealthCheck(ctx context.Context) error
	Close() error
}
