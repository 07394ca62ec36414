package redis

import (
	"context"
	"time"
)

// ClientInterface is the cache surface the settings mirror and health checks use.
type ClientInterface interface {
	RetryableSet(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	RetryableGet(ctx context.Context, key string) (string, error)
	Ping(ctx context.Context) error
	Close() error
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)
