package health

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Checker is a health check function that returns an error if unhealthy
type Checker func() error

// Pinger is anything that can prove it reaches its backend. The PostgREST
// client and the Redis wrapper both satisfy it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a plain function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f(ctx).
func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// ContextFree adapts a Ping without a context, such as the NATS bus.
func ContextFree(ping func() error) Pinger {
	return PingFunc(func(context.Context) error { return ping() })
}

// CheckerConfig holds configuration for health checkers
type CheckerConfig struct {
	Timeout time.Duration
}

// DefaultCheckerConfig returns default configuration for health checkers
func DefaultCheckerConfig() CheckerConfig {
	return CheckerConfig{
		Timeout: 2 * time.Second,
	}
}

// PingChecker returns a Checker that pings p with the default timeout.
func PingChecker(name string, p Pinger) Checker {
	return PingCheckerWithConfig(name, p, DefaultCheckerConfig())
}

// PingCheckerWithConfig returns a ping checker with custom configuration
func PingCheckerWithConfig(name string, p Pinger, cfg CheckerConfig) Checker {
	return func() error {
		if p == nil {
			return fmt.Errorf("%s is not configured", name)
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
		defer cancel()

		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
		return nil
	}
}

// AsyncChecker wraps a checker to run asynchronously with a timeout
func AsyncChecker(checker Checker, timeout time.Duration) Checker {
	return func() error {
		errChan := make(chan error, 1)
		go func() {
			errChan <- checker()
		}()

		select {
		case err := <-errChan:
			return err
		case <-time.After(timeout):
			return fmt.Errorf("health check timeout after %v", timeout)
		}
	}
}

// CachedChecker caches the result of a health check for a given duration.
// Readiness checks hit it every few seconds; the upstream sees at most one
// ping per TTL.
type CachedChecker struct {
	checker    Checker
	cacheTTL   time.Duration
	mu         sync.Mutex
	lastCheck  time.Time
	lastResult error
}

// NewCachedChecker creates a new cached health checker
func NewCachedChecker(checker Checker, cacheTTL time.Duration) *CachedChecker {
	return &CachedChecker{
		checker:  checker,
		cacheTTL: cacheTTL,
	}
}

// Check runs the health check, using cached result if still valid
func (c *CachedChecker) Check() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if !c.lastCheck.IsZero() && now.Sub(c.lastCheck) < c.cacheTTL {
		return c.lastResult
	}

	c.lastResult = c.checker()
	c.lastCheck = now
	return c.lastResult
}
