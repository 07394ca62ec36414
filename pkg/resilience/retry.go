package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/richxcame/tartanilla-earnings/pkg/logger"
	"go.uber.org/zap"
)

// RetryConfig defines the configuration for retry behavior
type RetryConfig struct {
	// MaxAttempts includes the initial attempt.
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	// EnableJitter applies full jitter to every backoff.
	EnableJitter bool
	// RetryableChecker decides whether err is worth another attempt. Nil
	// retries everything except cancellation and an open breaker.
	RetryableChecker func(error) bool
}

// DefaultRetryConfig is the bounded policy used for calls to the hosted data API.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
		EnableJitter:      true,
	}
}

// BestEffortRetryConfig is used for side writes such as audit entries whose
// failure must not hold up the caller for long.
func BestEffortRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       2,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        500 * time.Millisecond,
		BackoffMultiplier: 2.0,
		EnableJitter:      true,
	}
}

// Retry executes operation with exponential backoff, labelling metrics with name.
func Retry(ctx context.Context, config RetryConfig, name string, operation Operation) (interface{}, error) {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}

	startTime := time.Now()
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			RecordRetryOperation(name, time.Since(startTime).Seconds(), attempt, false)
			return nil, err
		}

		result, err := operation(ctx)
		if err == nil {
			RecordRetryAttempt(name, true)
			RecordRetryOperation(name, time.Since(startTime).Seconds(), attempt, true)
			if attempt > 1 {
				logger.WithContext(ctx).Info("operation succeeded after retry",
					zap.String("operation", name),
					zap.Int("attempt", attempt),
				)
			}
			return result, nil
		}

		RecordRetryAttempt(name, false)
		lastErr = err

		if !shouldRetry(err, config) {
			RecordRetryOperation(name, time.Since(startTime).Seconds(), attempt, false)
			return nil, err
		}

		if attempt == config.MaxAttempts {
			logger.WithContext(ctx).Warn("operation failed after all retry attempts",
				zap.String("operation", name),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			break
		}

		backoff := calculateBackoff(attempt, config)
		RecordRetryBackoff(name, backoff.Seconds())
		logger.WithContext(ctx).Debug("retrying operation after backoff",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			RecordRetryOperation(name, time.Since(startTime).Seconds(), attempt, false)
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	RecordRetryOperation(name, time.Since(startTime).Seconds(), config.MaxAttempts, false)
	return nil, lastErr
}

// RetryWithBreaker runs every attempt through breaker. Once the breaker opens
// the loop stops, because ErrCircuitOpen is never retried.
func RetryWithBreaker(ctx context.Context, config RetryConfig, breaker *CircuitBreaker, name string, operation Operation) (interface{}, error) {
	return Retry(ctx, config, name, func(ctx context.Context) (interface{}, error) {
		return breaker.Execute(ctx, operation)
	})
}

func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	multiplier := config.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	backoff := float64(config.InitialBackoff) * math.Pow(multiplier, float64(attempt-1))
	if config.MaxBackoff > 0 && backoff > float64(config.MaxBackoff) {
		backoff = float64(config.MaxBackoff)
	}

	duration := time.Duration(backoff)
	if config.EnableJitter && duration > 0 {
		duration = time.Duration(rand.Int63n(int64(duration)))
	}
	return duration
}

func shouldRetry(err error, config RetryConfig) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	if config.RetryableChecker != nil {
		return config.RetryableChecker(err)
	}
	return true
}

// IsRetryableHTTPStatus reports whether an upstream status is transient:
// 408, 429, 500, 502, 503 or 504.
func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
