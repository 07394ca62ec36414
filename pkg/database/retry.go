package database

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/richxcame/tartanilla-earnings/pkg/resilience"
)

// retryableStates are SQLSTATE codes that clear up on their own: lock
// contention, connection churn and a server that is still starting.
var retryableStates = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"53000": true, // insufficient_resources
	"53300": true, // too_many_connections
	"08000": true,
	"08003": true,
	"08006": true,
	"57P01": true, // admin_shutdown
	"57P03": true, // cannot_connect_now
}

func postgresRetryConfig() resilience.RetryConfig {
	config := resilience.DefaultRetryConfig()
	config.MaxAttempts = 3
	config.InitialBackoff = 100 * time.Millisecond
	config.MaxBackoff = 2 * time.Second
	config.RetryableChecker = isPostgresRetryable
	return config
}

// RetryableQueryRow runs a single-row query and scans it, retrying transient failures.
func RetryableQueryRow[T any](ctx context.Context, pool interface {
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}, query string, args []interface{}, scan func(pgx.Row) (T, error)) (T, error) {
	result, err := resilience.Retry(ctx, postgresRetryConfig(), "database.query_row", func(ctx context.Context) (interface{}, error) {
		return scan(pool.QueryRow(ctx, query, args...))
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

func isPostgresRetryable(err error) bool {
	if err == nil || errors.Is(err, pgx.ErrNoRows) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return retryableStates[pgErr.Code]
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
