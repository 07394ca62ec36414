// Package postgrest is a small builder-style client for the hosted Postgres
// REST API (PostgREST dialect) that backs earnings, payouts and settings.
package postgrest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/richxcame/tartanilla-earnings/pkg/logger"
	"github.com/richxcame/tartanilla-earnings/pkg/middleware"
	"github.com/richxcame/tartanilla-earnings/pkg/resilience"
)

// Config identifies the REST endpoint.
type Config struct {
	// BaseURL is the project URL, e.g. https://abc.supabase.co. The
	// /rest/v1 suffix is appended unless already present.
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client executes table queries with bounded retry and a circuit breaker.
type Client struct {
	httpClient *http.Client
	restURL    string
	apiKey     string
	retry      resilience.RetryConfig
	breaker    *resilience.CircuitBreaker
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetry overrides the retry policy. The retryable checker is always
// replaced with the client's own classification.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithBreaker routes every attempt through breaker.
func WithBreaker(b *resilience.CircuitBreaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

// New creates a client for cfg.
func New(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	restURL := strings.TrimRight(cfg.BaseURL, "/")
	if !strings.HasSuffix(restURL, "/rest/v1") {
		restURL += "/rest/v1"
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		restURL:    restURL,
		apiKey:     cfg.APIKey,
		retry:      resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.retry.RetryableChecker = IsRetryable
	return c
}

// From starts a query against table.
func (c *Client) From(table string) *Query {
	return &Query{
		client:     c,
		table:      table,
		method:     http.MethodGet,
		params:     url.Values{},
		idempotent: true,
	}
}

// Ping checks that the REST root answers below 500.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.restURL+"/", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("postgrest ping: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("postgrest ping: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey == "" {
		return
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

func (c *Client) execute(ctx context.Context, q *Query) (*Result, error) {
	operation := func(ctx context.Context) (interface{}, error) {
		return c.do(ctx, q)
	}

	name := "postgrest." + strings.ToLower(q.method) + "." + q.table
	retry := c.retry
	if !q.idempotent {
		retry.MaxAttempts = 1
	}

	result, err := resilience.RetryWithBreaker(ctx, retry, c.breaker, name, operation)
	if err != nil {
		return nil, err
	}
	return result.(*Result), nil
}

func (c *Client) do(ctx context.Context, q *Query) (*Result, error) {
	var body io.Reader
	if q.body != nil {
		payload, err := json.Marshal(q.body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s body: %w", q.table, err)
		}
		body = bytes.NewReader(payload)
	}

	endpoint := c.restURL + "/" + url.PathEscape(q.table)
	if encoded := q.encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, q.method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(q.prefer) > 0 {
		req.Header.Set("Prefer", strings.Join(q.prefer, ","))
	}
	if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
		req.Header.Set(middleware.CorrelationIDHeader, correlationID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", q.method, q.table, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", q.table, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, newError(resp.StatusCode, raw)
	}

	return &Result{
		Status: resp.StatusCode,
		Data:   raw,
		Count:  parseContentRange(resp.Header.Get("Content-Range")),
	}, nil
}

// Result is a successful response.
type Result struct {
	Status int
	Data   []byte
	// Count is the exact row count when requested, otherwise -1.
	Count int64
}

// Decode unmarshals the response rows into dest. An empty body leaves dest untouched.
func (r *Result) Decode(dest interface{}) error {
	if r == nil || len(bytes.TrimSpace(r.Data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Data, dest); err != nil {
		return fmt.Errorf("decode rows: %w", err)
	}
	return nil
}

// parseContentRange extracts the total from "0-24/3573" or "*/0".
func parseContentRange(header string) int64 {
	idx := strings.LastIndexByte(header, '/')
	if idx < 0 || idx == len(header)-1 {
		return -1
	}
	total, err := strconv.ParseInt(header[idx+1:], 10, 64)
	if err != nil {
		return -1
	}
	return total
}

// Error is a non-2xx answer from the REST API.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("postgrest %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("postgrest %d: %s", e.Status, e.Message)
}

func newError(status int, body []byte) *Error {
	e := &Error{Status: status}
	if err := json.Unmarshal(body, e); err != nil || e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

// IsRetryable treats transport failures and transient statuses as retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return resilience.IsRetryableHTTPStatus(apiErr.Status)
	}
	return true
}

// IsUpstreamFailure reports whether err means the API was unreachable or
// broken, as opposed to rejecting the request. Breakers trip only on these.
func IsUpstreamFailure(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError || apiErr.Status == http.StatusTooManyRequests
	}
	return err != nil && !errors.Is(err, context.Canceled)
}

// IsUniqueViolation reports whether the API rejected a write because it
// collided with a unique constraint.
func IsUniqueViolation(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == "23505" || apiErr.Status == http.StatusConflict
}
