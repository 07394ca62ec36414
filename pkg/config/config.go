package config

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Supabase      SupabaseConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	NATS          NATSConfig
	Earnings      EarningsConfig
	Breakeven     BreakevenConfig
	Notifications NotificationsConfig
	Resilience    ResilienceConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         string
	Environment  string
	ServiceName  string
	ReadTimeout    int
	WriteTimeout   int
	RequestTimeout int    // seconds; 0 disables the per-request deadline
	CORSOrigins    string // Comma-separated list of allowed origins
}

// SupabaseConfig points at the hosted REST data API.
type SupabaseConfig struct {
	URL            string
	ServiceKey     string
	TimeoutSeconds int
}

// DatabaseConfig holds the direct Postgres connection used for schema migrations.
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

// NATSConfig holds event bus configuration
type NATSConfig struct {
	Enabled    bool
	URL        string
	StreamName string
}

// EarningsConfig drives status filtering and revenue splitting.
type EarningsConfig struct {
	IncludeStatuses        []string
	ExcludeStatuses        []string
	ShareBookingPct        decimal.Decimal
	ShareCustomPct         decimal.Decimal
	DefaultOrganizationPct decimal.Decimal // percent, e.g. 20
	PercentagePollInterval time.Duration
}

// BreakevenConfig drives period windows and the snapshot job.
type BreakevenConfig struct {
	WeekMode         string
	DisplayTZ        string
	BucketTZ         string
	DayCutoffHour    int
	CronSecret       string
	SnapshotInterval time.Duration
}

// NotificationsConfig sizes the notification worker pool.
type NotificationsConfig struct {
	Workers   int
	QueueSize int
}

// ResilienceConfig groups runtime resilience controls
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// CircuitBreakerConfig captures default and per-service breaker tuning
type CircuitBreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	SuccessThreshold int
	TimeoutSeconds   int
	IntervalSeconds  int
	ServiceOverrides map[string]CircuitBreakerSettings
}

// CircuitBreakerSettings overrides defaults for a specific upstream service
type CircuitBreakerSettings struct {
	FailureThreshold int `json:"failure_threshold"`
	SuccessThreshold int `json:"success_threshold"`
	TimeoutSeconds   int `json:"timeout_seconds"`
	IntervalSeconds  int `json:"interval_seconds"`
}

const (
	defaultIncludeStatuses = "finalized,pending"
	defaultExcludeStatuses = "reversed"
)

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Environment:    getEnv("ENVIRONMENT", "development"),
			ServiceName:    serviceName,
			ReadTimeout:    getEnvAsInt("READ_TIMEOUT", 10),
			WriteTimeout:   getEnvAsInt("WRITE_TIMEOUT", 30),
			RequestTimeout: getEnvAsInt("REQUEST_TIMEOUT", 25),
			CORSOrigins:    getEnv("CORS_ORIGINS", "http://localhost:3000"),
		},
		Supabase: SupabaseConfig{
			URL:            strings.TrimRight(getEnv("SUPABASE_URL", ""), "/"),
			ServiceKey:     getEnv("SUPABASE_SERVICE_ROLE_KEY", getEnv("SUPABASE_KEY", "")),
			TimeoutSeconds: getEnvAsInt("SUPABASE_TIMEOUT_SECONDS", 15),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "postgres"),
			SSLMode:  getEnv("DB_SSLMODE", "require"),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 4),
			MinConns: getEnvAsInt("DB_MIN_CONNS", 1),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		NATS: NATSConfig{
			Enabled:    getEnvAsBool("NATS_ENABLED", false),
			URL:        getEnv("NATS_URL", "nats://127.0.0.1:4222"),
			StreamName: getEnv("NATS_STREAM", "EARNINGS"),
		},
		Earnings: EarningsConfig{
			IncludeStatuses:        ParseList(getEnvNonBlank("EARNINGS_INCLUDE_STATUSES", defaultIncludeStatuses)),
			ExcludeStatuses:        ParseList(lookupEnv("EARNINGS_EXCLUDE_STATUSES", defaultExcludeStatuses)),
			ShareBookingPct:        getEnvAsDecimal("EARNINGS_SHARE_BOOKING_PCT", decimal.RequireFromString("0.80")),
			ShareCustomPct:         getEnvAsDecimal("EARNINGS_SHARE_CUSTOM_PCT", decimal.RequireFromString("1.00")),
			DefaultOrganizationPct: getEnvAsDecimal("EARNINGS_DEFAULT_ORG_PERCENTAGE", decimal.NewFromInt(20)),
			PercentagePollInterval: getEnvAsDuration("EARNINGS_PERCENTAGE_POLL_INTERVAL", time.Minute),
		},
		Breakeven: BreakevenConfig{
			WeekMode:         strings.ToUpper(getEnv("BREAKEVEN_WEEK_MODE", "CALENDAR")),
			DisplayTZ:        getEnv("BREAKEVEN_DISPLAY_TZ", "ph"),
			BucketTZ:         getEnv("BREAKEVEN_BUCKET_TZ", "ph"),
			DayCutoffHour:    clampHour(getEnvAsInt("BREAKEVEN_DAY_CUTOFF_HOUR", 0)),
			CronSecret:       getEnv("BREAKEVEN_CRON_SECRET", ""),
			SnapshotInterval: getEnvAsDuration("BREAKEVEN_SNAPSHOT_INTERVAL", 0),
		},
		Notifications: NotificationsConfig{
			Workers:   getEnvAsInt("NOTIFY_WORKERS", 2),
			QueueSize: getEnvAsInt("NOTIFY_QUEUE_SIZE", 64),
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          getEnvAsBool("CB_ENABLED", true),
				FailureThreshold: getEnvAsInt("CB_FAILURE_THRESHOLD", 5),
				SuccessThreshold: getEnvAsInt("CB_SUCCESS_THRESHOLD", 1),
				TimeoutSeconds:   getEnvAsInt("CB_TIMEOUT_SECONDS", 30),
				IntervalSeconds:  getEnvAsInt("CB_INTERVAL_SECONDS", 60),
			},
		},
	}

	if cfg.Breakeven.WeekMode != "ROLLING7" {
		cfg.Breakeven.WeekMode = "CALENDAR"
	}

	if breakerOverrides := getEnv("CB_SERVICE_OVERRIDES", ""); breakerOverrides != "" {
		var serviceConfig map[string]CircuitBreakerSettings
		if err := json.Unmarshal([]byte(breakerOverrides), &serviceConfig); err != nil {
			return nil, fmt.Errorf("invalid CB_SERVICE_OVERRIDES value: %w", err)
		}
		cfg.Resilience.CircuitBreaker.ServiceOverrides = serviceConfig
	}

	if cfg.Notifications.Workers <= 0 {
		cfg.Notifications.Workers = 1
	}
	if cfg.Notifications.QueueSize <= 0 {
		cfg.Notifications.QueueSize = 1
	}

	return cfg, nil
}

// Validate reports configuration the HTTP service cannot start without.
func (c *Config) Validate() error {
	if c.Supabase.URL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.Supabase.ServiceKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_ROLE_KEY is required")
	}
	return nil
}

// SettingsFor returns effective breaker settings for a specific upstream service name
func (c CircuitBreakerConfig) SettingsFor(service string) CircuitBreakerSettings {
	settings := CircuitBreakerSettings{
		FailureThreshold: c.FailureThreshold,
		SuccessThreshold: c.SuccessThreshold,
		TimeoutSeconds:   c.TimeoutSeconds,
		IntervalSeconds:  c.IntervalSeconds,
	}

	if override, ok := c.ServiceOverrides[service]; ok {
		if override.FailureThreshold > 0 {
			settings.FailureThreshold = override.FailureThreshold
		}
		if override.SuccessThreshold > 0 {
			settings.SuccessThreshold = override.SuccessThreshold
		}
		if override.TimeoutSeconds > 0 {
			settings.TimeoutSeconds = override.TimeoutSeconds
		}
		if override.IntervalSeconds > 0 {
			settings.IntervalSeconds = override.IntervalSeconds
		}
	}

	if settings.SuccessThreshold <= 0 {
		settings.SuccessThreshold = 1
	}
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = 5
	}
	if settings.TimeoutSeconds <= 0 {
		settings.TimeoutSeconds = 30
	}
	if settings.IntervalSeconds <= 0 {
		settings.IntervalSeconds = 60
	}

	return settings
}

// RequestDeadline returns the HTTP handler deadline, or 0 when disabled.
func (c ServerConfig) RequestDeadline() time.Duration {
	if c.RequestTimeout <= 0 {
		return 0
	}
	return time.Duration(c.RequestTimeout) * time.Second
}

// Origins splits CORSOrigins into trimmed, non-empty entries.
func (c ServerConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Timeout returns the per-request timeout for the REST data API.
func (c SupabaseConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DSN returns the database connection URL, preferring DATABASE_URL. The URL
// form is accepted by both pgx and the migration driver.
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// ParseList splits a comma-separated list, lower-casing and trimming each
// element and dropping empties.
func ParseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func clampHour(h int) int {
	if h < 0 {
		return 0
	}
	if h > 23 {
		return 23
	}
	return h
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvNonBlank falls back to the default when the variable is unset or
// holds only whitespace.
func getEnvNonBlank(key, defaultValue string) string {
	if value := os.Getenv(key); strings.TrimSpace(value) != "" {
		return value
	}
	return defaultValue
}

// lookupEnv differs from getEnv in that a variable set to the empty string is
// returned as-is instead of falling back to the default.
func lookupEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value, err := decimal.NewFromString(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}
