package config

import (
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		if prev, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, prev) })
		}
		os.Unsetenv(key)
	}
}

func TestLoadEarningsDefaults(t *testing.T) {
	unsetEnv(t,
		"EARNINGS_INCLUDE_STATUSES", "EARNINGS_EXCLUDE_STATUSES",
		"EARNINGS_SHARE_BOOKING_PCT", "EARNINGS_SHARE_CUSTOM_PCT",
		"BREAKEVEN_WEEK_MODE", "BREAKEVEN_DAY_CUTOFF_HOUR", "BREAKEVEN_BUCKET_TZ",
		"EARNINGS_PERCENTAGE_POLL_INTERVAL",
	)

	cfg, err := Load("earnings-test")
	require.NoError(t, err)

	assert.Equal(t, []string{"finalized", "pending"}, cfg.Earnings.IncludeStatuses)
	assert.Equal(t, []string{"reversed"}, cfg.Earnings.ExcludeStatuses)
	assert.True(t, decimal.RequireFromString("0.80").Equal(cfg.Earnings.ShareBookingPct))
	assert.True(t, decimal.NewFromInt(1).Equal(cfg.Earnings.ShareCustomPct))
	assert.Equal(t, "CALENDAR", cfg.Breakeven.WeekMode)
	assert.Equal(t, 0, cfg.Breakeven.DayCutoffHour)
	assert.Equal(t, "ph", cfg.Breakeven.BucketTZ)
	assert.Equal(t, time.Minute, cfg.Earnings.PercentagePollInterval)
}

func TestLoadBlankIncludeKeepsDefaultAllowList(t *testing.T) {
	for _, raw := range []string{"", "   "} {
		t.Run("value "+strconv.Quote(raw), func(t *testing.T) {
			t.Setenv("EARNINGS_INCLUDE_STATUSES", raw)
			t.Setenv("EARNINGS_EXCLUDE_STATUSES", "Reversed, void ")

			cfg, err := Load("earnings-test")
			require.NoError(t, err)

			assert.Equal(t, []string{"finalized", "pending"}, cfg.Earnings.IncludeStatuses)
			assert.Equal(t, []string{"reversed", "void"}, cfg.Earnings.ExcludeStatuses)
		})
	}
}

func TestLoadTokenlessIncludeDisablesAllowList(t *testing.T) {
	t.Setenv("EARNINGS_INCLUDE_STATUSES", " , ")
	t.Setenv("EARNINGS_EXCLUDE_STATUSES", "")

	cfg, err := Load("earnings-test")
	require.NoError(t, err)

	assert.Empty(t, cfg.Earnings.IncludeStatuses)
	assert.Empty(t, cfg.Earnings.ExcludeStatuses)
}

func TestLoadBreakevenOverrides(t *testing.T) {
	t.Setenv("BREAKEVEN_WEEK_MODE", "rolling7")
	t.Setenv("BREAKEVEN_DAY_CUTOFF_HOUR", "31")
	t.Setenv("BREAKEVEN_SNAPSHOT_INTERVAL", "3600")
	t.Setenv("EARNINGS_SHARE_BOOKING_PCT", "0.75")

	cfg, err := Load("earnings-test")
	require.NoError(t, err)

	assert.Equal(t, "ROLLING7", cfg.Breakeven.WeekMode)
	assert.Equal(t, 23, cfg.Breakeven.DayCutoffHour)
	assert.Equal(t, time.Hour, cfg.Breakeven.SnapshotInterval)
	assert.True(t, decimal.RequireFromString("0.75").Equal(cfg.Earnings.ShareBookingPct))
}

func TestLoadUnknownWeekModeFallsBackToCalendar(t *testing.T) {
	t.Setenv("BREAKEVEN_WEEK_MODE", "fortnight")

	cfg, err := Load("earnings-test")
	require.NoError(t, err)
	assert.Equal(t, "CALENDAR", cfg.Breakeven.WeekMode)
}

func TestLoadRejectsMalformedBreakerOverrides(t *testing.T) {
	t.Setenv("CB_SERVICE_OVERRIDES", "{not json")

	_, err := Load("earnings-test")
	assert.Error(t, err)
}

func TestSettingsForAppliesOverride(t *testing.T) {
	cfg := CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		TimeoutSeconds:   30,
		IntervalSeconds:  60,
		ServiceOverrides: map[string]CircuitBreakerSettings{
			"postgrest": {FailureThreshold: 3, TimeoutSeconds: 10},
		},
	}

	got := cfg.SettingsFor("postgrest")
	assert.Equal(t, 3, got.FailureThreshold)
	assert.Equal(t, 10, got.TimeoutSeconds)
	assert.Equal(t, 60, got.IntervalSeconds)

	assert.Equal(t, 5, cfg.SettingsFor("redis").FailureThreshold)
}

func TestValidateRequiresSupabase(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Validate())

	cfg.Supabase = SupabaseConfig{URL: "https://x.supabase.co", ServiceKey: "key"}
	assert.NoError(t, cfg.Validate())
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, ParseList(" A , ,b,"))
	assert.Nil(t, ParseList(""))
}

func TestDSNBuildsURL(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: "5432", User: "app", Password: "p@ss", DBName: "earnings", SSLMode: "disable"}
	assert.Equal(t, "postgres://app:p%40ss@db:5432/earnings?sslmode=disable", cfg.DSN())

	cfg.URL = "postgres://override/db"
	assert.Equal(t, "postgres://override/db", cfg.DSN())
}

func TestServerOriginsAndDeadline(t *testing.T) {
	s := ServerConfig{CORSOrigins: " https://a.ph, ,https://b.ph ", RequestTimeout: 5}
	assert.Equal(t, []string{"https://a.ph", "https://b.ph"}, s.Origins())
	assert.Equal(t, 5*time.Second, s.RequestDeadline())

	s.RequestTimeout = 0
	assert.Zero(t, s.RequestDeadline())
	assert.Nil(t, ServerConfig{}.Origins())
}
