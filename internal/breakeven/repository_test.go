package breakeven

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/richxcame/tartanilla-earnings/internal/periods"
	"github.com/richxcame/tartanilla-earnings/pkg/postgrest"
	"github.com/richxcame/tartanilla-earnings/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T, handler http.HandlerFunc) *Repository {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := postgrest.New(postgrest.Config{BaseURL: srv.URL, APIKey: "k"},
		postgrest.WithRetry(resilience.RetryConfig{MaxAttempts: 1}))
	return NewRepository(client)
}

func TestUpsertSnapshotsMergesOnPeriodKey(t *testing.T) {
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, periods.Manila)
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/breakeven_history", r.URL.Path)
		assert.Equal(t, "driver_id,period_type,period_start", r.URL.Query().Get("on_conflict"))
		assert.Contains(t, r.Header.Get("Prefer"), "resolution=merge-duplicates")

		body, _ := io.ReadAll(r.Body)
		var rows []map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &rows))
		require.Len(t, rows, 1)
		assert.Equal(t, "d1", rows[0]["driver_id"])
		assert.Equal(t, "daily", rows[0]["period_type"])
		assert.Equal(t, "2025-03-09T16:00:00Z", rows[0]["period_start"])
		assert.Equal(t, "ph", rows[0]["bucket_tz"])
		assert.NotContains(t, rows[0], "id")

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(body)
	})

	err := repo.UpsertSnapshots(context.Background(), []Snapshot{{
		DriverID:    "d1",
		PeriodType:  periods.Daily,
		PeriodStart: postgrest.Timestamp{Time: start},
		PeriodEnd:   postgrest.Timestamp{Time: start.Add(24*time.Hour - time.Second)},
		Expenses:    d("500"),
		SnapshotAt:  postgrest.Timestamp{Time: start.Add(12 * time.Hour)},
		BucketTZ:    "ph",
	}})
	require.NoError(t, err)
}

func TestUpsertSnapshotsSkipsEmptyBatch(t *testing.T) {
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL)
	})

	require.NoError(t, repo.UpsertSnapshots(context.Background(), nil))
}

func TestUpsertSnapshotsWrapsFailure(t *testing.T) {
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":"there is no unique constraint matching the ON CONFLICT specification"}`)
	})

	err := repo.UpsertSnapshots(context.Background(), []Snapshot{{DriverID: "d1", PeriodType: periods.Daily}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert breakeven history")
}

func TestCachedExpenses(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"cached", `[{"expenses":"750.50"}]`, "750.5"},
		{"null", `[{"expenses":null}]`, "0"},
		{"missing", `[]`, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/rest/v1/breakeven_expense_cache", r.URL.Path)
				assert.Equal(t, "eq.d1", r.URL.Query().Get("driver_id"))
				assert.Equal(t, "1", r.URL.Query().Get("limit"))
				_, _ = io.WriteString(w, tt.body)
			})

			got, err := repo.CachedExpenses(context.Background(), "d1")
			require.NoError(t, err)
			assert.True(t, got.Equal(d(tt.want)), got.String())
		})
	}
}

func TestListHistoryBeforeAndOrder(t *testing.T) {
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "eq.d1", q.Get("driver_id"))
		assert.Equal(t, "eq.weekly", q.Get("period_type"))
		assert.Equal(t, "lt.2025-03-09T16:00:00Z", q.Get("period_start"))
		assert.Equal(t, "period_start.desc", q.Get("order"))
		assert.Equal(t, "10", q.Get("limit"))
		_, _ = io.WriteString(w, `[{"id":"s1","driver_id":"d1","period_type":"weekly","period_start":"2025-03-02T16:00:00+00:00","profit":"-20.5","rides_done":3}]`)
	})

	rows, err := repo.ListHistory(context.Background(), HistoryQuery{
		DriverID:   "d1",
		PeriodType: periods.Weekly,
		Before:     time.Date(2025, 3, 10, 0, 0, 0, 0, periods.Manila),
		Limit:      10,
	})

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "s1", rows[0].ID)
	assert.True(t, rows[0].Profit.Equal(d("-20.5")))
	assert.Equal(t, 3, rows[0].RidesDone)
	assert.True(t, rows[0].PeriodStart.Equal(time.Date(2025, 3, 2, 16, 0, 0, 0, time.UTC)))
}

func TestListHistoryWithoutBound(t *testing.T) {
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("period_start"))
		_, _ = io.WriteString(w, `[]`)
	})

	rows, err := repo.ListHistory(context.Background(), HistoryQuery{DriverID: "d1", PeriodType: periods.Daily})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestLatestSnapshot(t *testing.T) {
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "eq.daily", q.Get("period_type"))
		assert.Equal(t, "snapshot_at.desc", q.Get("order"))
		assert.Equal(t, "1", q.Get("limit"))
		if q.Get("driver_id") == "eq.none" {
			_, _ = io.WriteString(w, `[]`)
			return
		}
		_, _ = io.WriteString(w, `[{"id":"s9","driver_id":"d1","period_type":"daily","profit":"120"}]`)
	})

	snap, err := repo.LatestSnapshot(context.Background(), "d1", periods.Daily)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "s9", snap.ID)
	assert.True(t, snap.Profit.Equal(d("120")))

	missing, err := repo.LatestSnapshot(context.Background(), "none", periods.Daily)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
