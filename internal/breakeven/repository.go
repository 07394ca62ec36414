package breakeven

import (
	"context"
	"fmt"
	"time"

	"github.com/richxcame/tartanilla-earnings/internal/periods"
	"github.com/richxcame/tartanilla-earnings/pkg/postgrest"
	"github.com/shopspring/decimal"
)

// Table names on the hosted data API.
const (
	TableHistory      = "breakeven_history"
	TableExpenseCache = "breakeven_expense_cache"

	historyConflict = "driver_id,period_type,period_start"
)

// Snapshot is one breakeven_history row.
type Snapshot struct {
	ID            string              `json:"id,omitempty"`
	DriverID      string              `json:"driver_id"`
	PeriodType    periods.PeriodType  `json:"period_type"`
	PeriodStart   postgrest.Timestamp `json:"period_start"`
	PeriodEnd     postgrest.Timestamp `json:"period_end"`
	Expenses      decimal.Decimal     `json:"expenses"`
	RevenueDriver decimal.Decimal     `json:"revenue_driver"`
	Profit        decimal.Decimal     `json:"profit"`
	RidesNeeded   int64               `json:"rides_needed"`
	RidesDone     int                 `json:"rides_done"`
	BreakevenHit  bool                `json:"breakeven_hit"`
	Profitable    bool                `json:"profitable"`
	Breakdown     Breakdown           `json:"breakdown"`
	SnapshotAt    postgrest.Timestamp `json:"snapshot_at"`
	BucketTZ      string              `json:"bucket_tz"`
	DayCutoffHour int                 `json:"day_cutoff_hour"`
}

// HistoryQuery selects snapshot rows. A zero Before means no upper bound.
type HistoryQuery struct {
	DriverID   string
	PeriodType periods.PeriodType
	Before     time.Time
	Limit      int
}

// Repository reads and writes the breakeven tables.
type Repository struct {
	client *postgrest.Client
}

// NewRepository creates a new breakeven repository
func NewRepository(client *postgrest.Client) *Repository {
	return &Repository{client: client}
}

// UpsertSnapshots writes rows, replacing any row with the same driver, period type and start.
func (r *Repository) UpsertSnapshots(ctx context.Context, rows []Snapshot) error {
	if len(rows) == 0 {
		return nil
	}
	if _, err := r.client.From(TableHistory).Upsert(rows, historyConflict).Execute(ctx); err != nil {
		return fmt.Errorf("upsert breakeven history: %w", err)
	}
	return nil
}

// CachedExpenses returns the driver's last entered expenses, or zero when none are cached.
func (r *Repository) CachedExpenses(ctx context.Context, driverID string) (decimal.Decimal, error) {
	var rows []struct {
		Expenses decimal.NullDecimal `json:"expenses"`
	}
	err := r.client.From(TableExpenseCache).Select("expenses").
		Eq("driver_id", driverID).
		Limit(1).
		Into(ctx, &rows)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get cached expenses: %w", err)
	}
	if len(rows) == 0 || !rows[0].Expenses.Valid {
		return decimal.Zero, nil
	}
	return rows[0].Expenses.Decimal, nil
}

// ListHistory returns snapshots newest period first.
func (r *Repository) ListHistory(ctx context.Context, q HistoryQuery) ([]Snapshot, error) {
	query := r.client.From(TableHistory).Select("*").
		Eq("driver_id", q.DriverID).
		Eq("period_type", string(q.PeriodType))
	if !q.Before.IsZero() {
		query.Lt("period_start", q.Before)
	}
	if q.Limit > 0 {
		query.Limit(q.Limit)
	}

	var rows []Snapshot
	if err := query.Order("period_start", true).Into(ctx, &rows); err != nil {
		return nil, fmt.Errorf("list breakeven history: %w", err)
	}
	return rows, nil
}

// LatestSnapshot returns the most recently written snapshot of a period type, or nil.
func (r *Repository) LatestSnapshot(ctx context.Context, driverID string, pt periods.PeriodType) (*Snapshot, error) {
	var rows []Snapshot
	err := r.client.From(TableHistory).Select("*").
		Eq("driver_id", driverID).
		Eq("period_type", string(pt)).
		Order("snapshot_at", true).
		Limit(1).
		Into(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("get latest breakeven snapshot: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
