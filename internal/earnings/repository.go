package earnings

import (
	"context"
	"fmt"
	"sort"

	"github.com/richxcame/tartanilla-earnings/internal/periods"
	"github.com/richxcame/tartanilla-earnings/pkg/postgrest"
)

// Filter narrows an earnings read. Zero values mean "no constraint".
type Filter struct {
	DriverID      string
	Window        *periods.Window
	Policy        *StatusPolicy
	BookingsOnly  bool
	ExcludeCustom bool
}

// Repository reads earnings and payout rows from the hosted data API.
type Repository struct {
	client   *postgrest.Client
	pageSize int
}

// NewRepository creates a new earnings repository
func NewRepository(client *postgrest.Client) *Repository {
	return &Repository{client: client, pageSize: postgrest.DefaultPageSize}
}

// WithPageSize overrides the read page size.
func (r *Repository) WithPageSize(n int) *Repository {
	r.pageSize = n
	return r
}

// ========================================
// EARNINGS
// ========================================

// ListEarnings pages through every matching row. The window is applied as a
// UTC range upstream and re-checked locally, because earning_date may be a
// naive timestamp.
func (r *Repository) ListEarnings(ctx context.Context, f Filter) ([]EarningRecord, error) {
	rows, err := postgrest.Paginate[EarningRecord](ctx, r.pageSize, func() *postgrest.Query {
		q := r.client.From(TableEarnings).Select(EarningColumns)
		if f.DriverID != "" {
			q.Eq("driver_id", f.DriverID)
		}
		if f.Window != nil {
			q.Gte("earning_date", f.Window.Start).Lt("earning_date", f.Window.End)
		}
		if f.Policy != nil {
			f.Policy.Apply(q)
		}
		if f.BookingsOnly {
			q.NotNull("booking_id")
		}
		if f.ExcludeCustom {
			q.IsNull("custom_tour_id")
		}
		return q.Order("earning_date", false).Order("id", false)
	})
	if err != nil {
		return nil, fmt.Errorf("list earnings: %w", err)
	}

	if f.Window == nil && f.Policy == nil {
		return rows, nil
	}
	kept := rows[:0]
	for _, row := range rows {
		if f.Window != nil && !f.Window.Contains(row.EarningDate.Time) {
			continue
		}
		if f.Policy != nil && !f.Policy.Allows(row.Status) {
			continue
		}
		kept = append(kept, row)
	}
	return kept, nil
}

// DistinctDriverIDs lists, sorted, every driver with a counted earning in window.
func (r *Repository) DistinctDriverIDs(ctx context.Context, window periods.Window, policy StatusPolicy) ([]string, error) {
	type driverRow struct {
		DriverID    string              `json:"driver_id"`
		EarningDate postgrest.Timestamp `json:"earning_date"`
	}
	rows, err := postgrest.Paginate[driverRow](ctx, r.pageSize, func() *postgrest.Query {
		q := r.client.From(TableEarnings).
			Select("driver_id, earning_date").
			Gte("earning_date", window.Start).
			Lt("earning_date", window.End).
			NotNull("driver_id")
		return policy.Apply(q).Order("earning_date", false).Order("id", false)
	})
	if err != nil {
		return nil, fmt.Errorf("list driver ids: %w", err)
	}

	seen := make(map[string]struct{}, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.DriverID == "" || !window.Contains(row.EarningDate.Time) {
			continue
		}
		if _, ok := seen[row.DriverID]; ok {
			continue
		}
		seen[row.DriverID] = struct{}{}
		ids = append(ids, row.DriverID)
	}
	sort.Strings(ids)
	return ids, nil
}

// ========================================
// PAYOUTS
// ========================================

// ListPayouts returns payouts in status, newest first. limit <= 0 means all.
func (r *Repository) ListPayouts(ctx context.Context, status string, limit int) ([]Payout, error) {
	q := r.client.From(TablePayouts).
		Select("id, driver_id, driver_name, total_amount, status, payout_date").
		Eq("status", status).
		Order("payout_date", true)
	if limit > 0 {
		q.Limit(limit)
	}

	var payouts []Payout
	if err := q.Into(ctx, &payouts); err != nil {
		return nil, fmt.Errorf("list %s payouts: %w", status, err)
	}
	return payouts, nil
}

// CountPayouts returns the number of payouts in status.
func (r *Repository) CountPayouts(ctx context.Context, status string) (int64, error) {
	result, err := r.client.From(TablePayouts).Select("id").Eq("status", status).Limit(1).Count().Execute(ctx)
	if err != nil {
		return 0, fmt.Errorf("count %s payouts: %w", status, err)
	}
	return result.Count, nil
}
