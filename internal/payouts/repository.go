package payouts

import (
	"context"
	"fmt"
	"time"

	"github.com/richxcame/tartanilla-earnings/internal/earnings"
	"github.com/richxcame/tartanilla-earnings/pkg/postgrest"
	"github.com/shopspring/decimal"
)

// Repository reads and writes payouts on the hosted data API.
type Repository struct {
	client   *postgrest.Client
	pageSize int
}

// NewRepository creates a new payouts repository
func NewRepository(client *postgrest.Client) *Repository {
	return &Repository{client: client, pageSize: postgrest.DefaultPageSize}
}

// ========================================
// PAYOUTS
// ========================================

// HasPendingPayout reports whether the driver already has a payout waiting for release.
func (r *Repository) HasPendingPayout(ctx context.Context, driverID string) (bool, error) {
	var rows []struct {
		ID string `json:"id"`
	}
	err := r.client.From(TablePayouts).Select("id").
		Eq("driver_id", driverID).
		Eq("status", StatusPending).
		Limit(1).
		Into(ctx, &rows)
	if err != nil {
		return false, fmt.Errorf("check pending payout: %w", err)
	}
	return len(rows) > 0, nil
}

// CreatePayout inserts p and returns the stored row.
func (r *Repository) CreatePayout(ctx context.Context, p newPayout) (*Payout, error) {
	var rows []Payout
	if err := r.client.From(TablePayouts).Insert(p).Once().Into(ctx, &rows); err != nil {
		return nil, fmt.Errorf("insert payout: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert payout: no row returned")
	}
	return &rows[0], nil
}

// GetPayout returns the payout, or nil when it does not exist.
func (r *Repository) GetPayout(ctx context.Context, id string) (*Payout, error) {
	var rows []Payout
	if err := r.client.From(TablePayouts).Select(PayoutColumns).Eq("id", id).Limit(1).Into(ctx, &rows); err != nil {
		return nil, fmt.Errorf("get payout: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// ReleasePayout flips a pending payout to released. It returns nil when no
// pending row matched, so a repeated release changes nothing.
func (r *Repository) ReleasePayout(ctx context.Context, id, remarks string, at time.Time) (*Payout, error) {
	values := map[string]interface{}{
		"status":      StatusReleased,
		"payout_date": at.Format(time.RFC3339),
	}
	if remarks != "" {
		values["remarks"] = remarks
	}

	var rows []Payout
	err := r.client.From(TablePayouts).
		Update(values).
		Eq("id", id).
		Eq("status", StatusPending).
		Once().
		Into(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("release payout: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// DeletePayout removes a payout that is still pending. Its links go with
// it through the foreign key cascade.
func (r *Repository) DeletePayout(ctx context.Context, id string) error {
	_, err := r.client.From(TablePayouts).
		Delete().
		Eq("id", id).
		Eq("status", StatusPending).
		Execute(ctx)
	if err != nil {
		return fmt.Errorf("delete payout: %w", err)
	}
	return nil
}

// ListPayouts returns payouts in status, newest first. limit <= 0 means all.
func (r *Repository) ListPayouts(ctx context.Context, status string, limit int) ([]Payout, error) {
	q := r.client.From(TablePayouts).Select(PayoutColumns).Eq("status", status)
	if status == StatusReleased {
		q.Order("payout_date", true)
	} else {
		q.Order("created_at", true)
	}
	if limit > 0 {
		q.Limit(limit)
	}

	var rows []Payout
	if err := q.Into(ctx, &rows); err != nil {
		return nil, fmt.Errorf("list %s payouts: %w", status, err)
	}
	return rows, nil
}

// ListDriverPayouts returns every payout of a driver, newest first.
func (r *Repository) ListDriverPayouts(ctx context.Context, driverID string, limit int) ([]Payout, error) {
	var rows []Payout
	err := r.client.From(TablePayouts).Select(PayoutColumns).
		Eq("driver_id", driverID).
		Order("created_at", true).
		Limit(limit).
		Into(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("list driver payouts: %w", err)
	}
	return rows, nil
}

// CountPayouts returns the number of payouts in status.
func (r *Repository) CountPayouts(ctx context.Context, status string) (int64, error) {
	result, err := r.client.From(TablePayouts).Select("id").Eq("status", status).Limit(1).Count().Execute(ctx)
	if err != nil {
		return 0, fmt.Errorf("count %s payouts: %w", status, err)
	}
	return result.Count, nil
}

// UpdateTotal rewrites a payout's total.
func (r *Repository) UpdateTotal(ctx context.Context, payoutID string, total decimal.Decimal) error {
	_, err := r.client.From(TablePayouts).
		Update(map[string]interface{}{"total_amount": total}).
		Eq("id", payoutID).
		Execute(ctx)
	if err != nil {
		return fmt.Errorf("update payout total: %w", err)
	}
	return nil
}

// ========================================
// PAYOUT EARNINGS
// ========================================

// LinkEarnings inserts the payout_earnings rows of a new payout.
func (r *Repository) LinkEarnings(ctx context.Context, links []PayoutEarning) error {
	if len(links) == 0 {
		return nil
	}
	if _, err := r.client.From(TablePayoutEarnings).Insert(links).Once().Execute(ctx); err != nil {
		return fmt.Errorf("insert payout earnings: %w", err)
	}
	return nil
}

// ListLinks returns the payout_earnings rows of a payout in status.
func (r *Repository) ListLinks(ctx context.Context, payoutID, status string) ([]PayoutEarning, error) {
	links, err := postgrest.Paginate[PayoutEarning](ctx, r.pageSize, func() *postgrest.Query {
		return r.client.From(TablePayoutEarnings).
			Select("id, payout_id, earning_id, share_amount, status").
			Eq("payout_id", payoutID).
			Eq("status", status).
			Order("id", false)
	})
	if err != nil {
		return nil, fmt.Errorf("list payout earnings: %w", err)
	}
	return links, nil
}

// UpdateShare rewrites one link's share amount.
func (r *Repository) UpdateShare(ctx context.Context, linkID string, share decimal.Decimal) error {
	_, err := r.client.From(TablePayoutEarnings).
		Update(map[string]interface{}{"share_amount": share}).
		Eq("id", linkID).
		Execute(ctx)
	if err != nil {
		return fmt.Errorf("update payout earning share: %w", err)
	}
	return nil
}

// SettleLinks marks a released payout's links released and finalizes the linked earnings.
func (r *Repository) SettleLinks(ctx context.Context, payoutID string, earningIDs []string) error {
	_, err := r.client.From(TablePayoutEarnings).
		Update(map[string]interface{}{"status": StatusReleased}).
		Eq("payout_id", payoutID).
		Execute(ctx)
	if err != nil {
		return fmt.Errorf("release payout earnings: %w", err)
	}
	if len(earningIDs) == 0 {
		return nil
	}
	_, err = r.client.From(earnings.TableEarnings).
		Update(map[string]interface{}{"status": earnings.StatusFinalized}).
		In("id", earningIDs).
		Execute(ctx)
	if err != nil {
		return fmt.Errorf("finalize payout earnings: %w", err)
	}
	return nil
}

// ========================================
// EARNINGS
// ========================================

// PendingEarnings returns the driver's pending earnings, oldest first.
func (r *Repository) PendingEarnings(ctx context.Context, driverID string) ([]earnings.EarningRecord, error) {
	rows, err := postgrest.Paginate[earnings.EarningRecord](ctx, r.pageSize, func() *postgrest.Query {
		return r.client.From(earnings.TableEarnings).Select(earnings.EarningColumns).
			Eq("driver_id", driverID).
			Eq("status", earnings.StatusPending).
			Order("earning_date", false).
			Order("id", false)
	})
	if err != nil {
		return nil, fmt.Errorf("list pending earnings: %w", err)
	}
	return rows, nil
}

// EarningsByID returns the earnings with the given ids.
func (r *Repository) EarningsByID(ctx context.Context, ids []string) ([]earnings.EarningRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []earnings.EarningRecord
	if err := r.client.From(earnings.TableEarnings).Select(earnings.EarningColumns).In("id", ids).Into(ctx, &rows); err != nil {
		return nil, fmt.Errorf("get earnings by id: %w", err)
	}
	return rows, nil
}
