package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/richxcame/tartanilla-earnings/internal/earnings"
	"github.com/richxcame/tartanilla-earnings/internal/periods"
	"github.com/richxcame/tartanilla-earnings/pkg/common"
	"github.com/richxcame/tartanilla-earnings/pkg/eventbus"
	"github.com/richxcame/tartanilla-earnings/pkg/logger"
	"github.com/richxcame/tartanilla-earnings/pkg/postgrest"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store is the persistence surface the service needs.
type Store interface {
	HasPendingPayout(ctx context.Context, driverID string) (bool, error)
	CreatePayout(ctx context.Context, p newPayout) (*Payout, error)
	GetPayout(ctx context.Context, id string) (*Payout, error)
	ReleasePayout(ctx context.Context, id, remarks string, at time.Time) (*Payout, error)
	DeletePayout(ctx context.Context, id string) error
	ListPayouts(ctx context.Context, status string, limit int) ([]Payout, error)
	ListDriverPayouts(ctx context.Context, driverID string, limit int) ([]Payout, error)
	CountPayouts(ctx context.Context, status string) (int64, error)
	UpdateTotal(ctx context.Context, payoutID string, total decimal.Decimal) error
	LinkEarnings(ctx context.Context, links []PayoutEarning) error
	ListLinks(ctx context.Context, payoutID, status string) ([]PayoutEarning, error)
	UpdateShare(ctx context.Context, linkID string, share decimal.Decimal) error
	SettleLinks(ctx context.Context, payoutID string, earningIDs []string) error
	PendingEarnings(ctx context.Context, driverID string) ([]earnings.EarningRecord, error)
	EarningsByID(ctx context.Context, ids []string) ([]earnings.EarningRecord, error)
}

// Service opens, releases and re-splits driver payouts.
type Service struct {
	store     Store
	splitter  *earnings.Splitter
	publisher eventbus.Publisher
	now       func() time.Time
}

const eventSource = "payouts"

// NewService creates a new payouts service
func NewService(store Store, splitter *earnings.Splitter) *Service {
	return &Service{store: store, splitter: splitter, now: time.Now}
}

// WithPublisher announces payout lifecycle events on the bus.
func (s *Service) WithPublisher(p eventbus.Publisher) *Service {
	s.publisher = p
	return s
}

// WithClock replaces the clock used for created_at and payout_date.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func upstream(msg string, err error) error {
	return common.NewBadGatewayError(msg, err)
}

// ========================================
// CREATE
// ========================================

// Create opens a pending payout covering the driver's pending earnings.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Payout, error) {
	driverID := strings.TrimSpace(req.DriverID)
	if driverID == "" {
		return nil, common.NewBadRequestError("driver_id is required", nil)
	}

	pending, err := s.store.HasPendingPayout(ctx, driverID)
	if err != nil {
		return nil, upstream("failed to check pending payouts", err)
	}
	if pending {
		return nil, common.NewBadRequestError("driver already has a pending payout", nil)
	}

	records, err := s.store.PendingEarnings(ctx, driverID)
	if err != nil {
		return nil, upstream("failed to load driver earnings", err)
	}

	total := decimal.Zero
	driverName := ""
	links := make([]PayoutEarning, 0, len(records))
	for _, r := range records {
		share := s.splitter.Split(r).Driver
		total = total.Add(share)
		if driverName == "" && strings.TrimSpace(r.DriverName) != "" {
			driverName = strings.TrimSpace(r.DriverName)
		}
		links = append(links, PayoutEarning{EarningID: r.ID, ShareAmount: share, Status: StatusPending})
	}
	total = total.Round(2)
	if !total.IsPositive() {
		return nil, common.NewBadRequestError("no earnings available for payout", nil)
	}
	if driverName == "" {
		driverName = unknownDriverName
	}

	method := strings.ToLower(strings.TrimSpace(req.PayoutMethod))
	if method == "" {
		method = defaultMethod
	}
	remarks := strings.TrimSpace(req.Remarks)
	if remarks == "" {
		remarks = fmt.Sprintf("Payout for %d completed bookings", len(records))
	}

	payout, err := s.store.CreatePayout(ctx, newPayout{
		DriverID:     driverID,
		DriverName:   driverName,
		TotalAmount:  total,
		PayoutMethod: method,
		Remarks:      remarks,
		Status:       StatusPending,
		CreatedAt:    s.now().In(periods.Manila).Format(time.RFC3339),
	})
	if err != nil {
		if postgrest.IsUniqueViolation(err) {
			// A concurrent create won the pending slot for this driver.
			return nil, common.NewBadRequestError("driver already has a pending payout", nil)
		}
		return nil, upstream("failed to create payout", err)
	}

	for i := range links {
		links[i].PayoutID = payout.ID
	}
	if err := s.store.LinkEarnings(ctx, links); err != nil {
		if derr := s.store.DeletePayout(ctx, payout.ID); derr != nil {
			logger.ErrorContext(ctx, "failed to remove unlinked payout",
				zap.String("payout_id", payout.ID),
				zap.String("driver_id", driverID),
				zap.Error(derr))
		}
		return nil, upstream("failed to link payout earnings", err)
	}

	logger.InfoContext(ctx, "payout created",
		zap.String("payout_id", payout.ID),
		zap.String("driver_id", driverID),
		zap.Int("earnings", len(links)),
		zap.String("total", total.StringFixed(2)))
	s.publish(ctx, eventbus.SubjectPayoutCreated, payout)
	return payout, nil
}

// ========================================
// RELEASE
// ========================================

// Release moves a pending payout to released exactly once.
func (s *Service) Release(ctx context.Context, id string, req ReleaseRequest) (*Release, error) {
	before, err := s.store.GetPayout(ctx, id)
	if err != nil {
		return nil, upstream("failed to load payout", err)
	}
	if before == nil {
		return nil, common.NewNotFoundError("payout not found", nil)
	}
	if before.Status != StatusPending {
		return nil, common.NewConflictError("payout already released")
	}

	remarks := strings.TrimSpace(req.Remarks)
	at := s.now().In(periods.Manila)
	after, err := s.store.ReleasePayout(ctx, id, remarks, at)
	if err != nil || after == nil {
		// The update is sent once, so a lost reply may hide a commit.
		if p := s.releasedBy(ctx, id, remarks, at); p != nil {
			after, err = p, nil
		}
	}
	if err != nil {
		return nil, upstream("failed to release payout", err)
	}
	if after == nil {
		// Another request released it between the read and the update.
		return nil, common.NewConflictError("payout already released")
	}

	s.settle(ctx, after.ID)
	s.publish(ctx, eventbus.SubjectPayoutReleased, after)

	logger.InfoContext(ctx, "payout released",
		zap.String("payout_id", after.ID),
		zap.String("driver_id", after.DriverID),
		zap.String("total", after.TotalAmount.StringFixed(2)))
	return &Release{Before: before, After: after}, nil
}

// releasedBy re-reads payout id and returns it when it carries the release
// written at at, or nil when it does not.
func (s *Service) releasedBy(ctx context.Context, id, remarks string, at time.Time) *Payout {
	p, err := s.store.GetPayout(ctx, id)
	if err != nil || p == nil || p.Status != StatusReleased {
		return nil
	}
	if !p.PayoutDate.Time.Equal(at.Truncate(time.Second)) {
		return nil
	}
	if remarks != "" && p.Remarks != remarks {
		return nil
	}
	return p
}

// publish announces p on subject. The payout is already committed, so a
// failed publish is logged only.
func (s *Service) publish(ctx context.Context, subject string, p *Payout) {
	if s.publisher == nil {
		return
	}
	event, err := eventbus.NewEvent(subject, eventSource, eventbus.PayoutEventData{
		PayoutID:     p.ID,
		DriverID:     p.DriverID,
		DriverName:   p.DriverName,
		TotalAmount:  p.TotalAmount,
		PayoutMethod: p.PayoutMethod,
		Status:       p.Status,
		OccurredAt:   s.now().UTC(),
	})
	if err == nil {
		err = s.publisher.Publish(ctx, subject, event)
	}
	if err != nil {
		logger.WarnContext(ctx, "failed to publish payout event",
			zap.String("subject", subject),
			zap.String("payout_id", p.ID),
			zap.Error(err))
	}
}

// settle finalizes the earnings a released payout covered. The release
// already happened, so failures are logged only.
func (s *Service) settle(ctx context.Context, payoutID string) {
	links, err := s.store.ListLinks(ctx, payoutID, StatusPending)
	if err != nil {
		logger.WarnContext(ctx, "failed to load released payout earnings", zap.String("payout_id", payoutID), zap.Error(err))
		return
	}
	ids := make([]string, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.EarningID)
	}
	if err := s.store.SettleLinks(ctx, payoutID, ids); err != nil {
		logger.WarnContext(ctx, "failed to settle released payout earnings", zap.String("payout_id", payoutID), zap.Error(err))
	}
}

// ========================================
// READS
// ========================================

// Get returns one payout.
func (s *Service) Get(ctx context.Context, id string) (*Payout, error) {
	p, err := s.store.GetPayout(ctx, id)
	if err != nil {
		return nil, upstream("failed to load payout", err)
	}
	if p == nil {
		return nil, common.NewNotFoundError("payout not found", nil)
	}
	return p, nil
}

// List returns payouts in status. limit <= 0 means all.
func (s *Service) List(ctx context.Context, status string, limit int) ([]Payout, error) {
	rows, err := s.store.ListPayouts(ctx, status, limit)
	if err != nil {
		return nil, upstream("failed to list payouts", err)
	}
	if rows == nil {
		rows = []Payout{}
	}
	return rows, nil
}

// PendingCount returns how many payouts wait for release.
func (s *Service) PendingCount(ctx context.Context) (int64, error) {
	n, err := s.store.CountPayouts(ctx, StatusPending)
	if err != nil {
		return 0, upstream("failed to count pending payouts", err)
	}
	return n, nil
}

// History returns a driver's payouts, newest first.
func (s *Service) History(ctx context.Context, driverID string, limit int) ([]Payout, error) {
	rows, err := s.store.ListDriverPayouts(ctx, driverID, limit)
	if err != nil {
		return nil, upstream("failed to load payout history", err)
	}
	if rows == nil {
		rows = []Payout{}
	}
	return rows, nil
}

// ========================================
// RECALCULATION
// ========================================

// RecalculatePending re-splits every pending payout with fraction as the
// global admin share and returns how many payouts changed. A failing payout
// does not stop the others; their errors are joined.
func (s *Service) RecalculatePending(ctx context.Context, fraction decimal.Decimal) (int, error) {
	pending, err := s.store.ListPayouts(ctx, StatusPending, 0)
	if err != nil {
		return 0, fmt.Errorf("list pending payouts: %w", err)
	}

	changed := 0
	var errs []error
	for i := range pending {
		updated, err := s.recalculate(ctx, &pending[i], fraction)
		if err != nil {
			errs = append(errs, fmt.Errorf("payout %s: %w", pending[i].ID, err))
			continue
		}
		if updated {
			changed++
		}
	}

	logger.InfoContext(ctx, "pending payouts recalculated",
		zap.Int("payouts", len(pending)),
		zap.Int("changed", changed),
		zap.Int("failed", len(errs)))
	return changed, errors.Join(errs...)
}

func (s *Service) recalculate(ctx context.Context, p *Payout, fraction decimal.Decimal) (bool, error) {
	links, err := s.store.ListLinks(ctx, p.ID, StatusPending)
	if err != nil {
		return false, err
	}
	ids := make([]string, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.EarningID)
	}
	records, err := s.store.EarningsByID(ctx, ids)
	if err != nil {
		return false, err
	}
	byID := make(map[string]earnings.EarningRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	changed := false
	total := decimal.Zero
	for _, l := range links {
		share := l.ShareAmount
		if r, ok := byID[l.EarningID]; ok {
			share = s.splitter.SplitWith(r, fraction).Driver
		}
		if !share.Equal(l.ShareAmount) {
			if err := s.store.UpdateShare(ctx, l.ID, share); err != nil {
				return false, err
			}
			changed = true
		}
		total = total.Add(share)
	}

	total = total.Round(2)
	if !total.Equal(p.TotalAmount) {
		if err := s.store.UpdateTotal(ctx, p.ID, total); err != nil {
			return false, err
		}
		changed = true
	}
	return changed, nil
}
