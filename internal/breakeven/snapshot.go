package breakeven

import (
	"context"
	"fmt"
	"time"

	"github.com/richxcame/tartanilla-earnings/internal/earnings"
	"github.com/richxcame/tartanilla-earnings/internal/periods"
	"github.com/richxcame/tartanilla-earnings/pkg/postgrest"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EarningsSource is the earnings read surface breakeven needs.
type EarningsSource interface {
	ListEarnings(ctx context.Context, f earnings.Filter) ([]earnings.EarningRecord, error)
	DistinctDriverIDs(ctx context.Context, window periods.Window, policy earnings.StatusPolicy) ([]string, error)
}

// HistoryStore persists snapshots and the drivers' cached expenses.
type HistoryStore interface {
	UpsertSnapshots(ctx context.Context, rows []Snapshot) error
	CachedExpenses(ctx context.Context, driverID string) (decimal.Decimal, error)
	ListHistory(ctx context.Context, q HistoryQuery) ([]Snapshot, error)
	LatestSnapshot(ctx context.Context, driverID string, pt periods.PeriodType) (*Snapshot, error)
}

// Job is one period type due for snapshotting.
type Job struct {
	PeriodType periods.PeriodType
	Window     periods.Window
}

// JobResult reports one job: how many rows were upserted, or why it failed.
type JobResult struct {
	PeriodType periods.PeriodType `json:"period_type"`
	Count      int                `json:"count"`
	Error      string             `json:"error,omitempty"`
}

// Snapshotter writes closed-period breakeven figures into history.
type Snapshotter struct {
	earnings EarningsSource
	history  HistoryStore
	resolver *periods.Resolver
	policy   earnings.StatusPolicy
	shares   Shares
	logger   *zap.Logger
}

// NewSnapshotter creates a snapshotter bucketing with resolver.
func NewSnapshotter(src EarningsSource, history HistoryStore, resolver *periods.Resolver, policy earnings.StatusPolicy, shares Shares, logger *zap.Logger) *Snapshotter {
	return &Snapshotter{
		earnings: src,
		history:  history,
		resolver: resolver,
		policy:   policy,
		shares:   shares,
		logger:   logger,
	}
}

// DueJobs returns the snapshot jobs for the business day today: daily
// always, weekly on Sunday, monthly on the last day of the month.
func (s *Snapshotter) DueJobs(today periods.Date) []Job {
	due := periods.DueSnapshots(today)
	jobs := make([]Job, 0, len(due))
	for _, pt := range due {
		jobs = append(jobs, Job{PeriodType: pt, Window: s.resolver.ForPeriodType(pt, today)})
	}
	return jobs
}

// Run snapshots every due job for today. onlyDriver limits the run to one
// driver. A failing job is reported and the remaining jobs still run.
func (s *Snapshotter) Run(ctx context.Context, onlyDriver string) []JobResult {
	now := s.resolver.Now()
	jobs := s.DueJobs(s.resolver.Today())

	results := make([]JobResult, 0, len(jobs))
	for _, job := range jobs {
		count, err := s.runJob(ctx, job, onlyDriver, now)
		result := JobResult{PeriodType: job.PeriodType, Count: count}
		if err != nil {
			result.Count = 0
			result.Error = err.Error()
			s.logger.Warn("breakeven snapshot job failed",
				zap.String("period_type", string(job.PeriodType)),
				zap.Error(err))
		} else {
			s.logger.Info("breakeven snapshot job finished",
				zap.String("period_type", string(job.PeriodType)),
				zap.Int("rows", count))
		}
		results = append(results, result)
	}
	return results
}

func (s *Snapshotter) runJob(ctx context.Context, job Job, onlyDriver string, now time.Time) (int, error) {
	drivers := []string{onlyDriver}
	if onlyDriver == "" {
		ids, err := s.earnings.DistinctDriverIDs(ctx, job.Window, s.policy)
		if err != nil {
			return 0, err
		}
		drivers = ids
	}
	if len(drivers) == 0 {
		return 0, nil
	}

	rows := make([]Snapshot, 0, len(drivers))
	for _, driverID := range drivers {
		row, err := s.snapshotDriver(ctx, job, driverID, now)
		if err != nil {
			return 0, fmt.Errorf("driver %s: %w", driverID, err)
		}
		rows = append(rows, row)
	}

	if err := s.history.UpsertSnapshots(ctx, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *Snapshotter) snapshotDriver(ctx context.Context, job Job, driverID string, now time.Time) (Snapshot, error) {
	expenses, err := s.history.CachedExpenses(ctx, driverID)
	if err != nil {
		s.logger.Debug("cached expenses unavailable, using zero",
			zap.String("driver_id", driverID),
			zap.Error(err))
		expenses = decimal.Zero
	}

	window := job.Window
	records, err := s.earnings.ListEarnings(ctx, earnings.Filter{DriverID: driverID, Window: &window, Policy: &s.policy})
	if err != nil {
		return Snapshot{}, err
	}

	m := Compute(records, expenses, s.shares)
	return Snapshot{
		DriverID:      driverID,
		PeriodType:    job.PeriodType,
		PeriodStart:   postgrest.Timestamp{Time: window.Start},
		PeriodEnd:     postgrest.Timestamp{Time: window.DisplayEnd()},
		Expenses:      m.Expenses,
		RevenueDriver: m.Revenue,
		Profit:        m.Profit,
		RidesNeeded:   m.RidesNeeded,
		RidesDone:     m.RidesDone,
		BreakevenHit:  m.BreakevenHit,
		Profitable:    m.Profitable,
		Breakdown:     m.Breakdown,
		SnapshotAt:    postgrest.Timestamp{Time: now},
		BucketTZ:      periods.ZoneLabel(window.Location),
		DayCutoffHour: window.CutoffHour,
	}, nil
}
