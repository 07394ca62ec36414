package breakeven

import (
	"context"
	"strings"
	"time"

	"github.com/richxcame/tartanilla-earnings/internal/earnings"
	"github.com/richxcame/tartanilla-earnings/internal/notifications"
	"github.com/richxcame/tartanilla-earnings/internal/periods"
	"github.com/richxcame/tartanilla-earnings/pkg/common"
	"github.com/richxcame/tartanilla-earnings/pkg/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	checkJobName   = "breakeven-check"
	debugPreview   = 5
	displayLayout  = time.RFC3339
	defaultHistory = 30
	maxHistory     = 200
)

// Dispatcher runs work in the background.
type Dispatcher interface {
	Submit(ctx context.Context, name string, fn notifications.Task) (string, error)
}

// Checker evaluates live metrics for notification.
type Checker interface {
	Check(ctx context.Context, driverID string, current Metrics) ([]Kind, error)
}

// ReportRequest is a live breakeven query.
type ReportRequest struct {
	DriverID      string
	Period        periods.Period
	Expenses      decimal.Decimal
	BucketTZ      string
	DisplayTZ     string
	StatusIn      []string
	StatusExclude []string
	Debug         bool
}

// Report is the live breakeven position of a driver for one period.
type Report struct {
	Period            periods.Period   `json:"period"`
	DriverID          string           `json:"driver_id"`
	DateStart         string           `json:"date_start"`
	DateEnd           string           `json:"date_end"`
	Expenses          decimal.Decimal  `json:"expenses"`
	RevenuePeriod     decimal.Decimal  `json:"revenue_period"`
	RevenueToday      *decimal.Decimal `json:"revenue_today,omitempty"`
	TotalBookings     int              `json:"total_bookings"`
	FarePerRide       decimal.Decimal  `json:"fare_per_ride"`
	RidesNeeded       int64            `json:"rides_needed"`
	Profit            decimal.Decimal  `json:"profit"`
	DeficitAmount     decimal.Decimal  `json:"deficit_amount"`
	BreakevenHit      bool             `json:"breakeven_hit"`
	Profitable        bool             `json:"profitable"`
	Breakdown         Breakdown        `json:"breakdown"`
	NotificationJobID string           `json:"notification_job_id,omitempty"`
	Debug             *Debug           `json:"_debug,omitempty"`
}

// Debug explains how a report was computed.
type Debug struct {
	ServerNowPH   string            `json:"server_now_ph"`
	ServerNowUTC  string            `json:"server_now_utc"`
	DisplayTZ     string            `json:"display_tz"`
	BucketTZ      string            `json:"bucket_tz"`
	DayCutoffHour int               `json:"day_cutoff_hour"`
	BucketWindow  Bounds            `json:"bucket_window"`
	UTCWindow     Bounds            `json:"utc_window"`
	Counts        Counts            `json:"counts"`
	WeekMode      periods.WeekMode  `json:"week_mode"`
	Included      []string          `json:"included_statuses_env"`
	Excluded      []string          `json:"excluded_statuses_env"`
	StatusIn      []string          `json:"status_in_param"`
	StatusExclude []string          `json:"status_exclude_param"`
	StatusTally   map[string]int    `json:"status_tally"`
	Shares        map[string]string `json:"shares"`
	RowsPreview   []PreviewRow      `json:"rows_preview"`
}

// Bounds is a half-open [gte, lt) window.
type Bounds struct {
	Gte string `json:"gte"`
	Lt  string `json:"lt"`
}

// PreviewRow is one earning as the report saw it.
type PreviewRow struct {
	ID               string           `json:"id"`
	Status           string           `json:"status"`
	Amount           decimal.Decimal  `json:"amount"`
	EarningDB        string           `json:"earning_db"`
	EarningDisplay   string           `json:"earning_display"`
	EarningBucketDay string           `json:"earning_bucket_day"`
	HasBooking       bool             `json:"has_booking"`
	HasCustom        bool             `json:"has_custom"`
	HasRideHailing   bool             `json:"has_ride_hailing"`
	DriverEarnings   *decimal.Decimal `json:"driver_earnings"`
}

// History is a page of past snapshots.
type History struct {
	Items []Snapshot `json:"items"`
}

// HistoryRequest selects past snapshots.
type HistoryRequest struct {
	DriverID       string
	PeriodType     periods.PeriodType
	Limit          int
	ExcludeCurrent bool
}

// Service answers breakeven queries.
type Service struct {
	earnings    EarningsSource
	history     HistoryStore
	resolver    *periods.Resolver
	displayTZ   *time.Location
	policy      earnings.StatusPolicy
	shares      Shares
	snapshotter *Snapshotter
	checker     Checker
	dispatcher  Dispatcher
}

// NewService creates a breakeven service. resolver sets the default bucket
// zone and cutoff; displayTZ formats dates unless a request overrides it.
func NewService(src EarningsSource, history HistoryStore, resolver *periods.Resolver, displayTZ *time.Location, policy earnings.StatusPolicy, shares Shares) *Service {
	if displayTZ == nil {
		displayTZ = periods.Manila
	}
	return &Service{
		earnings:    src,
		history:     history,
		resolver:    resolver,
		displayTZ:   displayTZ,
		policy:      policy,
		shares:      shares,
		snapshotter: NewSnapshotter(src, history, resolver, policy, shares, logger.Named("breakeven")),
	}
}

// WithNotifications enables notification checks for reports with expenses.
func (s *Service) WithNotifications(checker Checker, dispatcher Dispatcher) *Service {
	s.checker = checker
	s.dispatcher = dispatcher
	return s
}

// Snapshotter exposes the history writer for scheduled runs.
func (s *Service) Snapshotter() *Snapshotter { return s.snapshotter }

// Report computes the live breakeven position of a driver.
func (s *Service) Report(ctx context.Context, req ReportRequest) (*Report, error) {
	if strings.TrimSpace(req.DriverID) == "" {
		return nil, common.NewBadRequestError("driver_id is required", nil)
	}
	if req.Expenses.IsNegative() {
		return nil, common.NewBadRequestError("invalid expenses", nil)
	}

	resolver := s.resolver
	if strings.TrimSpace(req.BucketTZ) != "" {
		resolver = resolver.WithLocation(periods.ResolveLocation(req.BucketTZ))
	}
	display := s.displayTZ
	if strings.TrimSpace(req.DisplayTZ) != "" {
		display = periods.ResolveLocation(req.DisplayTZ)
	}

	window := resolver.Current(req.Period)
	policy := s.policy.Override(req.StatusIn, req.StatusExclude)

	records, err := s.earnings.ListEarnings(ctx, earnings.Filter{DriverID: req.DriverID, Window: &window, Policy: &policy})
	if err != nil {
		return nil, common.NewBadGatewayError("failed to load driver earnings", err)
	}

	m := Compute(records, req.Expenses, s.shares)
	start, end := window.In(display)
	report := &Report{
		Period:        req.Period,
		DriverID:      req.DriverID,
		DateStart:     start.Format(displayLayout),
		DateEnd:       end.Format(displayLayout),
		Expenses:      m.Expenses,
		RevenuePeriod: m.Revenue,
		TotalBookings: m.RidesDone,
		FarePerRide:   m.FarePerRide,
		RidesNeeded:   m.RidesNeeded,
		Profit:        m.Profit,
		DeficitAmount: m.Deficit,
		BreakevenHit:  m.BreakevenHit,
		Profitable:    m.Profitable,
		Breakdown:     m.Breakdown,
	}
	if req.Period == periods.Today {
		revenue := m.Revenue
		report.RevenueToday = &revenue
	}

	report.NotificationJobID = s.queueCheck(ctx, req.DriverID, m)

	if req.Debug {
		report.Debug = s.debug(req, resolver, display, window, records)
	}
	return report, nil
}

// queueCheck submits a notification check and returns its job ID, or "" when
// none was queued.
func (s *Service) queueCheck(ctx context.Context, driverID string, m Metrics) string {
	if s.checker == nil || s.dispatcher == nil || !m.Expenses.IsPositive() {
		return ""
	}
	id, err := s.dispatcher.Submit(ctx, checkJobName, func(ctx context.Context) error {
		_, err := s.checker.Check(ctx, driverID, m)
		return err
	})
	if err != nil {
		logger.WarnContext(ctx, "breakeven notification check not queued",
			zap.String("driver_id", driverID),
			zap.Error(err))
		return ""
	}
	return id
}

func (s *Service) debug(req ReportRequest, resolver *periods.Resolver, display *time.Location, window periods.Window, records []earnings.EarningRecord) *Debug {
	now := resolver.Now()
	d := &Debug{
		ServerNowPH:   now.In(periods.Manila).Format(time.RFC3339),
		ServerNowUTC:  now.UTC().Format(time.RFC3339),
		DisplayTZ:     periods.ZoneLabel(display),
		BucketTZ:      periods.ZoneLabel(resolver.Location()),
		DayCutoffHour: resolver.CutoffHour(),
		BucketWindow:  Bounds{Gte: window.Start.Format(time.RFC3339), Lt: window.End.Format(time.RFC3339)},
		UTCWindow:     Bounds{Gte: window.Start.UTC().Format(time.RFC3339), Lt: window.End.UTC().Format(time.RFC3339)},
		Counts:        DriverRevenue(records, s.shares).Counts,
		WeekMode:      resolver.WeekMode(),
		Included:      nonNil(s.policy.Include),
		Excluded:      nonNil(s.policy.Exclude),
		StatusIn:      nonNil(req.StatusIn),
		StatusExclude: nonNil(req.StatusExclude),
		StatusTally:   make(map[string]int),
		Shares: map[string]string{
			"booking": s.shares.Standard.String(),
			"custom":  s.shares.Custom.String(),
		},
		RowsPreview: make([]PreviewRow, 0, debugPreview),
	}

	for _, r := range records {
		d.StatusTally[strings.ToLower(strings.TrimSpace(r.Status))]++
	}
	for i, r := range records {
		if i == debugPreview {
			break
		}
		row := PreviewRow{
			ID:             r.ID,
			Status:         r.Status,
			Amount:         r.Amount,
			HasBooking:     r.HasBooking(),
			HasCustom:      r.HasCustomTour(),
			HasRideHailing: r.HasRideHailing(),
			DriverEarnings: r.DriverEarnings,
		}
		if !r.EarningDate.IsZero() {
			row.EarningDB = r.EarningDate.UTC().Format(time.RFC3339)
			row.EarningDisplay = r.EarningDate.In(display).Format(time.RFC3339)
			row.EarningBucketDay = periods.DateOf(r.EarningDate.Time, resolver.Location()).String()
		}
		d.RowsPreview = append(d.RowsPreview, row)
	}
	return d
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// History lists past snapshots, newest period first. With ExcludeCurrent the
// still-open period is left out.
func (s *Service) History(ctx context.Context, req HistoryRequest) (*History, error) {
	if strings.TrimSpace(req.DriverID) == "" {
		return nil, common.NewBadRequestError("driver_id is required", nil)
	}
	if req.PeriodType == "" {
		req.PeriodType = periods.Daily
	}
	if req.Limit <= 0 {
		req.Limit = defaultHistory
	}
	if req.Limit > maxHistory {
		req.Limit = maxHistory
	}

	q := HistoryQuery{DriverID: req.DriverID, PeriodType: req.PeriodType, Limit: req.Limit}
	if req.ExcludeCurrent {
		q.Before = s.resolver.ForPeriodType(req.PeriodType, s.resolver.Today()).Start
	}

	items, err := s.history.ListHistory(ctx, q)
	if err != nil {
		return nil, common.NewBadGatewayError("failed to load breakeven history", err)
	}
	if items == nil {
		items = []Snapshot{}
	}
	return &History{Items: items}, nil
}

// Snapshot runs the due snapshot jobs now.
func (s *Service) Snapshot(ctx context.Context, onlyDriver string) []JobResult {
	return s.snapshotter.Run(ctx, strings.TrimSpace(onlyDriver))
}
