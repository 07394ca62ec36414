package earnings

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/richxcame/tartanilla-earnings/internal/periods"
	"github.com/richxcame/tartanilla-earnings/pkg/common"
	"github.com/richxcame/tartanilla-earnings/pkg/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	recentBookingsPerDriver = 5
	pendingPayoutsPreview   = 5
	yearlyReportSpan        = 5
)

// Store is the read surface the service needs.
type Store interface {
	ListEarnings(ctx context.Context, f Filter) ([]EarningRecord, error)
	ListPayouts(ctx context.Context, status string, limit int) ([]Payout, error)
	CountPayouts(ctx context.Context, status string) (int64, error)
}

// Service builds the earnings reports.
type Service struct {
	store    Store
	splitter *Splitter
	policy   StatusPolicy
	resolver *periods.Resolver
}

// NewService creates a new earnings service. resolver defines report day
// boundaries; its clock drives the default windows.
func NewService(store Store, splitter *Splitter, policy StatusPolicy, resolver *periods.Resolver) *Service {
	return &Service{store: store, splitter: splitter, policy: policy, resolver: resolver}
}

// Policy returns the configured status policy.
func (s *Service) Policy() StatusPolicy { return s.policy }

// ========================================
// TOTALS
// ========================================

// Totals is the admin earnings overview.
type Totals struct {
	Gross            decimal.Decimal `json:"gross_total"`
	Admin            decimal.Decimal `json:"admin_total"`
	Driver           decimal.Decimal `json:"driver_total"`
	AdminPercentage  decimal.Decimal `json:"admin_percentage"`
	DriverPercentage decimal.Decimal `json:"driver_percentage"`
	PendingPayouts   []Payout        `json:"pending_payouts"`
	ReleasedPayouts  []Payout        `json:"released_payouts"`
	Degraded         bool            `json:"degraded,omitempty"`
}

// GetTotals sums booking earnings and lists recent payouts. Upstream failures
// degrade to zero totals and empty lists.
func (s *Service) GetTotals(ctx context.Context) *Totals {
	pct := s.splitter.percentages.OrganizationPercentage().Mul(hundred)
	out := &Totals{
		AdminPercentage:  pct,
		DriverPercentage: hundred.Sub(pct),
		PendingPayouts:   []Payout{},
		ReleasedPayouts:  []Payout{},
	}

	records, err := s.store.ListEarnings(ctx, Filter{Policy: &s.policy, BookingsOnly: true})
	if err != nil {
		logger.WarnContext(ctx, "earnings totals degraded", zap.Error(err))
		out.Degraded = true
	} else {
		sum := Summarize(s.splitter, records)
		out.Gross, out.Admin, out.Driver = sum.Gross, sum.Admin, sum.Driver
	}

	if pending, err := s.store.ListPayouts(ctx, PayoutPending, pendingPayoutsPreview); err != nil {
		logger.WarnContext(ctx, "pending payouts degraded", zap.Error(err))
		out.Degraded = true
	} else if pending != nil {
		out.PendingPayouts = pending
	}
	if released, err := s.store.ListPayouts(ctx, PayoutReleased, 0); err != nil {
		logger.WarnContext(ctx, "released payouts degraded", zap.Error(err))
		out.Degraded = true
	} else if released != nil {
		out.ReleasedPayouts = released
	}
	return out
}

// ========================================
// DRIVER REPORTS
// ========================================

// DriverStatistics summarises one driver's split records.
type DriverStatistics struct {
	TotalEarnings      decimal.Decimal `json:"total_earnings"`
	TotalAdmin         decimal.Decimal `json:"total_admin"`
	Gross              decimal.Decimal `json:"gross"`
	Count              int             `json:"count"`
	Average            decimal.Decimal `json:"average"`
	CustomTotal        decimal.Decimal `json:"custom_total"`
	RideHailingTotal   decimal.Decimal `json:"ride_hailing_total"`
	RideHailingAllTime decimal.Decimal `json:"ride_hailing_all_time"`
}

// DriverEarnings is the per-driver earnings page.
type DriverEarnings struct {
	DriverID   string           `json:"driver_id"`
	Earnings   []SplitRecord    `json:"earnings"`
	Statistics DriverStatistics `json:"statistics"`
}

// DateRange is an optional inclusive local date range.
type DateRange struct {
	From *periods.Date
	To   *periods.Date
}

func (s *Service) window(r DateRange) *periods.Window {
	if r.From == nil && r.To == nil {
		return nil
	}
	today := s.resolver.Today()
	from, to := today, today
	if r.From != nil {
		from = *r.From
	}
	if r.To != nil {
		to = *r.To
	}
	w := s.resolver.Range(from, to)
	return &w
}

// GetDriverEarnings lists a driver's split records, newest first.
func (s *Service) GetDriverEarnings(ctx context.Context, driverID string, r DateRange) (*DriverEarnings, error) {
	if strings.TrimSpace(driverID) == "" {
		return nil, common.NewBadRequestError("driver_id is required", nil)
	}

	records, err := s.store.ListEarnings(ctx, Filter{DriverID: driverID, Window: s.window(r), Policy: &s.policy})
	if err != nil {
		return nil, common.NewBadGatewayError("failed to load driver earnings", err)
	}

	stats := DriverStatistics{}
	for _, rec := range records {
		sh := s.splitter.Split(rec)
		stats.TotalEarnings = stats.TotalEarnings.Add(sh.Driver)
		stats.TotalAdmin = stats.TotalAdmin.Add(sh.Admin)
		stats.Gross = stats.Gross.Add(sh.Total)
		stats.Count++
		switch rec.Source() {
		case SourceCustom:
			stats.CustomTotal = stats.CustomTotal.Add(sh.Driver)
		case SourceRideHailing:
			stats.RideHailingTotal = stats.RideHailingTotal.Add(sh.Driver)
		}
	}
	if stats.Count > 0 {
		stats.Average = stats.TotalEarnings.Div(decimal.NewFromInt(int64(stats.Count))).Round(2)
	}

	stats.RideHailingAllTime = stats.RideHailingTotal
	if r.From != nil || r.To != nil {
		all, err := s.store.ListEarnings(ctx, Filter{DriverID: driverID, Policy: &s.policy})
		if err != nil {
			logger.WarnContext(ctx, "all-time ride-hailing total unavailable", zap.String("driver_id", driverID), zap.Error(err))
		} else {
			stats.RideHailingAllTime = decimal.Zero
			for _, rec := range all {
				if rec.Source() == SourceRideHailing {
					stats.RideHailingAllTime = stats.RideHailingAllTime.Add(s.splitter.Split(rec).Driver)
				}
			}
		}
	}

	split := SplitAll(s.splitter, records)
	sort.SliceStable(split, func(i, j int) bool {
		return split[i].EarningDate.After(split[j].EarningDate.Time)
	})
	return &DriverEarnings{DriverID: driverID, Earnings: split, Statistics: stats}, nil
}

// DriverSummary is one row of the all-drivers report.
type DriverSummary struct {
	DriverID       string        `json:"driver_id"`
	DriverName     string        `json:"driver_name"`
	Summary
	RecentBookings []SplitRecord `json:"recent_bookings"`
}

// GetDriverSummaries reports every driver, highest driver share first.
func (s *Service) GetDriverSummaries(ctx context.Context, r DateRange) ([]DriverSummary, error) {
	records, err := s.store.ListEarnings(ctx, Filter{Window: s.window(r), Policy: &s.policy})
	if err != nil {
		return nil, common.NewBadGatewayError("failed to load driver earnings", err)
	}

	byDriver := make(map[string][]EarningRecord)
	for _, rec := range records {
		byDriver[rec.DriverID] = append(byDriver[rec.DriverID], rec)
	}

	groups := ByDriver(s.splitter, records)
	out := make([]DriverSummary, 0, len(groups))
	for _, g := range groups {
		recent := SplitAll(s.splitter, byDriver[g.Key])
		sort.SliceStable(recent, func(i, j int) bool {
			return recent[i].EarningDate.After(recent[j].EarningDate.Time)
		})
		if len(recent) > recentBookingsPerDriver {
			recent = recent[:recentBookingsPerDriver]
		}
		out = append(out, DriverSummary{DriverID: g.Key, DriverName: g.Name, Summary: g.Summary, RecentBookings: recent})
	}
	return out, nil
}

// GetPackageRevenue returns the top limit packages by gross revenue.
func (s *Service) GetPackageRevenue(ctx context.Context, limit int) ([]Group, error) {
	records, err := s.store.ListEarnings(ctx, Filter{Policy: &s.policy, ExcludeCustom: true})
	if err != nil {
		return nil, common.NewBadGatewayError("failed to load package earnings", err)
	}
	groups := ByPackage(s.splitter, records)
	if limit > 0 && len(groups) > limit {
		groups = groups[:limit]
	}
	return groups, nil
}

// ========================================
// TIME REPORTS
// ========================================

// SalesReport is a bucketed sales series.
type SalesReport struct {
	GroupBy  Granularity `json:"group_by"`
	DateFrom string      `json:"date_from"`
	DateTo   string      `json:"date_to"`
	Buckets  []Bucket    `json:"buckets"`
	BucketTotals
}

func (s *Service) salesDefaults(g Granularity) (periods.Date, periods.Date) {
	today := s.resolver.Today()
	switch g {
	case GroupYearly:
		return periods.Date{Year: today.Year - (yearlyReportSpan - 1), Month: time.January, Day: 1},
			periods.Date{Year: today.Year, Month: time.December, Day: 31}
	case GroupDaily, GroupWeekly:
		return today.FirstOfMonth(), today.LastOfMonth()
	default:
		return today.FirstOfYear(), periods.Date{Year: today.Year, Month: time.December, Day: 31}
	}
}

// GetSalesReport buckets non-custom earnings. Reversed records count as
// cancellations; both bounds must be given to replace the default window.
func (s *Service) GetSalesReport(ctx context.Context, g Granularity, r DateRange) (*SalesReport, error) {
	if g == GroupHourly {
		g = GroupDaily
	}
	from, to := s.salesDefaults(g)
	if r.From != nil && r.To != nil {
		from, to = *r.From, *r.To
	}
	if to.Before(from) {
		from, to = to, from
	}

	window := s.resolver.Range(from, to)
	records, err := s.store.ListEarnings(ctx, Filter{Window: &window, ExcludeCustom: true})
	if err != nil {
		return nil, common.NewBadGatewayError("failed to load sales report", err)
	}

	plan := NewBucketPlan(g, s.resolver.Location(), from, to)
	buckets := FillBuckets(s.splitter, plan, records, func(rec EarningRecord) bool {
		return strings.EqualFold(strings.TrimSpace(rec.Status), StatusReversed)
	})
	return &SalesReport{
		GroupBy:      g,
		DateFrom:     from.String(),
		DateTo:       to.String(),
		Buckets:      buckets,
		BucketTotals: SumBuckets(buckets),
	}, nil
}

// HourlyIncome is today's income per local hour.
type HourlyIncome struct {
	Date     string   `json:"date"`
	Buckets  []Bucket `json:"buckets"`
	Degraded bool     `json:"degraded,omitempty"`
}

// GetHourlyIncome buckets today's booking earnings into 24 local hours.
func (s *Service) GetHourlyIncome(ctx context.Context) *HourlyIncome {
	today := s.resolver.Today()
	window := s.resolver.Current(periods.Today)
	plan := NewBucketPlan(GroupHourly, s.resolver.Location(), today, today)
	out := &HourlyIncome{Date: today.String()}

	records, err := s.store.ListEarnings(ctx, Filter{Window: &window, Policy: &s.policy, BookingsOnly: true, ExcludeCustom: true})
	if err != nil {
		logger.WarnContext(ctx, "hourly income degraded", zap.Error(err))
		out.Degraded = true
		records = nil
	}
	out.Buckets = FillBuckets(s.splitter, plan, records, nil)
	return out
}

// ========================================
// DASHBOARD
// ========================================

// DashboardMetrics is the admin dashboard headline.
type DashboardMetrics struct {
	Start           string          `json:"start"`
	End             string          `json:"end"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	AdminTotal      decimal.Decimal `json:"admin_total"`
	DriverTotal     decimal.Decimal `json:"driver_total"`
	RecordCount     int             `json:"record_count"`
	PendingPayouts  int64           `json:"pending_payouts_count"`
	WindowDefaulted bool            `json:"window_defaulted,omitempty"`
	Degraded        bool            `json:"degraded,omitempty"`
}

func countsTowardRevenue(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case StatusPending, StatusFinalized:
		return true
	}
	return false
}

// GetDashboardMetrics totals the latest record of each booking in the
// inclusive local date range start..end (YYYY-MM-DD). Malformed or missing
// dates fall back to the current month and set WindowDefaulted.
func (s *Service) GetDashboardMetrics(ctx context.Context, start, end string) *DashboardMetrics {
	today := s.resolver.Today()
	from, fromErr := periods.ParseDate(strings.TrimSpace(start))
	to, toErr := periods.ParseDate(strings.TrimSpace(end))

	out := &DashboardMetrics{}
	if fromErr != nil || toErr != nil {
		if start != "" || end != "" {
			logger.WarnContext(ctx, "dashboard window defaulted to current month",
				zap.String("start", start), zap.String("end", end))
			out.WindowDefaulted = true
		}
		from, to = today.FirstOfMonth(), today.LastOfMonth()
	}
	if to.Before(from) {
		from, to = to, from
	}
	out.Start, out.End = from.String(), to.String()

	window := s.resolver.Range(from, to)
	records, err := s.store.ListEarnings(ctx, Filter{Window: &window})
	if err != nil {
		logger.WarnContext(ctx, "dashboard revenue degraded", zap.Error(err))
		out.Degraded = true
	}

	out.RecordCount = len(records)
	for _, rec := range LatestPerBooking(records) {
		if !countsTowardRevenue(rec.Status) {
			continue
		}
		sh := s.splitter.Split(rec)
		out.TotalRevenue = out.TotalRevenue.Add(sh.Total)
		out.AdminTotal = out.AdminTotal.Add(sh.Admin)
		out.DriverTotal = out.DriverTotal.Add(sh.Driver)
	}

	count, err := s.store.CountPayouts(ctx, PayoutPending)
	if err != nil {
		logger.WarnContext(ctx, "pending payouts count degraded", zap.Error(err))
		out.Degraded = true
	}
	out.PendingPayouts = count
	return out
}
