package breakeven

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/richxcame/tartanilla-earnings/internal/earnings"
	"github.com/richxcame/tartanilla-earnings/internal/notifications"
	"github.com/richxcame/tartanilla-earnings/internal/periods"
	"github.com/richxcame/tartanilla-earnings/pkg/common"
	"github.com/richxcame/tartanilla-earnings/pkg/postgrest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Monday 2025-03-10, 09:30 in Manila.
var reportNow = time.Date(2025, 3, 10, 1, 30, 0, 0, time.UTC)

type inlineDispatcher struct {
	names []string
	err   error
	runs  []error
}

func (d *inlineDispatcher) Submit(ctx context.Context, name string, fn notifications.Task) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	d.names = append(d.names, name)
	d.runs = append(d.runs, fn(ctx))
	return "job-1", nil
}

type recordingChecker struct {
	driverIDs []string
	metrics   []Metrics
	err       error
}

func (c *recordingChecker) Check(_ context.Context, driverID string, current Metrics) ([]Kind, error) {
	c.driverIDs = append(c.driverIDs, driverID)
	c.metrics = append(c.metrics, current)
	return nil, c.err
}

type errEarnings struct{ fakeEarnings }

func (*errEarnings) ListEarnings(context.Context, earnings.Filter) ([]earnings.EarningRecord, error) {
	return nil, errors.New("connection reset")
}

func newReportService(src EarningsSource, history HistoryStore) *Service {
	policy := earnings.NewStatusPolicy(nil, []string{"cancelled", "reversed"})
	return NewService(src, history, testResolver(reportNow), periods.Manila, policy, DefaultShares())
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	return appErr.Code
}

func TestReportToday(t *testing.T) {
	src := &fakeEarnings{records: map[string][]earnings.EarningRecord{
		"driver-1": {
			bookingRecord("100", nil),
			{Amount: d("250"), CustomTourID: sp("c-1")},
		},
	}}
	svc := newReportService(src, newFakeHistory())

	report, err := svc.Report(context.Background(), ReportRequest{DriverID: "driver-1", Period: periods.Today, Expenses: d("500")})

	require.NoError(t, err)
	assert.Equal(t, periods.Today, report.Period)
	assert.Equal(t, "2025-03-10T00:00:00+08:00", report.DateStart)
	assert.Equal(t, "2025-03-10T23:59:59+08:00", report.DateEnd)
	assert.True(t, report.RevenuePeriod.Equal(d("330")))
	require.NotNil(t, report.RevenueToday)
	assert.True(t, report.RevenueToday.Equal(d("330")))
	assert.Equal(t, 2, report.TotalBookings)
	assert.True(t, report.FarePerRide.Equal(d("165")))
	assert.Equal(t, int64(4), report.RidesNeeded)
	assert.True(t, report.Profit.Equal(d("-170")))
	assert.True(t, report.DeficitAmount.Equal(d("170")))
	assert.False(t, report.BreakevenHit)
	assert.Equal(t, 1, report.Breakdown.Counts.Custom)
	assert.Empty(t, report.NotificationJobID)
	assert.Nil(t, report.Debug)

	require.Len(t, src.filters, 1)
	f := src.filters[0]
	assert.Equal(t, "driver-1", f.DriverID)
	require.NotNil(t, f.Window)
	assert.True(t, f.Window.Start.Equal(time.Date(2025, 3, 9, 16, 0, 0, 0, time.UTC)))
	require.NotNil(t, f.Policy)
	assert.Equal(t, []string{"cancelled", "reversed"}, f.Policy.Exclude)
}

func TestReportWeekHasNoRevenueToday(t *testing.T) {
	svc := newReportService(&fakeEarnings{}, newFakeHistory())

	report, err := svc.Report(context.Background(), ReportRequest{DriverID: "driver-1", Period: periods.Week})

	require.NoError(t, err)
	assert.Nil(t, report.RevenueToday)
	assert.Equal(t, "2025-03-10T00:00:00+08:00", report.DateStart)
	assert.Equal(t, "2025-03-16T23:59:59+08:00", report.DateEnd)
}

func TestReportZoneOverrides(t *testing.T) {
	svc := newReportService(&fakeEarnings{}, newFakeHistory())

	display, err := svc.Report(context.Background(), ReportRequest{DriverID: "driver-1", Period: periods.Today, DisplayTZ: "utc"})
	require.NoError(t, err)
	assert.Equal(t, "2025-03-09T16:00:00Z", display.DateStart)
	assert.Equal(t, "2025-03-10T15:59:59Z", display.DateEnd)

	bucket, err := svc.Report(context.Background(), ReportRequest{DriverID: "driver-1", Period: periods.Today, BucketTZ: "utc"})
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10T08:00:00+08:00", bucket.DateStart)
	assert.Equal(t, "2025-03-11T07:59:59+08:00", bucket.DateEnd)
}

func TestReportStatusOverride(t *testing.T) {
	src := &fakeEarnings{}
	svc := newReportService(src, newFakeHistory())

	_, err := svc.Report(context.Background(), ReportRequest{
		DriverID: "driver-1",
		Period:   periods.Month,
		StatusIn: []string{" Finalized "},
	})

	require.NoError(t, err)
	require.Len(t, src.filters, 1)
	assert.Equal(t, []string{"finalized"}, src.filters[0].Policy.Include)
}

func TestReportValidation(t *testing.T) {
	svc := newReportService(&fakeEarnings{}, newFakeHistory())

	_, err := svc.Report(context.Background(), ReportRequest{Period: periods.Today})
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	_, err = svc.Report(context.Background(), ReportRequest{DriverID: "driver-1", Expenses: d("-1")})
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
}

func TestReportUpstreamFailure(t *testing.T) {
	svc := newReportService(&errEarnings{}, newFakeHistory())

	_, err := svc.Report(context.Background(), ReportRequest{DriverID: "driver-1", Period: periods.Today})

	assert.Equal(t, http.StatusBadGateway, statusOf(t, err))
}

func TestReportQueuesNotificationCheck(t *testing.T) {
	src := &fakeEarnings{records: map[string][]earnings.EarningRecord{
		"driver-1": {bookingRecord("100", dp("600"))},
	}}
	checker := &recordingChecker{}
	dispatcher := &inlineDispatcher{}
	svc := newReportService(src, newFakeHistory()).WithNotifications(checker, dispatcher)

	report, err := svc.Report(context.Background(), ReportRequest{DriverID: "driver-1", Period: periods.Today, Expenses: d("500")})

	require.NoError(t, err)
	assert.Equal(t, "job-1", report.NotificationJobID)
	assert.Equal(t, []string{"breakeven-check"}, dispatcher.names)
	assert.Equal(t, []string{"driver-1"}, checker.driverIDs)
	assert.True(t, checker.metrics[0].Profit.Equal(d("100")))
}

func TestReportSkipsNotificationWithoutExpenses(t *testing.T) {
	checker := &recordingChecker{}
	dispatcher := &inlineDispatcher{}
	svc := newReportService(&fakeEarnings{}, newFakeHistory()).WithNotifications(checker, dispatcher)

	report, err := svc.Report(context.Background(), ReportRequest{DriverID: "driver-1", Period: periods.Today})

	require.NoError(t, err)
	assert.Empty(t, report.NotificationJobID)
	assert.Empty(t, dispatcher.names)
}

func TestReportSurvivesFullQueue(t *testing.T) {
	dispatcher := &inlineDispatcher{err: notifications.ErrQueueFull}
	svc := newReportService(&fakeEarnings{}, newFakeHistory()).WithNotifications(&recordingChecker{}, dispatcher)

	report, err := svc.Report(context.Background(), ReportRequest{DriverID: "driver-1", Period: periods.Today, Expenses: d("500")})

	require.NoError(t, err)
	assert.Empty(t, report.NotificationJobID)
}

func TestReportDebug(t *testing.T) {
	records := make([]earnings.EarningRecord, 0, 7)
	for i := 0; i < 7; i++ {
		status := "finalized"
		if i%3 == 0 {
			status = "Pending"
		}
		records = append(records, earnings.EarningRecord{
			ID:          "e" + string(rune('0'+i)),
			Amount:      d("10"),
			Status:      status,
			BookingID:   sp("b"),
			EarningDate: postgrest.Timestamp{Time: time.Date(2025, 3, 9, 17, 0, 0, 0, time.UTC)},
		})
	}
	svc := newReportService(&fakeEarnings{records: map[string][]earnings.EarningRecord{"driver-1": records}}, newFakeHistory())

	report, err := svc.Report(context.Background(), ReportRequest{
		DriverID:      "driver-1",
		Period:        periods.Today,
		StatusExclude: []string{"reversed"},
		Debug:         true,
	})

	require.NoError(t, err)
	dbg := report.Debug
	require.NotNil(t, dbg)
	assert.Equal(t, "2025-03-10T09:30:00+08:00", dbg.ServerNowPH)
	assert.Equal(t, "2025-03-10T01:30:00Z", dbg.ServerNowUTC)
	assert.Equal(t, "ph", dbg.DisplayTZ)
	assert.Equal(t, "ph", dbg.BucketTZ)
	assert.Equal(t, Bounds{Gte: "2025-03-10T00:00:00+08:00", Lt: "2025-03-11T00:00:00+08:00"}, dbg.BucketWindow)
	assert.Equal(t, Bounds{Gte: "2025-03-09T16:00:00Z", Lt: "2025-03-10T16:00:00Z"}, dbg.UTCWindow)
	assert.Equal(t, Counts{Standard: 7}, dbg.Counts)
	assert.Equal(t, periods.WeekCalendar, dbg.WeekMode)
	assert.Equal(t, []string{}, dbg.Included)
	assert.Equal(t, []string{"cancelled", "reversed"}, dbg.Excluded)
	assert.Equal(t, []string{}, dbg.StatusIn)
	assert.Equal(t, []string{"reversed"}, dbg.StatusExclude)
	assert.Equal(t, map[string]int{"finalized": 4, "pending": 3}, dbg.StatusTally)
	assert.Equal(t, map[string]string{"booking": "0.8", "custom": "1"}, dbg.Shares)
	require.Len(t, dbg.RowsPreview, 5)

	row := dbg.RowsPreview[0]
	assert.Equal(t, "e0", row.ID)
	assert.True(t, row.HasBooking)
	assert.Equal(t, "2025-03-09T17:00:00Z", row.EarningDB)
	assert.Equal(t, "2025-03-10T01:00:00+08:00", row.EarningDisplay)
	assert.Equal(t, "2025-03-10", row.EarningBucketDay)
}

func TestHistoryDefaultsAndExcludeCurrent(t *testing.T) {
	history := newFakeHistory()
	svc := newReportService(&fakeEarnings{}, history)

	result, err := svc.History(context.Background(), HistoryRequest{DriverID: "driver-1", ExcludeCurrent: true})

	require.NoError(t, err)
	assert.NotNil(t, result.Items)
	assert.Empty(t, result.Items)
	assert.Equal(t, periods.Daily, history.lastQuery.PeriodType)
	assert.Equal(t, 30, history.lastQuery.Limit)
	assert.True(t, history.lastQuery.Before.Equal(time.Date(2025, 3, 9, 16, 0, 0, 0, time.UTC)))
}

func TestHistoryWeeklyKeepsCurrentWhenAsked(t *testing.T) {
	history := newFakeHistory()
	history.listResult = []Snapshot{{DriverID: "driver-1", PeriodType: periods.Weekly}}
	svc := newReportService(&fakeEarnings{}, history)

	result, err := svc.History(context.Background(), HistoryRequest{DriverID: "driver-1", PeriodType: periods.Weekly, Limit: 500})

	require.NoError(t, err)
	assert.Len(t, result.Items, 1)
	assert.Equal(t, 200, history.lastQuery.Limit)
	assert.True(t, history.lastQuery.Before.IsZero())
}

func TestHistoryExcludeCurrentMonth(t *testing.T) {
	history := newFakeHistory()
	svc := newReportService(&fakeEarnings{}, history)

	_, err := svc.History(context.Background(), HistoryRequest{DriverID: "driver-1", PeriodType: periods.Monthly, ExcludeCurrent: true})

	require.NoError(t, err)
	assert.True(t, history.lastQuery.Before.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, periods.Manila)))
}

func TestHistoryFailures(t *testing.T) {
	history := newFakeHistory()
	history.listErr = errors.New("timeout")
	svc := newReportService(&fakeEarnings{}, history)

	_, err := svc.History(context.Background(), HistoryRequest{DriverID: "driver-1"})
	assert.Equal(t, http.StatusBadGateway, statusOf(t, err))

	_, err = svc.History(context.Background(), HistoryRequest{})
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
}

func TestServiceSnapshotDelegates(t *testing.T) {
	history := newFakeHistory()
	svc := newReportService(&fakeEarnings{drivers: []string{"d1"}}, history)

	results := svc.Snapshot(context.Background(), "")

	assert.Equal(t, []JobResult{{PeriodType: periods.Daily, Count: 1}}, results)
	assert.Len(t, history.rows, 1)
}
