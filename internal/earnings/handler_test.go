package earnings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/tartanilla-earnings/internal/periods"
	"github.com/richxcame/tartanilla-earnings/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Mock Reports
// ============================================================================

type MockReports struct {
	mock.Mock
}

func (m *MockReports) GetTotals(ctx context.Context) *Totals {
	return m.Called(ctx).Get(0).(*Totals)
}

func (m *MockReports) GetDriverEarnings(ctx context.Context, driverID string, r DateRange) (*DriverEarnings, error) {
	args := m.Called(ctx, driverID, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*DriverEarnings), args.Error(1)
}

func (m *MockReports) GetDriverSummaries(ctx context.Context, r DateRange) ([]DriverSummary, error) {
	args := m.Called(ctx, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]DriverSummary), args.Error(1)
}

func (m *MockReports) GetPackageRevenue(ctx context.Context, limit int) ([]Group, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Group), args.Error(1)
}

func (m *MockReports) GetSalesReport(ctx context.Context, g Granularity, r DateRange) (*SalesReport, error) {
	args := m.Called(ctx, g, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*SalesReport), args.Error(1)
}

func (m *MockReports) GetHourlyIncome(ctx context.Context) *HourlyIncome {
	return m.Called(ctx).Get(0).(*HourlyIncome)
}

func (m *MockReports) GetDashboardMetrics(ctx context.Context, start, end string) *DashboardMetrics {
	return m.Called(ctx, start, end).Get(0).(*DashboardMetrics)
}

// ============================================================================
// Helpers
// ============================================================================

func setupRouter(svc Reports) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r)
	return r
}

func perform(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) (common.Response, map[string]interface{}) {
	t.Helper()
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	resp := common.Response{}
	resp.Success, _ = raw["success"].(bool)
	resp.Error, _ = raw["error"].(string)
	return resp, raw
}

// ============================================================================
// Tests
// ============================================================================

func TestGetDriverEarningsHandlerRequiresDriverID(t *testing.T) {
	svc := new(MockReports)
	w := perform(setupRouter(svc), http.MethodGet, "/api/earnings/driver")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp, _ := decodeResponse(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, "driver_id is required", resp.Error)
	svc.AssertNotCalled(t, "GetDriverEarnings", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetDriverEarningsHandlerRejectsBadDate(t *testing.T) {
	svc := new(MockReports)
	w := perform(setupRouter(svc), http.MethodGet, "/api/earnings/driver?driver_id=d1&date_from=03/01/2025")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp, _ := decodeResponse(t, w)
	assert.Contains(t, resp.Error, "date_from")
}

func TestGetDriverEarningsHandlerSuccess(t *testing.T) {
	svc := new(MockReports)
	from := periods.Date{Year: 2025, Month: time.March, Day: 1}
	svc.On("GetDriverEarnings", mock.Anything, "d1", DateRange{From: &from}).
		Return(&DriverEarnings{DriverID: "d1", Earnings: []SplitRecord{}}, nil).Once()

	w := perform(setupRouter(svc), http.MethodGet, "/api/earnings/driver?driver_id=d1&date_from=2025-03-01")

	assert.Equal(t, http.StatusOK, w.Code)
	resp, raw := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "d1", raw["data"].(map[string]interface{})["driver_id"])
	svc.AssertExpectations(t)
}

func TestGetDriverEarningsHandlerBadGateway(t *testing.T) {
	svc := new(MockReports)
	svc.On("GetDriverEarnings", mock.Anything, "d1", DateRange{}).
		Return(nil, common.NewBadGatewayError("failed to load driver earnings", errUpstream)).Once()

	w := perform(setupRouter(svc), http.MethodGet, "/api/earnings/driver?driver_id=d1")

	assert.Equal(t, http.StatusBadGateway, w.Code)
	resp, _ := decodeResponse(t, w)
	assert.Equal(t, "failed to load driver earnings", resp.Error)
}

func TestGetPackageRevenueHandlerClampsLimit(t *testing.T) {
	svc := new(MockReports)
	svc.On("GetPackageRevenue", mock.Anything, 100).Return([]Group{{Key: "A"}}, nil).Once()

	w := perform(setupRouter(svc), http.MethodGet, "/api/earnings/packages?limit=5000")

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestGetSalesReportHandlerParsesGroupBy(t *testing.T) {
	svc := new(MockReports)
	svc.On("GetSalesReport", mock.Anything, GroupWeekly, DateRange{}).Return(&SalesReport{GroupBy: GroupWeekly}, nil).Once()

	w := perform(setupRouter(svc), http.MethodGet, "/api/earnings/sales-report?group_by=WEEKLY")

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestGetDashboardMetricsHandlerMarksDegraded(t *testing.T) {
	svc := new(MockReports)
	svc.On("GetDashboardMetrics", mock.Anything, "bad", "").
		Return(&DashboardMetrics{Start: "2025-03-01", End: "2025-03-31", WindowDefaulted: true, Degraded: true}).Once()

	w := perform(setupRouter(svc), http.MethodGet, "/accounts/api/dashboard-metrics?start=bad")

	assert.Equal(t, http.StatusOK, w.Code)
	_, raw := decodeResponse(t, w)
	data := raw["data"].(map[string]interface{})
	assert.Equal(t, true, data["window_defaulted"])
	assert.Equal(t, true, raw["meta"].(map[string]interface{})["degraded"])
}

func TestGetTotalsHandler(t *testing.T) {
	svc := new(MockReports)
	svc.On("GetTotals", mock.Anything).Return(&Totals{PendingPayouts: []Payout{}, ReleasedPayouts: []Payout{}}).Once()

	w := perform(setupRouter(svc), http.MethodGet, "/api/earnings/")

	assert.Equal(t, http.StatusOK, w.Code)
	_, raw := decodeResponse(t, w)
	_, hasMeta := raw["meta"]
	assert.False(t, hasMeta)
}
