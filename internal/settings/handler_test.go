package settings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/tartanilla-earnings/internal/audit"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Mocks
// ============================================================================

type MockPercentageStore struct {
	mock.Mock
}

func (m *MockPercentageStore) Percent() decimal.Decimal {
	return m.Called().Get(0).(decimal.Decimal)
}

func (m *MockPercentageStore) Update(ctx context.Context, pct decimal.Decimal) error {
	return m.Called(ctx, pct).Error(0)
}

type MockRecalculator struct {
	mock.Mock
}

func (m *MockRecalculator) RecalculatePending(ctx context.Context, fraction decimal.Decimal) (int, error) {
	args := m.Called(ctx, fraction)
	return args.Int(0), args.Error(1)
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingAudit) Record(ctx context.Context, e audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

// ============================================================================
// Helpers
// ============================================================================

func setupRouter(store PercentageStore, payouts PayoutRecalculator, rec audit.Recorder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(store, payouts, rec).RegisterRoutes(r.Group("/api/earnings"))
	return r
}

func postJSON(r *gin.Engine, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	return raw
}

func decimalArg(want string) interface{} {
	return mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(decimal.RequireFromString(want))
	})
}

// ============================================================================
// Tests
// ============================================================================

func TestGetPercentageHandler(t *testing.T) {
	store := new(MockPercentageStore)
	store.On("Percent").Return(decimal.NewFromInt(20))

	w := httptest.NewRecorder()
	setupRouter(store, nil, &recordingAudit{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/earnings/percentage", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "20", data["organization_percentage"])
	assert.Equal(t, "80", data["driver_percentage"])
	assert.NotContains(t, data, "recalculated_payouts")
}

func TestUpdatePercentageHandlerRejectsBadBodies(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"not a number", `{"percentage":"abc"}`, "invalid percentage value"},
		{"malformed json", `{"percentage":`, "invalid percentage value"},
		{"missing field", `{}`, "percentage field is required"},
		{"above range", `{"percentage":101}`, ErrPercentageRange.Error()},
		{"below range", `{"percentage":-1}`, ErrPercentageRange.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockPercentageStore)
			rec := &recordingAudit{}
			w := postJSON(setupRouter(store, nil, rec), "/api/earnings/update-percentage", tt.body, nil)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.message, decode(t, w)["error"])
			store.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
			assert.Empty(t, rec.entries)
		})
	}
}

func TestUpdatePercentageHandlerSuccess(t *testing.T) {
	store := new(MockPercentageStore)
	store.On("Percent").Return(decimal.NewFromInt(20)).Once()
	store.On("Update", mock.Anything, decimalArg("25")).Return(nil).Once()

	payouts := new(MockRecalculator)
	payouts.On("RecalculatePending", mock.Anything, decimalArg("0.25")).Return(3, nil).Once()

	rec := &recordingAudit{}
	w := postJSON(setupRouter(store, payouts, rec), "/api/earnings/update-percentage", `{"percentage":"25"}`,
		map[string]string{audit.HeaderUserName: "Ana", audit.HeaderUserRole: "Finance"})

	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "25", data["organization_percentage"])
	assert.Equal(t, "75", data["driver_percentage"])
	assert.Equal(t, float64(3), data["recalculated_payouts"])

	require.Len(t, rec.entries, 1)
	entry := rec.entries[0]
	assert.Equal(t, audit.ActionUpdateOrgPercentage, entry.Action)
	assert.Equal(t, KeyOrganizationPercentage, entry.EntityID)
	assert.Equal(t, "Ana", entry.Username)
	assert.Equal(t, "finance", entry.Role)
	assert.Equal(t, "20", entry.OldData["percentage"])
	assert.Equal(t, "25", entry.NewData["percentage"])

	store.AssertExpectations(t)
	payouts.AssertExpectations(t)
}

func TestUpdatePercentageHandlerRecalculationFailureStillSucceeds(t *testing.T) {
	store := new(MockPercentageStore)
	store.On("Percent").Return(decimal.NewFromInt(20)).Once()
	store.On("Update", mock.Anything, decimalArg("30")).Return(nil).Once()

	payouts := new(MockRecalculator)
	payouts.On("RecalculatePending", mock.Anything, mock.Anything).Return(0, errors.New("upstream down")).Once()

	w := postJSON(setupRouter(store, payouts, &recordingAudit{}), "/api/earnings/update-percentage", `{"percentage":30}`, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.NotContains(t, data, "recalculated_payouts")
	payouts.AssertExpectations(t)
}

func TestUpdatePercentageHandlerSaveFailure(t *testing.T) {
	store := new(MockPercentageStore)
	store.On("Percent").Return(decimal.NewFromInt(20)).Once()
	store.On("Update", mock.Anything, mock.Anything).Return(errors.New("connection refused")).Once()

	payouts := new(MockRecalculator)
	rec := &recordingAudit{}
	w := postJSON(setupRouter(store, payouts, rec), "/api/earnings/update-percentage", `{"percentage":10}`, nil)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "failed to update organization percentage", decode(t, w)["error"])
	assert.Empty(t, rec.entries)
	payouts.AssertNotCalled(t, "RecalculatePending", mock.Anything, mock.Anything)
}
