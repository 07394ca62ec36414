package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richxcame/tartanilla-earnings/pkg/logger"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupCronRouter(secret string) *gin.Engine {
	r := gin.New()
	r.POST("/snapshot", CronSecret(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

func TestCronSecret_OpenWhenUnset(t *testing.T) {
	w := httptest.NewRecorder()
	setupCronRouter("").ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/snapshot", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCronSecret_MissingHeader(t *testing.T) {
	w := httptest.NewRecorder()
	setupCronRouter("s3cret").ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/snapshot", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid cron secret")
	assert.Contains(t, w.Body.String(), `"success":false`)
}

func TestCronSecret_WrongSecret(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/snapshot", nil)
	req.Header.Set(CronSecretHeader, "guess")
	w := httptest.NewRecorder()
	setupCronRouter("s3cret").ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCronSecret_ValidSecret(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/snapshot", nil)
	req.Header.Set(CronSecretHeader, "s3cret")
	w := httptest.NewRecorder()
	setupCronRouter("s3cret").ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCorrelationID_ReusesValidHeader(t *testing.T) {
	incoming := uuid.New().String()
	var seen string

	r := gin.New()
	r.Use(CorrelationID())
	r.GET("/x", func(c *gin.Context) {
		seen = logger.CorrelationIDFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(CorrelationIDHeader, incoming)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, incoming, seen)
	assert.Equal(t, incoming, w.Header().Get(CorrelationIDHeader))
}

func TestCorrelationID_ReplacesMalformedHeader(t *testing.T) {
	var seen string

	r := gin.New()
	r.Use(CorrelationID())
	r.GET("/x", func(c *gin.Context) {
		seen = GetCorrelationID(c)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(CorrelationIDHeader, "not-a-uuid")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
	assert.NotEqual(t, "not-a-uuid", seen)
}

func TestMetricsAndRequestLoggerPassThrough(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger("earnings-test"), Metrics("earnings-test"))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
