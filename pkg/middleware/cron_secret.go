package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/tartanilla-earnings/pkg/common"
)

// CronSecretHeader carries the shared secret for scheduled triggers.
const CronSecretHeader = "X-Cron-Secret"

// CronSecret gates scheduled-job endpoints behind a shared secret compared in
// constant time. An empty secret leaves the endpoint open.
func CronSecret(secret string) gin.HandlerFunc {
	expected := []byte(secret)

	return func(c *gin.Context) {
		if len(expected) == 0 {
			c.Next()
			return
		}

		provided := []byte(c.GetHeader(CronSecretHeader))
		if subtle.ConstantTimeCompare(expected, provided) != 1 {
			common.AbortWithError(c, http.StatusUnauthorized, "invalid cron secret")
			return
		}

		c.Next()
	}
}
