package dependency

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"opsapi/internal/constants"
	"opsapi/internal/logger"
)

// StubHandler fakes the external dependency for local runs and tests.
//
//	GET /_stub/dependency?mode=ok
//	GET /_stub/dependency?mode=fail
//	GET /_stub/dependency?mode=slow&delayMs=1500
func StubHandler(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		mode := strings.ToLower(strings.TrimSpace(c.DefaultQuery("mode", "ok")))

		delayMs, err := strconv.Atoi(c.DefaultQuery("delayMs", "1500"))
		if err != nil || delayMs < 0 || delayMs > constants.StubMaxDelayMs {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":      "delayMs must be between 0 and 30000",
				"error_code": "VALIDATION_ERROR",
			})
			return
		}

		log.InfowCtx(c.Request.Context(), "Stub dependency hit",
			"mode", mode,
			"delay_ms", delayMs,
		)

		switch mode {
		case "ok":
			c.JSON(http.StatusOK, gin.H{
				"stub": "dependency",
				"mode": "ok",
			})

		case "fail":
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"timestamp": time.Now().Format(time.RFC3339Nano),
				"status":    503,
				"error":     "SERVICE_UNAVAILABLE",
				"message":   "Stub forced failure (mode=fail)",
				"path":      c.Request.URL.Path,
			})

		case "slow":
			select {
			case <-c.Request.Context().Done():
				return
			case <-time.After(time.Duration(delayMs) * time.Millisecond):
			}
			c.JSON(http.StatusOK, gin.H{
				"stub":    "dependency",
				"mode":    "slow",
				"delayMs": delayMs,
			})

		default:
			c.JSON(http.StatusBadRequest, gin.H{
				"error":      "mode must be one of: ok, fail, slow",
				"error_code": "VALIDATION_ERROR",
			})
		}
	}
}
