package ingest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/juju/ratelimit"

	"github.com/neurobot/backend/internal/metrics"
)

// RateLimit admits requests from a token bucket refilled at ratePerSecond
// up to burst tokens. Rejected requests get 429. A non-positive rate turns
// limiting off.
func RateLimit(ratePerSecond float64, burst int64, m *metrics.Metrics) gin.HandlerFunc {
	if ratePerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst < 1 {
		burst = 1
	}
	bucket := ratelimit.NewBucketWithRate(ratePerSecond, burst)
	return func(c *gin.Context) {
		if bucket.TakeAvailable(1) == 0 {
			m.IngestRequest(metrics.OutcomeLimited)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"detail": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
