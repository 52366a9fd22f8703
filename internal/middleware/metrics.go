package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"admate-rag-go/pkg/metrics"
)

// Metrics 记录每个路由的请求数与耗时。
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
