package middleware

import (
	"time"

	"multicarrier-planner/internal/logging"
	"multicarrier-planner/internal/observability"

	"github.com/gin-gonic/gin"
)

const RequestIDHeader = "X-Request-ID"

// Logger attaches a request id and a request scoped logger to the context,
// then logs and measures each request once it completes.
func Logger(log logging.Logger, metrics *observability.Metrics) gin.HandlerFunc {
	if log == nil {
		log = logging.Noop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		ctx := c.Request.Context()
		if id := c.GetHeader(RequestIDHeader); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}
		ctx, reqLog := logging.WithRequestLogger(ctx, log)
		ctx = logging.ContextWithLogger(ctx, reqLog)
		c.Request = c.Request.WithContext(ctx)
		c.Header(RequestIDHeader, logging.RequestIDFromContext(ctx))

		c.Next()

		d := time.Since(start)
		code := c.Writer.Status()
		metrics.ObserveHTTP(c.Request.Method, c.FullPath(), code, d)

		fields := []logging.Field{
			logging.String("method", c.Request.Method),
			logging.String("path", c.Request.URL.Path),
			logging.Int("status", code),
			logging.Duration("duration", d),
		}
		switch {
		case code >= 500:
			reqLog.Error(ctx, "request", fields...)
		case code >= 400:
			reqLog.Warn(ctx, "request", fields...)
		default:
			reqLog.Info(ctx, "request", fields...)
		}
	}
}
