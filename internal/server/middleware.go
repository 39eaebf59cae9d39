package server

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/routepay/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	defaultMaxUploadBytes  = 20 << 20
	contextUploadBatchKey  = "upload_batch_id"
	multipartMemoryReserve = 8 << 20
)

// UploadLimit caps the request body at the configured upload size and
// rejects larger declared bodies before any parsing.
func (s *Server) UploadLimit() gin.HandlerFunc {
	limit := s.cfg.Payroll.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadBytes
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			AbortWithError(c, ErrPayloadTooLarge)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// UploadRateLimit throttles uploads per driver code when a limiter is
// configured. Limiter failures reject the upload rather than bypass it.
func (s *Server) UploadRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.uploadLimiter == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		driverCode := strings.TrimSpace(c.Param("driverCode"))
		res, err := s.uploadLimiter.Allow(ctx, driverCode)
		if err != nil {
			logger.FromContext(ctx).Warn("upload rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !res.Allowed {
			retry := int(math.Ceil(res.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			logger.FromContext(ctx).Warn("upload rate limit exceeded",
				zap.String("driver_code", driverCode),
				zap.Int("retry_after_s", retry),
			)
			c.Header("Retry-After", strconv.Itoa(retry))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
