package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/credits/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/credits/internal/observability/metrics"
	"github.com/smallbiznis/credits/pkg/tenantctx"
	"go.uber.org/zap"
)

const rateLimitReasonTenantRate = "tenant-rate"

// DebitRateLimit applies the per-tenant token bucket to debit requests. It
// is a no-op when no limiter is configured.
func (s *Server) DebitRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.debitLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		tenantID, ok := tenantctx.TenantIDFromContext(ctx)
		if !ok {
			AbortWithError(c, ErrTenantRequired)
			return
		}

		res, err := s.debitLimiter.AllowTenant(ctx, tenantID.String())
		if err != nil {
			logger.FromContext(ctx).Warn("debit rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !res.Allowed {
			retryAfter := int(res.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			denyDebitRateLimit(c, normalizeRateLimitEndpoint(c), rateLimitReasonTenantRate, s.obsMetrics)
			return
		}

		c.Next()
	}
}

func denyDebitRateLimit(c *gin.Context, endpoint, reason string, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("debit rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
	)
	metrics.RecordRateLimitDenied(ctx, endpoint, reason)

	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
