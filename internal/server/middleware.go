package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/credits/pkg/tenantctx"
)

// HeaderTenant carries the tenant id resolved by the calling layer.
const HeaderTenant = "X-Tenant-ID"

// TenantRequired rejects requests without a valid tenant header and stores
// the tenant on the request context.
func TenantRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderTenant))
		if raw == "" {
			AbortWithError(c, ErrTenantRequired)
			return
		}

		tenantID, err := snowflake.ParseString(raw)
		if err != nil || tenantID <= 0 {
			AbortWithError(c, newValidationError("tenant_id", "invalid_tenant", "invalid tenant id"))
			return
		}

		c.Request = c.Request.WithContext(tenantctx.WithTenantID(c.Request.Context(), tenantID))
		c.Next()
	}
}

func tenantFromRequest(c *gin.Context) (snowflake.ID, bool) {
	tenantID, ok := tenantctx.TenantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrTenantRequired)
		return 0, false
	}
	return tenantID, true
}
