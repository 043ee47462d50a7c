package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	autorechargedomain "github.com/smallbiznis/credits/internal/autorecharge/domain"
)

type upsertAutoRechargeRequest struct {
	IsEnabled             bool   `json:"is_enabled"`
	ThresholdCredits      int64  `json:"threshold_credits"`
	RechargeAmountCents   int64  `json:"recharge_amount_cents"`
	StripePaymentMethodID string `json:"stripe_payment_method_id"`
}

func (s *Server) GetAutoRecharge(c *gin.Context) {
	tenantID, ok := tenantFromRequest(c)
	if !ok {
		return
	}

	resp, err := s.configSvc.GetConfig(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpsertAutoRecharge(c *gin.Context) {
	tenantID, ok := tenantFromRequest(c)
	if !ok {
		return
	}

	var req upsertAutoRechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.configSvc.UpsertConfig(c.Request.Context(), autorechargedomain.UpsertRequest{
		TenantID:              tenantID,
		IsEnabled:             req.IsEnabled,
		ThresholdCredits:      req.ThresholdCredits,
		RechargeAmountCents:   req.RechargeAmountCents,
		StripePaymentMethodID: strings.TrimSpace(req.StripePaymentMethodID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DisableAutoRecharge(c *gin.Context) {
	tenantID, ok := tenantFromRequest(c)
	if !ok {
		return
	}

	resp, err := s.configSvc.DisableAutoRecharge(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
