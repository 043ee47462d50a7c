package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/credits/internal/payment/domain"
	rechargedomain "github.com/smallbiznis/credits/internal/recharge/domain"
)

type customerRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type portalSessionRequest struct {
	ReturnURL string `json:"return_url"`
}

func (s *Server) EnsureCustomer(c *gin.Context) {
	tenantID, ok := tenantFromRequest(c)
	if !ok {
		return
	}

	var req customerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.customerSvc.EnsureCustomer(c.Request.Context(), paymentdomain.CustomerRequest{
		TenantID: tenantID,
		Email:    strings.TrimSpace(req.Email),
		Name:     strings.TrimSpace(req.Name),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateSetupIntent(c *gin.Context) {
	tenantID, ok := tenantFromRequest(c)
	if !ok {
		return
	}

	var req customerRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	resp, err := s.customerSvc.CreateSetupIntent(c.Request.Context(), paymentdomain.CustomerRequest{
		TenantID: tenantID,
		Email:    strings.TrimSpace(req.Email),
		Name:     strings.TrimSpace(req.Name),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreatePortalSession(c *gin.Context) {
	tenantID, ok := tenantFromRequest(c)
	if !ok {
		return
	}

	var req portalSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	resp, err := s.customerSvc.CreatePortalSession(c.Request.Context(), paymentdomain.PortalSessionRequest{
		TenantID:  tenantID,
		ReturnURL: strings.TrimSpace(req.ReturnURL),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListRechargeAttempts(c *gin.Context) {
	tenantID, ok := tenantFromRequest(c)
	if !ok {
		return
	}

	limit, err := parseAttemptLimit(c.Query("limit"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.rechargeSvc.ListAttempts(c.Request.Context(), rechargedomain.ListAttemptsRequest{
		TenantID: tenantID,
		Limit:    limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
