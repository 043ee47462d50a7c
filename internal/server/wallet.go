package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	walletdomain "github.com/smallbiznis/credits/internal/wallet/domain"
	"github.com/smallbiznis/credits/pkg/db/pagination"
	"github.com/shopspring/decimal"
)

type walletSettingsRequest struct {
	OverdraftPercent           *decimal.Decimal `json:"overdraft_percent"`
	LowBalanceThresholdCredits *int64           `json:"low_balance_threshold_credits"`
}

type ledgerEntryRequest struct {
	AmountCredits int64          `json:"amount_credits"`
	SourceType    string         `json:"source_type"`
	SourceRef     string         `json:"source_ref"`
	Description   string         `json:"description"`
	Meta          map[string]any `json:"meta"`
}

func (s *Server) GetWallet(c *gin.Context) {
	tenantID, ok := tenantFromRequest(c)
	if !ok {
		return
	}

	resp, err := s.walletSvc.GetWallet(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ProvisionWallet(c *gin.Context) {
	tenantID, ok := tenantFromRequest(c)
	if !ok {
		return
	}

	var req walletSettingsRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	ctx := c.Request.Context()
	if _, err := s.walletSvc.ProvisionWallet(ctx, walletdomain.ProvisionRequest{
		TenantID:                   tenantID,
		OverdraftPercent:           req.OverdraftPercent,
		LowBalanceThresholdCredits: req.LowBalanceThresholdCredits,
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.walletSvc.GetWallet(ctx, tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) UpdateWalletSettings(c *gin.Context) {
	tenantID, ok := tenantFromRequest(c)
	if !ok {
		return
	}

	var req walletSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.walletSvc.UpdateSettings(c.Request.Context(), walletdomain.UpdateSettingsRequest{
		TenantID:                   tenantID,
		OverdraftPercent:           req.OverdraftPercent,
		LowBalanceThresholdCredits: req.LowBalanceThresholdCredits,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListLedger(c *gin.Context) {
	tenantID, ok := tenantFromRequest(c)
	if !ok {
		return
	}

	var query struct {
		pagination.Pagination
		StartDate  string `form:"start_date"`
		EndDate    string `form:"end_date"`
		Direction  string `form:"direction"`
		SourceType string `form:"source_type"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	startDate, endDate, err := parseLedgerWindow(query.StartDate, query.EndDate)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.walletSvc.ListLedger(c.Request.Context(), tenantID, walletdomain.ListLedgerRequest{
		StartDate:  startDate,
		EndDate:    endDate,
		Direction:  walletdomain.Direction(strings.TrimSpace(query.Direction)),
		SourceType: walletdomain.SourceType(strings.TrimSpace(query.SourceType)),
		PageToken:  query.PageToken,
		PageSize:   query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": resp.Entries,
		"page_info": pagination.PageInfo{
			NextPageToken: resp.NextPageToken,
			HasMore:       resp.HasMore,
		},
	})
}

func (s *Server) VerifyBalance(c *gin.Context) {
	tenantID, ok := tenantFromRequest(c)
	if !ok {
		return
	}

	resp, err := s.walletSvc.VerifyBalance(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) Debit(c *gin.Context) {
	tenantID, ok := tenantFromRequest(c)
	if !ok {
		return
	}

	var req ledgerEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.walletSvc.Debit(c.Request.Context(), walletdomain.DebitRequest{
		TenantID:      tenantID,
		AmountCredits: req.AmountCredits,
		SourceType:    walletdomain.SourceType(strings.TrimSpace(req.SourceType)),
		SourceRef:     strings.TrimSpace(req.SourceRef),
		Description:   strings.TrimSpace(req.Description),
		Meta:          req.Meta,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(entryStatus(resp), gin.H{"data": resp})
}

func (s *Server) Credit(c *gin.Context) {
	tenantID, ok := tenantFromRequest(c)
	if !ok {
		return
	}

	var req ledgerEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.walletSvc.Credit(c.Request.Context(), walletdomain.CreditRequest{
		TenantID:      tenantID,
		AmountCredits: req.AmountCredits,
		SourceType:    walletdomain.SourceType(strings.TrimSpace(req.SourceType)),
		SourceRef:     strings.TrimSpace(req.SourceRef),
		Description:   strings.TrimSpace(req.Description),
		Meta:          req.Meta,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(entryStatus(resp), gin.H{"data": resp})
}

// entryStatus is 200 for a replay of an existing source reference.
func entryStatus(res *walletdomain.Result) int {
	if res != nil && res.Replayed {
		return http.StatusOK
	}
	return http.StatusCreated
}
