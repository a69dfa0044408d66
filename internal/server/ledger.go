package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/verigate/verigate/internal/ledger/domain"
	"github.com/verigate/verigate/pkg/db/pagination"
)

type creditOfficerRequest struct {
	Amount  int64  `json:"amount"`
	Action  string `json:"action"`
	Remarks string `json:"remarks"`
}

// ListLedger returns the calling officer's credit movements, newest first.
func (s *Server) ListLedger(c *gin.Context) {
	officerID, ok := officerFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var query struct {
		pagination.Pagination
		Action  string `form:"action"`
		StartAt string `form:"start_at"`
		EndAt   string `form:"end_at"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	startAt, err := parseOptionalTime(query.StartAt, false)
	if err != nil {
		AbortWithError(c, newValidationError("start_at", "invalid_start_at", "invalid start_at"))
		return
	}
	endAt, err := parseOptionalTime(query.EndAt, true)
	if err != nil {
		AbortWithError(c, newValidationError("end_at", "invalid_end_at", "invalid end_at"))
		return
	}

	resp, err := s.ledgerSvc.List(c.Request.Context(), ledgerdomain.ListRequest{
		Pagination: query.Pagination,
		OfficerID:  officerID,
		Action:     ledgerdomain.LedgerAction(strings.TrimSpace(query.Action)),
		StartAt:    startAt,
		EndAt:      endAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// GetBalance returns the calling officer's remaining credits.
func (s *Server) GetBalance(c *gin.Context) {
	officerID, ok := officerFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	balance, err := s.ledgerSvc.Balance(c.Request.Context(), officerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"officer_id":        officerID.String(),
		"credits_remaining": balance,
	}})
}

// GetOfficerBalance returns any officer's remaining credits by ID.
func (s *Server) GetOfficerBalance(c *gin.Context) {
	officerID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_officer_id", "invalid officer id"))
		return
	}

	balance, err := s.ledgerSvc.Balance(c.Request.Context(), officerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"officer_id":        officerID.String(),
		"credits_remaining": balance,
	}})
}

// CreditOfficer appends a top-up, renewal, or refund entry for an officer.
func (s *Server) CreditOfficer(c *gin.Context) {
	officerID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_officer_id", "invalid officer id"))
		return
	}

	var req creditOfficerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	action := ledgerdomain.LedgerAction(strings.TrimSpace(req.Action))
	if action == "" {
		action = ledgerdomain.ActionTopUp
	}

	entry, err := s.ledgerSvc.Credit(c.Request.Context(), officerID, req.Amount, action, strings.TrimSpace(req.Remarks))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entry})
}
