package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	querylogdomain "github.com/verigate/verigate/internal/querylog/domain"
	"github.com/verigate/verigate/pkg/db/pagination"
)

// ListQueries returns the calling officer's lookup history, newest first.
// Input identifiers come back masked.
func (s *Server) ListQueries(c *gin.Context) {
	officerID, ok := officerFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var query struct {
		pagination.Pagination
		OperationTag string `form:"operation_tag"`
		Status       string `form:"status"`
		StartAt      string `form:"start_at"`
		EndAt        string `form:"end_at"`
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

	resp, err := s.queryLogSvc.List(c.Request.Context(), querylogdomain.ListRequest{
		Pagination:   query.Pagination,
		OfficerID:    officerID,
		OperationTag: strings.TrimSpace(query.OperationTag),
		Status:       querylogdomain.QueryStatus(strings.TrimSpace(query.Status)),
		StartAt:      startAt,
		EndAt:        endAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
