package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	gatewaydomain "github.com/verigate/verigate/internal/gateway/domain"
)

type lookupRequest struct {
	OperationTag string         `json:"operation_tag"`
	Input        map[string]any `json:"input"`
}

// Invoke runs one PRO lookup for the calling officer. Provider failures
// come back as a terminal failed result, not as a transport error.
func (s *Server) Invoke(c *gin.Context) {
	officerID, ok := officerFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req lookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.gatewaySvc.Invoke(c.Request.Context(), gatewaydomain.InvokeRequest{
		OfficerID:    officerID,
		OperationTag: strings.TrimSpace(req.OperationTag),
		Input:        req.Input,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
