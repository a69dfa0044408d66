package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	integrationdomain "github.com/verigate/verigate/internal/integration/domain"
)

type createIntegrationRequest struct {
	Name        string                       `json:"name"`
	ProviderTag string                       `json:"provider_tag"`
	Family      string                       `json:"family"`
	Status      string                       `json:"status"`
	CreditCost  int64                        `json:"credit_cost"`
	Credential  integrationdomain.Credential `json:"credential"`
}

type setIntegrationStatusRequest struct {
	Status string `json:"status"`
}

type bindOperationRequest struct {
	OperationTag  string `json:"operation_tag"`
	IntegrationID string `json:"integration_id"`
	DisplayName   string `json:"display_name"`
}

func (s *Server) ListIntegrations(c *gin.Context) {
	resp, err := s.integrationSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateIntegration(c *gin.Context) {
	var req createIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.integrationSvc.Create(c.Request.Context(), integrationdomain.CreateRequest{
		Name:        strings.TrimSpace(req.Name),
		ProviderTag: strings.TrimSpace(req.ProviderTag),
		Family:      strings.TrimSpace(req.Family),
		Status:      integrationdomain.IntegrationStatus(strings.TrimSpace(req.Status)),
		CreditCost:  req.CreditCost,
		Credential:  req.Credential,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Redacted()})
}

func (s *Server) SetIntegrationStatus(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_integration_id", "invalid integration id"))
		return
	}

	var req setIntegrationStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	status := integrationdomain.IntegrationStatus(strings.TrimSpace(req.Status))
	if err := s.integrationSvc.SetStatus(c.Request.Context(), id, status); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"id":     id.String(),
		"status": status,
	}})
}

func (s *Server) ListRoutes(c *gin.Context) {
	resp, err := s.integrationSvc.ListRoutes(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) BindOperation(c *gin.Context) {
	var req bindOperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	integrationID, err := parseSnowflakeID(req.IntegrationID)
	if err != nil {
		AbortWithError(c, newValidationError("integration_id", "invalid_integration_id", "invalid integration id"))
		return
	}

	resp, err := s.integrationSvc.BindOperation(c.Request.Context(), integrationdomain.BindOperationRequest{
		OperationTag:  strings.TrimSpace(req.OperationTag),
		IntegrationID: integrationID,
		DisplayName:   strings.TrimSpace(req.DisplayName),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
