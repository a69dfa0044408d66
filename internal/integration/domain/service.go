package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Resolve maps an operation tag to its active provider integration with
	// full credential material. This is the adapter call path.
	Resolve(ctx context.Context, operationTag string) (*ProviderIntegration, error)

	// List returns integrations with credentials redacted for display.
	List(ctx context.Context) ([]ProviderIntegration, error)

	Create(ctx context.Context, req CreateRequest) (*ProviderIntegration, error)
	SetStatus(ctx context.Context, id snowflake.ID, status IntegrationStatus) error
	BindOperation(ctx context.Context, req BindOperationRequest) (*OperationRoute, error)
	ListRoutes(ctx context.Context) ([]OperationRoute, error)
}

type CreateRequest struct {
	Name        string            `json:"name"`
	ProviderTag string            `json:"provider_tag"`
	Family      string            `json:"family"`
	Status      IntegrationStatus `json:"status"`
	CreditCost  int64             `json:"credit_cost"`
	Credential  Credential        `json:"credential"`
}

type BindOperationRequest struct {
	OperationTag  string       `json:"operation_tag"`
	IntegrationID snowflake.ID `json:"integration_id"`
	DisplayName   string       `json:"display_name"`
}

type Repository interface {
	FindByID(ctx context.Context, id snowflake.ID) (*ProviderIntegration, error)
	FindByProviderTag(ctx context.Context, providerTag string) (*ProviderIntegration, error)
	FindRoute(ctx context.Context, operationTag string) (*OperationRoute, error)
	List(ctx context.Context) ([]ProviderIntegration, error)
	ListRoutes(ctx context.Context) ([]OperationRoute, error)
	Insert(ctx context.Context, integration *ProviderIntegration) error
	InsertRoute(ctx context.Context, route *OperationRoute) error
	UpdateStatus(ctx context.Context, id snowflake.ID, status IntegrationStatus) error
}

var (
	ErrNotFound            = errors.New("integration_not_found")
	ErrProviderUnavailable = errors.New("provider_unavailable")
	ErrInvalidCredential   = errors.New("invalid_credential")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidProviderTag  = errors.New("invalid_provider_tag")
	ErrInvalidOperationTag = errors.New("invalid_operation_tag")
	ErrInvalidCreditCost   = errors.New("invalid_credit_cost")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrDuplicateRoute      = errors.New("duplicate_operation_route")
)
