package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/verigate/verigate/internal/integration/domain"
	"github.com/verigate/verigate/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		log:   p.Log.Named("integration.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Resolve(ctx context.Context, operationTag string) (*domain.ProviderIntegration, error) {
	operationTag = strings.TrimSpace(operationTag)
	if operationTag == "" {
		return nil, domain.ErrInvalidOperationTag
	}

	route, err := s.repo.FindRoute(ctx, operationTag)
	if err != nil {
		if err == domain.ErrNotFound {
			return nil, domain.ErrProviderUnavailable
		}
		return nil, err
	}

	integration, err := s.repo.FindByID(ctx, route.IntegrationID)
	if err != nil {
		if err == domain.ErrNotFound {
			s.log.Error("operation route points at missing integration",
				zap.String("operation", operationTag),
				zap.Int64("integration_id", int64(route.IntegrationID)),
			)
			return nil, domain.ErrProviderUnavailable
		}
		return nil, err
	}

	if !integration.IsUsable() {
		return nil, domain.ErrProviderUnavailable
	}

	return integration, nil
}

func (s *Service) List(ctx context.Context) ([]domain.ProviderIntegration, error) {
	integrations, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ProviderIntegration, 0, len(integrations))
	for _, integration := range integrations {
		out = append(out, integration.Redacted())
	}
	return out, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.ProviderIntegration, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	providerTag := strings.ToLower(strings.TrimSpace(req.ProviderTag))
	if providerTag == "" {
		return nil, domain.ErrInvalidProviderTag
	}
	if req.CreditCost < 0 {
		return nil, domain.ErrInvalidCreditCost
	}

	status := req.Status
	if status == "" {
		status = domain.IntegrationStatusInactive
	}
	switch status {
	case domain.IntegrationStatusActive, domain.IntegrationStatusInactive, domain.IntegrationStatusDisabled:
	default:
		return nil, domain.ErrInvalidStatus
	}

	if strings.TrimSpace(req.Credential.BaseURL) == "" {
		return nil, domain.ErrInvalidCredential
	}
	rawCred, err := json.Marshal(req.Credential)
	if err != nil {
		return nil, domain.ErrInvalidCredential
	}

	integration := &domain.ProviderIntegration{
		ID:          s.genID.Generate(),
		Name:        name,
		ProviderTag: providerTag,
		Family:      strings.ToLower(strings.TrimSpace(req.Family)),
		Status:      status,
		CreditCost:  req.CreditCost,
		Credential:  rawCred,
	}

	if err := s.repo.Insert(ctx, integration); err != nil {
		return nil, err
	}

	redacted := integration.Redacted()
	return &redacted, nil
}

func (s *Service) SetStatus(ctx context.Context, id snowflake.ID, status domain.IntegrationStatus) error {
	switch status {
	case domain.IntegrationStatusActive, domain.IntegrationStatusInactive, domain.IntegrationStatusDisabled:
	default:
		return domain.ErrInvalidStatus
	}
	return s.repo.UpdateStatus(ctx, id, status)
}

func (s *Service) BindOperation(ctx context.Context, req domain.BindOperationRequest) (*domain.OperationRoute, error) {
	operationTag := strings.ToLower(strings.TrimSpace(req.OperationTag))
	if operationTag == "" {
		return nil, domain.ErrInvalidOperationTag
	}

	if _, err := s.repo.FindByID(ctx, req.IntegrationID); err != nil {
		return nil, err
	}

	route := &domain.OperationRoute{
		ID:            s.genID.Generate(),
		OperationTag:  operationTag,
		IntegrationID: req.IntegrationID,
		DisplayName:   strings.TrimSpace(req.DisplayName),
	}

	if err := s.repo.InsertRoute(ctx, route); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateRoute
		}
		return nil, err
	}
	return route, nil
}

func (s *Service) ListRoutes(ctx context.Context) ([]domain.OperationRoute, error) {
	return s.repo.ListRoutes(ctx)
}
