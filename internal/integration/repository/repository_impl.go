package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/verigate/verigate/internal/integration/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.ProviderIntegration, error) {
	var integration domain.ProviderIntegration
	err := r.db.WithContext(ctx).First(&integration, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &integration, nil
}

func (r *repo) FindByProviderTag(ctx context.Context, providerTag string) (*domain.ProviderIntegration, error) {
	var integration domain.ProviderIntegration
	err := r.db.WithContext(ctx).First(&integration, "provider_tag = ?", providerTag).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &integration, nil
}

func (r *repo) FindRoute(ctx context.Context, operationTag string) (*domain.OperationRoute, error) {
	var route domain.OperationRoute
	err := r.db.WithContext(ctx).First(&route, "operation_tag = ?", operationTag).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &route, nil
}

func (r *repo) List(ctx context.Context) ([]domain.ProviderIntegration, error) {
	var integrations []domain.ProviderIntegration
	err := r.db.WithContext(ctx).Order("created_at asc").Find(&integrations).Error
	return integrations, err
}

func (r *repo) ListRoutes(ctx context.Context) ([]domain.OperationRoute, error) {
	var routes []domain.OperationRoute
	err := r.db.WithContext(ctx).Order("operation_tag asc").Find(&routes).Error
	return routes, err
}

func (r *repo) Insert(ctx context.Context, integration *domain.ProviderIntegration) error {
	return r.db.WithContext(ctx).Create(integration).Error
}

func (r *repo) InsertRoute(ctx context.Context, route *domain.OperationRoute) error {
	return r.db.WithContext(ctx).Create(route).Error
}

func (r *repo) UpdateStatus(ctx context.Context, id snowflake.ID, status domain.IntegrationStatus) error {
	res := r.db.WithContext(ctx).Model(&domain.ProviderIntegration{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
