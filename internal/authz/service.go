package authz

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	officerdomain "github.com/verigate/verigate/internal/officer/domain"
	plandomain "github.com/verigate/verigate/internal/plan/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrAuthorizationDenied covers suspended officers, officers with no
	// plan, and operation tags outside the plan's allowed set.
	ErrAuthorizationDenied = errors.New("authorization_denied")
)

// Service answers whether an officer may invoke an operation. The check is
// cheap and runs before any credential lookup, reservation, or network call.
type Service interface {
	Authorize(ctx context.Context, officerID snowflake.ID, operationTag string) (*officerdomain.Officer, error)
}

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(p Params) Service {
	return &service{
		db:  p.DB,
		log: p.Log.Named("authz.service"),
	}
}

// Authorize returns the officer when the lookup is permitted. An officer
// with no assigned plan has no PRO access.
func (s *service) Authorize(ctx context.Context, officerID snowflake.ID, operationTag string) (*officerdomain.Officer, error) {
	var off officerdomain.Officer
	if err := s.db.WithContext(ctx).First(&off, "id = ?", officerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, officerdomain.ErrOfficerNotFound
		}
		return nil, err
	}

	if !off.IsActive() {
		s.log.Warn("lookup denied for inactive officer",
			zap.Int64("officer_id", int64(officerID)),
			zap.String("operation", operationTag),
		)
		return nil, ErrAuthorizationDenied
	}

	if off.PlanID == nil {
		return nil, ErrAuthorizationDenied
	}

	var plan plandomain.RatePlan
	if err := s.db.WithContext(ctx).First(&plan, "id = ?", *off.PlanID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuthorizationDenied
		}
		return nil, err
	}

	if !plan.Allows(operationTag) {
		return nil, ErrAuthorizationDenied
	}

	return &off, nil
}

// Module provides the plan authorization service.
var Module = fx.Module("authz.service",
	fx.Provide(NewService),
)
