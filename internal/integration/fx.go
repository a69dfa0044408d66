package integration

import (
	"github.com/verigate/verigate/internal/integration/repository"
	"github.com/verigate/verigate/internal/integration/service"
	"go.uber.org/fx"
)

var Module = fx.Module("integration.service",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
