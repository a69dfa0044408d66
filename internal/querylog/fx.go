package querylog

import (
	"github.com/verigate/verigate/internal/querylog/repository"
	"github.com/verigate/verigate/internal/querylog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("querylog.service",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
