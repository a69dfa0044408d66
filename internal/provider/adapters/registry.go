package adapters

import (
	"strings"

	"github.com/verigate/verigate/internal/provider/adapters/finsight"
	"github.com/verigate/verigate/internal/provider/adapters/kycdoc"
	"github.com/verigate/verigate/internal/provider/adapters/vahanix"
	"github.com/verigate/verigate/internal/provider/domain"
	"go.uber.org/fx"
)

type Registry struct {
	factories map[string]domain.Factory
}

func NewRegistry(factories ...domain.Factory) *Registry {
	registry := &Registry{factories: map[string]domain.Factory{}}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		family := strings.ToLower(strings.TrimSpace(factory.Family()))
		if family == "" {
			continue
		}
		registry.factories[family] = factory
	}
	return registry
}

func (r *Registry) FamilyExists(family string) bool {
	if r == nil {
		return false
	}
	family = strings.ToLower(strings.TrimSpace(family))
	_, ok := r.factories[family]
	return ok
}

func (r *Registry) NewAdapter(family string, cfg domain.AdapterConfig) (domain.Adapter, error) {
	if r == nil {
		return nil, domain.ErrFamilyNotFound
	}
	family = strings.ToLower(strings.TrimSpace(family))
	factory, ok := r.factories[family]
	if !ok {
		return nil, domain.ErrFamilyNotFound
	}
	return factory.NewAdapter(cfg)
}

func newDefaultRegistry() *Registry {
	return NewRegistry(
		kycdoc.NewFactory(),
		finsight.NewFactory(),
		vahanix.NewFactory(),
	)
}

// Module provides the registry with all built-in provider families.
var Module = fx.Module("provider.adapters",
	fx.Provide(newDefaultRegistry),
)
