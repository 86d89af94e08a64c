package factoring

import (
	"strings"

	"github.com/smallbiznis/freightpay/internal/config"
)

type Registry struct {
	factories map[string]ProviderFactory
	policy    *config.PolicyHolder
}

func NewRegistry(policy *config.PolicyHolder, factories ...ProviderFactory) *Registry {
	registry := &Registry{factories: map[string]ProviderFactory{}, policy: policy}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		name := normalizeName(factory.Provider())
		if name == "" {
			continue
		}
		registry.factories[name] = factory
	}
	return registry
}

func (r *Registry) ProviderExists(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[normalizeName(name)]
	return ok
}

// Provider builds the named provider against the policy in effect right now.
func (r *Registry) Provider(name string) (Provider, error) {
	if r == nil {
		return nil, ErrProviderNotFound
	}
	factory, ok := r.factories[normalizeName(name)]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return factory.NewProvider(r.policy.Get().Factoring)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
