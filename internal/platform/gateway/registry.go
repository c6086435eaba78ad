package gateway

import (
	"fmt"

	"go.uber.org/fx"

	"github.com/fatflowers/plankeeper/pkg/config"
	"github.com/fatflowers/plankeeper/pkg/types"
)

type Registry struct {
	gateways map[types.PaymentProvider]Gateway
	def      types.PaymentProvider
}

func NewRegistry(def types.PaymentProvider, gws ...Gateway) *Registry {
	r := &Registry{gateways: make(map[types.PaymentProvider]Gateway, len(gws)), def: def}
	for _, g := range gws {
		if g != nil {
			r.gateways[g.Provider()] = g
		}
	}
	return r
}

// Get returns the gateway for p, or the default one when p is empty.
func (r *Registry) Get(p types.PaymentProvider) (Gateway, error) {
	if p == "" {
		p = r.def
	}
	g, ok := r.gateways[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, p)
	}
	return g, nil
}

type RegistryParams struct {
	fx.In

	Cfg      *config.Config
	Gateways []Gateway `group:"gateways"`
}

func NewRegistryFromGroup(p RegistryParams) *Registry {
	return NewRegistry(p.Cfg.Billing.DefaultProvider, p.Gateways...)
}

var Module = fx.Options(
	fx.Provide(NewRegistryFromGroup),
)
