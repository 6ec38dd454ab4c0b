package random

import (
	"context"
	"math/rand"

	"eproxy/internal/errs"
	"eproxy/loadbalance"
	"eproxy/registry"
)

const Random = "RANDOM"

var _ loadbalance.Picker = (*Picker)(nil)

type Picker struct {
	Filter loadbalance.Filter
}

func (p *Picker) Pick(ctx context.Context, instances []registry.ServiceInstance) (loadbalance.PickResult, error) {
	candidates := loadbalance.Candidates(ctx, p.Filter, instances)
	if len(candidates) == 0 {
		return loadbalance.PickResult{}, errs.ErrNoInstance
	}
	return loadbalance.PickResult{Instance: candidates[rand.Intn(len(candidates))]}, nil
}

func (p *Picker) Name() string {
	return Random
}
