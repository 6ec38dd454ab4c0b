package random

import (
	"context"
	"math/rand"

	"eproxy/internal/errs"
	"eproxy/loadbalance"
	"eproxy/registry"
)

const WeightRandom = "WEIGHT_RANDOM"

var _ loadbalance.Picker = (*WeightPicker)(nil)

// WeightPicker picks with probability proportional to weight. Instances
// registered without a weight count as weight 1.
type WeightPicker struct {
	Filter loadbalance.Filter
	// intn is replaced in tests
	intn func(n int) int
}

func (p *WeightPicker) Pick(ctx context.Context, instances []registry.ServiceInstance) (loadbalance.PickResult, error) {
	candidates := loadbalance.Candidates(ctx, p.Filter, instances)
	if len(candidates) == 0 {
		return loadbalance.PickResult{}, errs.ErrNoInstance
	}
	var totalWeight int
	for _, ins := range candidates {
		totalWeight += weightOf(ins)
	}
	intn := p.intn
	if intn == nil {
		intn = rand.Intn
	}
	val := intn(totalWeight)
	for _, ins := range candidates {
		val -= weightOf(ins)
		if val < 0 {
			return loadbalance.PickResult{Instance: ins}, nil
		}
	}
	// In fact, it is impossible to run here, because we must be able to find a value before
	return loadbalance.PickResult{Instance: candidates[len(candidates)-1]}, nil
}

func (p *WeightPicker) Name() string {
	return WeightRandom
}

func weightOf(ins registry.ServiceInstance) int {
	if ins.Weight == 0 {
		return 1
	}
	return int(ins.Weight)
}
