package roundrobin

import (
	"context"
	"sync"

	"eproxy/internal/errs"
	"eproxy/loadbalance"
	"eproxy/registry"
)

const RoundRobin = "ROUND_ROBIN"

var _ loadbalance.Picker = (*Picker)(nil)

type Picker struct {
	Filter loadbalance.Filter
	cnt    uint64
	mutex  sync.Mutex
}

func (p *Picker) Pick(ctx context.Context, instances []registry.ServiceInstance) (loadbalance.PickResult, error) {
	// It is theoretically feasible to use atomic operations instead of locks,
	// but the final effect is not a strict polling, but a rough polling
	candidates := loadbalance.Candidates(ctx, p.Filter, instances)
	if len(candidates) == 0 {
		return loadbalance.PickResult{}, errs.ErrNoInstance
	}
	p.mutex.Lock()
	index := p.cnt % uint64(len(candidates))
	p.cnt++
	p.mutex.Unlock()
	return loadbalance.PickResult{Instance: candidates[index]}, nil
}

func (p *Picker) Name() string {
	return RoundRobin
}
