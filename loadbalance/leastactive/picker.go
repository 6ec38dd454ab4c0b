package leastactive

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"eproxy/internal/errs"
	"eproxy/loadbalance"
	"eproxy/registry"
)

const LeastActive = "LEAST_ACTIVE"

var _ loadbalance.Picker = (*Picker)(nil)

// Picker sends the call to the instance with the fewest calls in flight.
// Callers must Finish every pick or the count never drops.
type Picker struct {
	Filter loadbalance.Filter
	mutex  sync.Mutex
	active map[string]*uint32
}

func (p *Picker) Pick(ctx context.Context, instances []registry.ServiceInstance) (loadbalance.PickResult, error) {
	candidates := loadbalance.Candidates(ctx, p.Filter, instances)
	if len(candidates) == 0 {
		return loadbalance.PickResult{}, errs.ErrNoInstance
	}
	// The disadvantage of using atomic operations is that they are not accurate enough
	var (
		leastActive uint32 = math.MaxUint32
		res         registry.ServiceInstance
		counter     *uint32
	)
	for _, ins := range candidates {
		cnt := p.counter(ins.Address)
		if active := atomic.LoadUint32(cnt); active < leastActive {
			leastActive = active
			res = ins
			counter = cnt
		}
	}
	atomic.AddUint32(counter, 1)
	return loadbalance.PickResult{
		Instance: res,
		Done: func(err error) {
			atomic.AddUint32(counter, ^uint32(0))
		},
	}, nil
}

func (p *Picker) Name() string {
	return LeastActive
}

func (p *Picker) counter(address string) *uint32 {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.active == nil {
		p.active = make(map[string]*uint32, 8)
	}
	cnt, ok := p.active[address]
	if !ok {
		cnt = new(uint32)
		p.active[address] = cnt
	}
	return cnt
}
