package roundrobin

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"eproxy/internal/errs"
	"eproxy/loadbalance"
	"eproxy/registry"
)

const WeightRoundRobin = "WEIGHT_ROUND_ROBIN"

var _ loadbalance.Picker = (*WeightPicker)(nil)

// WeightPicker is smooth weighted round robin. The effective weight of an
// instance goes up on success and down on failure.
type WeightPicker struct {
	Filter loadbalance.Filter
	mutex  sync.Mutex
	nodes  map[string]*weightNode
}

type weightNode struct {
	// Initial weight
	weight uint32
	// Current weight
	currentWeight int64
	// Effective weight, we will dynamically adjust the weight in the whole process
	efficientWeight uint32
}

func NewWeightPicker(filter loadbalance.Filter) *WeightPicker {
	return &WeightPicker{Filter: filter, nodes: make(map[string]*weightNode, 8)}
}

func (p *WeightPicker) Pick(ctx context.Context, instances []registry.ServiceInstance) (loadbalance.PickResult, error) {
	candidates := loadbalance.Candidates(ctx, p.Filter, instances)
	if len(candidates) == 0 {
		return loadbalance.PickResult{}, errs.ErrNoInstance
	}
	p.mutex.Lock()
	if p.nodes == nil {
		p.nodes = make(map[string]*weightNode, len(candidates))
	}
	var (
		totalWeight int64
		chosen      *weightNode
		chosenIns   registry.ServiceInstance
	)
	for _, ins := range candidates {
		node := p.node(ins)
		efficient := int64(atomic.LoadUint32(&node.efficientWeight))
		totalWeight += efficient
		node.currentWeight += efficient
		if chosen == nil || chosen.currentWeight < node.currentWeight {
			chosen = node
			chosenIns = ins
		}
	}
	chosen.currentWeight -= totalWeight
	p.mutex.Unlock()
	return loadbalance.PickResult{
		Instance: chosenIns,
		Done: func(err error) {
			for {
				// plain add or sub would wrap around, so a node failing forever
				// would end up with the biggest weight
				weight := atomic.LoadUint32(&chosen.efficientWeight)
				if err != nil && weight <= 1 {
					return
				}
				if err == nil && (weight == math.MaxUint32 || weight >= chosen.weight) {
					return
				}
				newWeight := weight + 1
				if err != nil {
					newWeight = weight - 1
				}
				if atomic.CompareAndSwapUint32(&chosen.efficientWeight, weight, newWeight) {
					return
				}
			}
		},
	}, nil
}

func (p *WeightPicker) Name() string {
	return WeightRoundRobin
}

// node must be called with the mutex held. A changed registry weight resets
// the node.
func (p *WeightPicker) node(ins registry.ServiceInstance) *weightNode {
	weight := ins.Weight
	if weight == 0 {
		weight = 1
	}
	node, ok := p.nodes[ins.Address]
	if !ok || node.weight != weight {
		node = &weightNode{weight: weight, efficientWeight: weight}
		p.nodes[ins.Address] = node
	}
	return node
}
