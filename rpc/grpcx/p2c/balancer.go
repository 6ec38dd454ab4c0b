package p2c

import (
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc/balancer"
	"google.golang.org/grpc/balancer/base"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/resolver"
	"google.golang.org/grpc/status"
)

// The picker is p2c over an EWMA of latency and success rate: pick two
// connections at random and keep the one with the lower load.

const (
	// Name is the gRPC load balancing policy name.
	Name            = "p2c_ewma"
	initSuccess     = 1000
	throttleSuccess = initSuccess / 2
	// a connection without statistics gets a big penalty
	penalty   = int64(math.MaxInt32)
	forcePick = int64(time.Second)
	pickTimes = 3
	decayTime = int64(time.Second * 10)
)

func init() {
	balancer.Register(base.NewBalancerBuilder(Name, &PickerBuilder{}, base.Config{HealthCheck: true}))
}

type PickerBuilder struct{}

func (b *PickerBuilder) Build(info base.PickerBuildInfo) balancer.Picker {
	if len(info.ReadySCs) == 0 {
		return base.NewErrPicker(balancer.ErrNoSubConnAvailable)
	}
	conns := make([]*Conn, 0, len(info.ReadySCs))
	for conn, connInfo := range info.ReadySCs {
		conns = append(conns, &Conn{
			SubConn: conn,
			success: initSuccess,
			address: connInfo.Address,
		})
	}
	return &Picker{
		conns: conns,
		r:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:   func() int64 { return time.Now().UnixNano() },
	}
}

type Picker struct {
	conns []*Conn
	r     *rand.Rand
	lock  sync.Mutex
	now   func() int64
}

func (p *Picker) Pick(balancer.PickInfo) (balancer.PickResult, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	var chosen *Conn
	switch len(p.conns) {
	case 0:
		return balancer.PickResult{}, balancer.ErrNoSubConnAvailable
	case 1:
		chosen = p.choose(p.conns[0], nil)
	case 2:
		chosen = p.choose(p.conns[0], p.conns[1])
	default:
		var node1, node2 *Conn
		for i := 0; i < pickTimes; i++ {
			idx1 := p.r.Intn(len(p.conns))
			idx2 := p.r.Intn(len(p.conns) - 1)
			if idx2 >= idx1 {
				idx2++
			}
			node1 = p.conns[idx1]
			node2 = p.conns[idx2]
			if node1.healthy() && node2.healthy() {
				break
			}
		}
		chosen = p.choose(node1, node2)
	}

	atomic.AddInt64(&chosen.inflight, 1)
	atomic.AddInt64(&chosen.requests, 1)
	return balancer.PickResult{
		SubConn: chosen.SubConn,
		Done:    p.buildCallback(chosen),
	}, nil
}

func (p *Picker) choose(c1, c2 *Conn) *Conn {
	start := p.now()
	if c2 == nil {
		atomic.StoreInt64(&c1.pick, start)
		return c1
	}
	if c1.load() > c2.load() {
		c1, c2 = c2, c1
	}
	// a connection not picked for forcePick gets one call to refresh its statistics
	pick := atomic.LoadInt64(&c2.pick)
	if start-pick > forcePick && atomic.CompareAndSwapInt64(&c2.pick, pick, start) {
		return c2
	}
	atomic.StoreInt64(&c1.pick, start)
	return c1
}

func (p *Picker) buildCallback(c *Conn) func(info balancer.DoneInfo) {
	start := p.now()
	return func(info balancer.DoneInfo) {
		atomic.AddInt64(&c.inflight, -1)
		now := p.now()
		last := atomic.SwapInt64(&c.last, now)
		td := now - last
		if td < 0 {
			td = 0
		}
		latency := now - start
		if latency < 0 {
			latency = 0
		}
		// w decays with the time since the last completed call
		var w float64
		oldLatency := atomic.LoadUint64(&c.latency)
		if oldLatency != 0 {
			w = math.Exp(float64(-td) / float64(decayTime))
		}
		atomic.StoreUint64(&c.latency, uint64(float64(oldLatency)*w+float64(latency)*(1-w)))
		success := initSuccess
		if info.Err != nil && !acceptable(info.Err) {
			success = 0
		}
		oldSuccess := atomic.LoadUint64(&c.success)
		atomic.StoreUint64(&c.success, uint64(float64(oldSuccess)*w+float64(success)*(1-w)))
	}
}

// acceptable reports whether err still says the server is fine.
func acceptable(err error) bool {
	switch status.Code(err) {
	case codes.DeadlineExceeded, codes.Internal, codes.Unavailable, codes.DataLoss, codes.Unimplemented:
		return false
	default:
		return true
	}
}

type Conn struct {
	balancer.SubConn
	address resolver.Address

	latency  uint64
	success  uint64
	inflight int64
	// picks since the picker was built
	requests int64
	last     int64
	pick     int64
}

func (c *Conn) healthy() bool {
	return atomic.LoadUint64(&c.success) > throttleSuccess
}

// load is Sqrt(ewma latency) * (inflight + 1).
func (c *Conn) load() int64 {
	latency := int64(math.Sqrt(float64(atomic.LoadUint64(&c.latency) + 1)))
	load := latency * (atomic.LoadInt64(&c.inflight) + 1)
	if load == 0 {
		return penalty
	}
	return load
}
