package grpcx

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/attributes"
	"google.golang.org/grpc/resolver"

	"eproxy/registry"
)

const Scheme = "registry"

var (
	_ resolver.Builder  = (*resolverBuilder)(nil)
	_ resolver.Resolver = (*registryResolver)(nil)
)

type resolverBuilder struct {
	registry registry.Registry
	timeout  time.Duration
	logger   *zap.Logger
}

// NewResolverBuilder resolves "registry:///<service name>" targets through r.
func NewResolverBuilder(r registry.Registry, timeout time.Duration, logger *zap.Logger) resolver.Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &resolverBuilder{registry: r, timeout: timeout, logger: logger}
}

func (b *resolverBuilder) Build(target resolver.Target, cc resolver.ClientConn,
	opts resolver.BuildOptions) (resolver.Resolver, error) {
	events, err := b.registry.Subscribe(target.Endpoint())
	if err != nil {
		return nil, err
	}
	res := &registryResolver{
		target:   target,
		cc:       cc,
		registry: b.registry,
		timeout:  b.timeout,
		logger:   b.logger,
		close:    make(chan struct{}),
	}
	res.resolve()
	go res.watch(events)
	return res, nil
}

func (b *resolverBuilder) Scheme() string {
	return Scheme
}

type registryResolver struct {
	target   resolver.Target
	cc       resolver.ClientConn
	registry registry.Registry
	timeout  time.Duration
	logger   *zap.Logger
	close    chan struct{}
	once     sync.Once
}

func (r *registryResolver) ResolveNow(resolver.ResolveNowOptions) {
	r.resolve()
}

func (r *registryResolver) resolve() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	instances, err := r.registry.ListServices(ctx, r.target.Endpoint())
	if err != nil {
		r.logger.Warn("grpcx: list services failed",
			zap.String("service", r.target.Endpoint()), zap.Error(err))
		r.cc.ReportError(err)
		return
	}
	address := make([]resolver.Address, 0, len(instances))
	for _, ins := range instances {
		address = append(address, newAddress(ins))
	}
	if err = r.cc.UpdateState(resolver.State{Addresses: address}); err != nil {
		r.cc.ReportError(err)
	}
}

func newAddress(ins registry.ServiceInstance) resolver.Address {
	return resolver.Address{
		Addr:       ins.Address,
		ServerName: ins.Name,
		Attributes: attributes.New("weight", ins.Weight).
			WithValue("group", ins.Group),
	}
}

// watch refreshes the whole list on every event instead of patching it.
func (r *registryResolver) watch(events <-chan registry.Event) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
			r.resolve()
		case <-r.close:
			return
		}
	}
}

func (r *registryResolver) Close() {
	r.once.Do(func() {
		close(r.close)
	})
}
