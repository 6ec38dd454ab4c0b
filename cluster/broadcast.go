package cluster

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"eproxy/breaker"
	"eproxy/convert"
	"eproxy/recovery"
	"eproxy/registry"
	"eproxy/rpc"
	"eproxy/rpc/message"
)

var _ recovery.Handler = (*Broadcast)(nil)

// Broadcast calls every instance at once and keeps the first result, the
// calls still in flight are cancelled.
type Broadcast struct {
	invoker   breaker.Invoker
	registry  registry.Registry
	converter convert.Converter
	logger    *zap.Logger
}

func NewBroadcast(deps Dependencies) *Broadcast {
	return &Broadcast{
		invoker:   deps.Invoker,
		registry:  deps.Registry,
		converter: deps.Converter,
		logger:    deps.Logger,
	}
}

func (b *Broadcast) Invoke(ctx context.Context, call *recovery.Call) (any, error) {
	instances, err := b.registry.ListServices(ctx, registry.ServiceName(call.ServiceID))
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// buffered, so no sender blocks when nobody is reading anymore
	results := make(chan *message.ResultMessage, len(instances))
	var eg errgroup.Group
	for _, instance := range instances {
		in := instance
		eg.Go(func() error {
			msg := b.invoker.Invoke(rpc.WithAddress(ctx, in.Address),
				call.Parameters, call.ServiceID, call.ServiceKey, call.Raw)
			if msg != nil {
				results <- msg
				cancel()
			}
			return nil
		})
	}
	_ = eg.Wait()
	close(results)
	msg, ok := <-results
	if !ok {
		b.logger.Debug("cluster: no instance answered the broadcast",
			zap.String("service_id", call.ServiceID), zap.Int("instances", len(instances)))
		return nil, nil
	}
	return result(b.converter, msg, call)
}
