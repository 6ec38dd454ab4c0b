package cluster

import (
	"context"

	"go.uber.org/zap"

	"eproxy/breaker"
	"eproxy/command"
	"eproxy/convert"
	"eproxy/internal/errs"
	"eproxy/loadbalance"
	"eproxy/recovery"
	"eproxy/registry"
	"eproxy/rpc"
)

var _ recovery.Handler = (*Balanced)(nil)

// Balanced retargets the call to instances chosen by a picker, at most
// FailoverCluster of them.
type Balanced struct {
	invoker   breaker.Invoker
	commands  command.Provider
	registry  registry.Registry
	picker    loadbalance.Picker
	converter convert.Converter
	logger    *zap.Logger
}

func NewBalanced(deps Dependencies, picker loadbalance.Picker) *Balanced {
	return &Balanced{
		invoker:   deps.Invoker,
		commands:  deps.Commands,
		registry:  deps.Registry,
		picker:    picker,
		converter: deps.Converter,
		logger:    deps.Logger,
	}
}

func (b *Balanced) Invoke(ctx context.Context, call *recovery.Call) (any, error) {
	cmd, err := b.commands.GetCommand(ctx, call.ServiceID)
	if err != nil {
		return nil, err
	}
	instances, err := b.registry.ListServices(ctx, registry.ServiceName(call.ServiceID))
	if err != nil {
		return nil, err
	}
	n := attempts(cmd)
	if n > len(instances) {
		n = len(instances)
	}
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		pick, err := b.picker.Pick(ctx, instances)
		if err != nil {
			return nil, err
		}
		msg := b.invoker.Invoke(rpc.WithAddress(ctx, pick.Instance.Address),
			call.Parameters, call.ServiceID, call.ServiceKey, call.Raw)
		if msg != nil {
			pick.Finish(nil)
			return result(b.converter, msg, call)
		}
		pick.Finish(errs.ErrNoInstance)
		b.logger.Debug("cluster: instance yielded no result",
			zap.String("service_id", call.ServiceID),
			zap.String("address", pick.Instance.Address))
	}
	return nil, nil
}
