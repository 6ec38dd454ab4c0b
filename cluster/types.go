package cluster

import (
	"context"

	"go.uber.org/zap"

	"eproxy/breaker"
	"eproxy/command"
	"eproxy/convert"
	"eproxy/loadbalance/leastactive"
	"eproxy/loadbalance/random"
	"eproxy/loadbalance/roundrobin"
	"eproxy/recovery"
	"eproxy/registry"
	"eproxy/rpc/message"
)

// Dependencies is what the cluster strategies are built from. Registry is
// optional, without it the instance based strategies are not registered.
type Dependencies struct {
	Invoker   breaker.Invoker
	Commands  command.Provider
	Registry  registry.Registry
	Converter convert.Converter
	Logger    *zap.Logger
}

// NewRegistry registers every strategy under the name of its StrategyType.
// FallBack maps to Absent, it is what runs when a FallBack command names a
// fallback nobody registered.
func NewRegistry(deps Dependencies) *recovery.Registry {
	if deps.Converter == nil {
		deps.Converter = convert.TypeConverter{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	r := recovery.NewRegistry()
	r.Register(command.FailOver.String(), NewFailOver(deps))
	r.Register(command.Injection.String(), NewInjection(deps))
	r.Register(command.FallBack.String(), Absent{})
	if deps.Registry != nil {
		r.Register(command.Random.String(), NewBalanced(deps, &random.WeightPicker{}))
		r.Register(command.RoundRobin.String(), NewBalanced(deps, roundrobin.NewWeightPicker(nil)))
		r.Register(command.LeastActive.String(), NewBalanced(deps, &leastactive.Picker{}))
		r.Register(command.Broadcast.String(), NewBroadcast(deps))
	}
	return r
}

// Absent gives up, the caller ends with the zero value of its type.
type Absent struct{}

func (Absent) Invoke(_ context.Context, _ *recovery.Call) (any, error) {
	return nil, nil
}

func result(c convert.Converter, msg *message.ResultMessage, call *recovery.Call) (any, error) {
	typ := call.ReturnType
	if call.Raw || typ == nil {
		typ = convert.RawType
	}
	return c.Convert(msg.Result, typ)
}

func attempts(cmd *command.ServiceCommand) int {
	if cmd.FailoverCluster < 1 {
		return 1
	}
	return cmd.FailoverCluster
}
