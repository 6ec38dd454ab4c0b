package cluster

import (
	"context"

	"go.uber.org/zap"

	"eproxy/breaker"
	"eproxy/command"
	"eproxy/convert"
	"eproxy/recovery"
)

var _ recovery.Handler = (*FailOver)(nil)

// FailOver re-issues the call up to FailoverCluster times and returns the
// first result.
type FailOver struct {
	invoker   breaker.Invoker
	commands  command.Provider
	converter convert.Converter
	logger    *zap.Logger
}

func NewFailOver(deps Dependencies) *FailOver {
	return &FailOver{
		invoker:   deps.Invoker,
		commands:  deps.Commands,
		converter: deps.Converter,
		logger:    deps.Logger,
	}
}

func (f *FailOver) Invoke(ctx context.Context, call *recovery.Call) (any, error) {
	cmd, err := f.commands.GetCommand(ctx, call.ServiceID)
	if err != nil {
		return nil, err
	}
	n := attempts(cmd)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		msg := f.invoker.Invoke(ctx, call.Parameters, call.ServiceID, call.ServiceKey, call.Raw)
		if msg != nil {
			return result(f.converter, msg, call)
		}
		f.logger.Debug("cluster: failover attempt yielded no result",
			zap.String("service_id", call.ServiceID), zap.Int("attempt", i+1))
	}
	return nil, nil
}
