package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/gotomicro/ekit/bean/option"
	"go.uber.org/zap"

	"eproxy/command"
	"eproxy/rpc/message"
)

// Remote is the unguarded remote call, remote.Service implements it.
type Remote interface {
	Invoke(ctx context.Context, parameters map[string]any, serviceID, serviceKey string, decodeRaw bool) (*message.ResultMessage, error)
}

var _ Invoker = (*RemoteInvoker)(nil)

// RemoteInvoker keeps one circuit per service id and applies the execution
// timeout of the service command to every call.
type RemoteInvoker struct {
	remote   Remote
	commands command.Provider
	mutex    sync.Mutex
	circuits map[string]*circuit
	now      func() time.Time
	logger   *zap.Logger
}

func InvokerWithLogger(logger *zap.Logger) option.Option[RemoteInvoker] {
	return func(invoker *RemoteInvoker) {
		invoker.logger = logger
	}
}

func NewRemoteInvoker(remote Remote, commands command.Provider, opts ...option.Option[RemoteInvoker]) *RemoteInvoker {
	r := &RemoteInvoker{
		remote:   remote,
		commands: commands,
		circuits: make(map[string]*circuit, 16),
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RemoteInvoker) Invoke(ctx context.Context, parameters map[string]any,
	serviceID, serviceKey string, decodeRaw bool) *message.ResultMessage {
	cmd, err := r.commands.GetCommand(ctx, serviceID)
	if err != nil {
		r.logger.Warn("breaker: service command unavailable",
			zap.String("service_id", serviceID), zap.Error(err))
		return nil
	}
	c := r.circuit(serviceID)
	generation, ok := c.allow(cmd, r.now())
	if !ok {
		r.logger.Debug("breaker: call rejected",
			zap.String("service_id", serviceID),
			zap.Bool("force_open", cmd.CircuitBreakerForceOpen))
		return nil
	}
	if timeout := cmd.ExecutionTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	res, err := r.remote.Invoke(ctx, parameters, serviceID, serviceKey, decodeRaw)
	from, to := c.record(cmd, generation, err != nil, r.now())
	if from != to {
		r.logger.Info("breaker: state changed",
			zap.String("service_id", serviceID),
			zap.Stringer("from", from), zap.Stringer("to", to))
	}
	if err != nil {
		r.logger.Warn("breaker: remote call failed",
			zap.String("service_id", serviceID), zap.Error(err))
		return nil
	}
	return res
}

// State is the circuit state of a service, closed for services never called.
func (r *RemoteInvoker) State(serviceID string) State {
	r.mutex.Lock()
	c, ok := r.circuits[serviceID]
	r.mutex.Unlock()
	if !ok {
		return StateClosed
	}
	return c.current()
}

func (r *RemoteInvoker) circuit(serviceID string) *circuit {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	c, ok := r.circuits[serviceID]
	if !ok {
		c = newCircuit(r.now())
		r.circuits[serviceID] = c
	}
	return c
}
