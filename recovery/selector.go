package recovery

import (
	"context"

	"go.uber.org/zap"

	"eproxy/command"
	"eproxy/internal/errs"
)

// Selector picks the recovery handler of a command. The choice is made again
// on every absence and never cached.
type Selector struct {
	fallbacks *Registry
	clusters  *Registry
	logger    *zap.Logger
}

func NewSelector(fallbacks, clusters *Registry, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{fallbacks: fallbacks, clusters: clusters, logger: logger}
}

// Select uses the fallback named by the command when the strategy is FallBack
// and that fallback is registered. Everything else goes to the cluster handler
// named after the strategy, which must exist.
func (s *Selector) Select(cmd *command.ServiceCommand) (Handler, error) {
	if cmd.Strategy == command.FallBack {
		if h, ok := s.fallbacks.Resolve(cmd.FallBackName); ok {
			return h, nil
		}
		s.logger.Debug("recovery: fallback not registered, using cluster",
			zap.String("service_id", cmd.ServiceID),
			zap.String("fallback", cmd.FallBackName))
	}
	name := cmd.Strategy.String()
	h, ok := s.clusters.Resolve(name)
	if !ok {
		return nil, errs.ClusterNotFound(name)
	}
	return h, nil
}

// Recover runs the selected handler and returns its result as is.
func (s *Selector) Recover(ctx context.Context, cmd *command.ServiceCommand, call *Call) (any, error) {
	h, err := s.Select(cmd)
	if err != nil {
		return nil, err
	}
	return h.Invoke(ctx, call)
}
